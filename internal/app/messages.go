package app

import (
	"fmt"
	"math"
	"strings"

	"github.com/Alpha-M2/liquidation-alerter/internal/core"
)

// Protocol deep links appended to alerts.
var protocolURLs = map[string]string{
	"Aave V3 (Ethereum)":     "https://app.aave.com/",
	"Aave V3 (Arbitrum)":     "https://app.aave.com/?marketName=proto_arbitrum_v3",
	"Aave V3 (Base)":         "https://app.aave.com/?marketName=proto_base_v3",
	"Aave V3 (Optimism)":     "https://app.aave.com/?marketName=proto_optimism_v3",
	"Compound V3 (Ethereum)": "https://app.compound.finance/",
	"Compound V3 (Arbitrum)": "https://app.compound.finance/?market=usdc-arbitrum",
	"Compound V3 (Base)":     "https://app.compound.finance/?market=usdc-base",
	"Compound V3 (Optimism)": "https://app.compound.finance/?market=usdc-optimism",
}

func protocolURL(protocol string) string {
	if url, ok := protocolURLs[protocol]; ok {
		return url
	}
	return "https://defillama.com/"
}

func statusEmoji(status core.HealthStatus) string {
	switch status {
	case core.StatusHealthy:
		return "🟢"
	case core.StatusWarning:
		return "🟡"
	case core.StatusCritical:
		return "🔴"
	case core.StatusLiquidatable:
		return "💀"
	default:
		return "⚪"
	}
}

// FormatUSD renders a dollar amount compactly.
func FormatUSD(amount float64) string {
	switch {
	case amount >= 1_000_000:
		return fmt.Sprintf("$%.2fM", amount/1_000_000)
	case amount >= 1_000:
		return fmt.Sprintf("$%.2fK", amount/1_000)
	default:
		return fmt.Sprintf("$%.2f", amount)
	}
}

// FormatHealthFactor renders an HF, using the infinity sign for debt-free
// positions.
func FormatHealthFactor(hf float64) string {
	if math.IsInf(hf, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.2f", hf)
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func statusTitle(status core.HealthStatus) string {
	s := strings.ToLower(status.String())
	return strings.ToUpper(s[:1]) + s[1:]
}

func recommendationLine(rec core.Recommendation) string {
	switch rec.Action {
	case "repay":
		return fmt.Sprintf("Repay %s of debt to reach HF %.1f", FormatUSD(rec.AmountUSD), rec.TargetHF)
	case "deposit":
		return fmt.Sprintf("Deposit %s collateral to reach HF %.1f", FormatUSD(rec.AmountUSD), rec.TargetHF)
	default:
		return fmt.Sprintf("%s %s", rec.Action, FormatUSD(rec.AmountUSD))
	}
}

// FormatAlert builds the Markdown alert message for a position. gasWarning
// is appended verbatim when non-empty.
func FormatAlert(pos *core.Position, assessment core.HealthAssessment, reason, gasWarning string) string {
	var header string
	switch {
	case assessment.Status == core.StatusLiquidatable:
		header = "⚠️ *LIQUIDATION ALERT* ⚠️"
	case assessment.Status == core.StatusCritical:
		header = "🚨 *CRITICAL ALERT* 🚨"
	case reason == ReasonRapidDeterioration:
		header = "📉 *RAPID DETERIORATION* 📉"
	default:
		header = "⚠️ *WARNING* ⚠️"
	}

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("%s *%s* | `%s`\n\n", statusEmoji(assessment.Status), pos.Protocol, shortAddress(pos.Wallet)))
	sb.WriteString(fmt.Sprintf("*Health Factor:* %s\n", FormatHealthFactor(pos.HealthFactor)))
	sb.WriteString(fmt.Sprintf("*Collateral:* %s\n", FormatUSD(pos.TotalCollateralUSD)))
	sb.WriteString(fmt.Sprintf("*Debt:* %s\n\n", FormatUSD(pos.TotalDebtUSD)))
	sb.WriteString(fmt.Sprintf("_%s_", assessment.Message))

	if len(assessment.Recommendations) > 0 {
		sb.WriteString("\n\n*Take Action:*")
		for _, rec := range assessment.Recommendations {
			sb.WriteString("\n• " + recommendationLine(rec))
		}
	}

	if gasWarning != "" {
		sb.WriteString("\n\n⛽ " + gasWarning)
	}

	sb.WriteString(fmt.Sprintf("\n\n[⚡ Open %s](%s)", pos.Protocol, protocolURL(pos.Protocol)))
	return sb.String()
}

// FormatPositionStatus renders one position for the /status command.
func FormatPositionStatus(pos *core.Position, assessment core.HealthAssessment) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s *%s* | `%s`\n\n", statusEmoji(assessment.Status), pos.Protocol, shortAddress(pos.Wallet)))
	sb.WriteString(fmt.Sprintf("*Health Factor:* %s\n", FormatHealthFactor(pos.HealthFactor)))
	sb.WriteString(fmt.Sprintf("*Status:* %s\n\n", statusTitle(assessment.Status)))
	sb.WriteString(fmt.Sprintf("*Collateral:* %s\n", FormatUSD(pos.TotalCollateralUSD)))
	sb.WriteString(fmt.Sprintf("*Debt:* %s\n", FormatUSD(pos.TotalDebtUSD)))
	sb.WriteString(fmt.Sprintf("*Liq. Threshold:* %.0f%%\n\n", pos.LiquidationThreshold*100))
	sb.WriteString(fmt.Sprintf("_%s_", assessment.Message))

	if len(assessment.Recommendations) > 0 {
		sb.WriteString("\n\n*Suggested Actions:*")
		shown := assessment.Recommendations
		if len(shown) > 2 {
			shown = shown[:2]
		}
		for _, rec := range shown {
			sb.WriteString("\n• " + recommendationLine(rec))
		}
	}

	sb.WriteString(fmt.Sprintf("\n\n[Open %s](%s)", pos.Protocol, protocolURL(pos.Protocol)))
	return sb.String()
}

// FormatUnifiedHealth renders the portfolio overview for /status.
func FormatUnifiedHealth(unified core.UnifiedHealthScore) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s *Portfolio Health Overview*\n\n", statusEmoji(unified.OverallStatus)))
	sb.WriteString(fmt.Sprintf("*Overall Risk Score:* %.0f/100\n", unified.OverallScore))
	sb.WriteString(fmt.Sprintf("*Total Collateral:* %s\n", FormatUSD(unified.TotalCollateralUSD)))
	sb.WriteString(fmt.Sprintf("*Total Debt:* %s\n", FormatUSD(unified.TotalDebtUSD)))
	sb.WriteString(fmt.Sprintf("*Weighted HF:* %s\n\n", FormatHealthFactor(unified.WeightedHealthFactor)))
	sb.WriteString("*Protocol Breakdown:*")

	for protocol, hf := range unified.ProtocolBreakdown {
		emoji := "🔴"
		if hf > 1.5 {
			emoji = "🟢"
		} else if hf > 1.1 {
			emoji = "🟡"
		}
		sb.WriteString(fmt.Sprintf("\n%s %s: HF = %s", emoji, protocol, FormatHealthFactor(hf)))
	}

	if unified.WorstPosition != nil {
		sb.WriteString(fmt.Sprintf("\n\n⚠️ *Riskiest Position:* %s", unified.WorstPosition.Protocol))
	}
	return sb.String()
}

// FormatCascadeWarning renders a cascade alert for broadcast.
func FormatCascadeWarning(alert CascadeAlert) string {
	return fmt.Sprintf(`🌊 *Liquidation Cascade Alert*

*%d* large liquidations detected on *%s* in the last hour.

Total value liquidated: %s

This may indicate systemic risk. Consider reviewing your positions on this protocol.`,
		alert.LiquidationCount, alert.Protocol, FormatUSD(alert.TotalValueUSD))
}

// FormatWelcome is the /start and /help reply.
func FormatWelcome() string {
	return strings.TrimSpace(`
👋 *Welcome to DeFi Liquidation Alerter!*

I'll help you monitor your DeFi positions and alert you before liquidation.

*Commands:*
/add ` + "`<wallet> [label]`" + ` - Add a wallet to monitor
/remove ` + "`<wallet>`" + ` - Remove a wallet
/list - List tracked wallets
/status - View all your positions
/setthreshold ` + "`<warning> <critical>`" + ` - Set alert thresholds (defaults: 1.5 1.1)
/pause - Pause alerts
/resume - Resume alerts
/help - Show this help message

*Supported Protocols:*
• Aave V3 (Ethereum, Arbitrum, Base, Optimism)
• Compound V3 (Ethereum, Arbitrum, Base, Optimism)

Get started by adding a wallet with /add`)
}

func formatWalletAdded(address string) string {
	return fmt.Sprintf("✅ Wallet `%s` added successfully!\n\nUse /status to view positions.", shortAddress(address))
}

func formatWalletRemoved(address string) string {
	return fmt.Sprintf("✅ Wallet `%s` removed successfully.", shortAddress(address))
}

func formatNoWallets() string {
	return "You haven't added any wallets yet.\n\nUse /add `<wallet_address>` to start monitoring."
}

func formatNoPositions(address string) string {
	return fmt.Sprintf("No active positions found for `%s` on supported protocols.", shortAddress(address))
}

func formatStatusUnavailable(address string) string {
	return fmt.Sprintf("Position data for `%s` is not available right now. Please try again shortly.", shortAddress(address))
}

func formatThresholdsSet(warning, critical float64) string {
	return fmt.Sprintf("✅ Alert thresholds set: warning *%.2f*, critical *%.2f*.", warning, critical)
}

func formatAlertsPaused() string {
	return "⏸️ Alerts *paused*.\n\nUse /resume to start receiving alerts again."
}

func formatAlertsResumed() string {
	return "▶️ Alerts *resumed*.\n\nYou'll now receive alerts for positions at risk."
}
