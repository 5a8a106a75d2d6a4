package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Alpha-M2/liquidation-alerter/internal/core"
)

type capturedMessage struct {
	chatID int64
	text   string
}

type mockChannel struct {
	sent    []capturedMessage
	failure error
}

func (m *mockChannel) Send(_ context.Context, chatID int64, text string) error {
	if m.failure != nil {
		return m.failure
	}
	m.sent = append(m.sent, capturedMessage{chatID: chatID, text: text})
	return nil
}

func (m *mockChannel) Close() error { return nil }

func testPosition(hf, collateral, debt float64) *core.Position {
	return &core.Position{
		Protocol:             "Aave V3 (Ethereum)",
		Chain:                "ethereum",
		Wallet:               "0xAbCd000000000000000000000000000000000000",
		TotalCollateralUSD:   collateral,
		TotalDebtUSD:         debt,
		LiquidationThreshold: 0.8,
		HealthFactor:         hf,
	}
}

func mustAssess(t *testing.T, pos *core.Position) core.HealthAssessment {
	t.Helper()
	assessment, err := core.AssessHealth(pos, 1.5, 1.1)
	if err != nil {
		t.Fatalf("AssessHealth: %v", err)
	}
	return assessment
}

func newTestAlerter(channel *mockChannel) *Alerter {
	return NewAlerter(nil, channel, nil)
}

func TestCheckAndAlertHealthyFirstSeenDoesNotFire(t *testing.T) {
	channel := &mockChannel{}
	a := newTestAlerter(channel)

	pos := testPosition(2.5, 10000, 3000)
	if a.CheckAndAlert(context.Background(), 42, pos, mustAssess(t, pos), nil) {
		t.Error("healthy first-seen position must not alert")
	}
	if len(channel.sent) != 0 {
		t.Errorf("expected no messages, got %d", len(channel.sent))
	}
}

func TestCheckAndAlertFirstWarningFires(t *testing.T) {
	channel := &mockChannel{}
	a := newTestAlerter(channel)

	pos := testPosition(1.3, 10000, 6500)
	if !a.CheckAndAlert(context.Background(), 42, pos, mustAssess(t, pos), nil) {
		t.Fatal("first non-healthy assessment should alert")
	}
	if len(channel.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(channel.sent))
	}
	if channel.sent[0].chatID != 42 {
		t.Errorf("chatID = %d, want 42", channel.sent[0].chatID)
	}
	if !strings.Contains(channel.sent[0].text, "⚠️ *WARNING* ⚠️") {
		t.Errorf("warning header missing:\n%s", channel.sent[0].text)
	}
}

func TestCheckAndAlertCooldownSuppressesRepeat(t *testing.T) {
	channel := &mockChannel{}
	a := newTestAlerter(channel)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }

	pos := testPosition(1.3, 10000, 6500)
	assessment := mustAssess(t, pos)
	if !a.CheckAndAlert(context.Background(), 42, pos, assessment, nil) {
		t.Fatal("first alert should fire")
	}

	a.now = func() time.Time { return base.Add(30 * time.Minute) }
	if a.CheckAndAlert(context.Background(), 42, pos, assessment, nil) {
		t.Error("unchanged warning within the 1h cooldown must be suppressed")
	}

	a.now = func() time.Time { return base.Add(61 * time.Minute) }
	if !a.CheckAndAlert(context.Background(), 42, pos, assessment, nil) {
		t.Error("warning should re-fire after the cooldown expires")
	}
	if len(channel.sent) != 2 {
		t.Errorf("expected 2 messages, got %d", len(channel.sent))
	}
}

func TestCheckAndAlertStatusWorsenedBypassesCooldown(t *testing.T) {
	channel := &mockChannel{}
	a := newTestAlerter(channel)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }

	warning := testPosition(1.3, 10000, 6500)
	a.CheckAndAlert(context.Background(), 42, warning, mustAssess(t, warning), nil)

	// One minute later, well inside every cooldown.
	a.now = func() time.Time { return base.Add(time.Minute) }
	critical := testPosition(1.05, 10000, 7600)
	if !a.CheckAndAlert(context.Background(), 42, critical, mustAssess(t, critical), nil) {
		t.Fatal("worsened status must alert immediately")
	}
	if !strings.Contains(channel.sent[1].text, "🚨 *CRITICAL ALERT* 🚨") {
		t.Errorf("critical header missing:\n%s", channel.sent[1].text)
	}
}

func TestCheckAndAlertSignificantDrop(t *testing.T) {
	channel := &mockChannel{}
	a := newTestAlerter(channel)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return base }

	pos := testPosition(1.4, 10000, 6000)
	a.CheckAndAlert(context.Background(), 42, pos, mustAssess(t, pos), nil)

	// Still WARNING, inside the cooldown, but HF fell 1.40 -> 1.20: a 14%
	// relative drop.
	a.now = func() time.Time { return base.Add(5 * time.Minute) }
	dropped := testPosition(1.2, 10000, 7000)
	if !a.CheckAndAlert(context.Background(), 42, dropped, mustAssess(t, dropped), nil) {
		t.Error("a >10% health factor drop should bypass the cooldown")
	}
}

func TestCheckAndAlertRapidDeteriorationFiresOnHealthy(t *testing.T) {
	channel := &mockChannel{}
	a := newTestAlerter(channel)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// 3.0 -> 2.2 over 40 minutes is a 26% trailing drop while still
	// comfortably healthy.
	a.now = func() time.Time { return base }
	first := testPosition(3.0, 10000, 2700)
	if a.CheckAndAlert(context.Background(), 42, first, mustAssess(t, first), nil) {
		t.Fatal("first healthy sample should not alert")
	}

	a.now = func() time.Time { return base.Add(40 * time.Minute) }
	second := testPosition(2.2, 10000, 3600)
	if !a.CheckAndAlert(context.Background(), 42, second, mustAssess(t, second), nil) {
		t.Fatal("rapid deterioration should fire even while healthy")
	}
	if !strings.Contains(channel.sent[0].text, "📉 *RAPID DETERIORATION* 📉") {
		t.Errorf("rapid deterioration header missing:\n%s", channel.sent[0].text)
	}
}

func TestCheckAndAlertFailedSendRetriesNextCycle(t *testing.T) {
	channel := &mockChannel{failure: errors.New("telegram down")}
	a := newTestAlerter(channel)

	pos := testPosition(1.05, 10000, 7600)
	assessment := mustAssess(t, pos)
	if a.CheckAndAlert(context.Background(), 42, pos, assessment, nil) {
		t.Fatal("failed send must report not-delivered")
	}

	// The record was not updated, so the next cycle fires again.
	channel.failure = nil
	if !a.CheckAndAlert(context.Background(), 42, pos, assessment, nil) {
		t.Error("alert should retry after a failed send")
	}
	if len(channel.sent) != 1 {
		t.Errorf("expected 1 delivered message, got %d", len(channel.sent))
	}
}

func TestCheckAndAlertGasWarningAppended(t *testing.T) {
	channel := &mockChannel{}
	a := newTestAlerter(channel)

	// 200k gas at 100 gwei with ETH at $3000 is $60, which is 6% of $1000
	// collateral.
	pos := testPosition(1.05, 1000, 760)
	gas := &GasInfo{GasPriceGwei: 100, ETHPriceUSD: 3000}
	if !a.CheckAndAlert(context.Background(), 42, pos, mustAssess(t, pos), gas) {
		t.Fatal("critical alert should fire")
	}
	if !strings.Contains(channel.sent[0].text, "⛽ Gas warning:") {
		t.Errorf("gas warning missing:\n%s", channel.sent[0].text)
	}

	// Large collateral: same gas cost is negligible, no warning line.
	pos2 := testPosition(1.05, 1_000_000, 760_000)
	if !a.CheckAndAlert(context.Background(), 43, pos2, mustAssess(t, pos2), gas) {
		t.Fatal("critical alert should fire")
	}
	if strings.Contains(channel.sent[1].text, "Gas warning") {
		t.Errorf("unexpected gas warning:\n%s", channel.sent[1].text)
	}
}

func TestClearHistory(t *testing.T) {
	channel := &mockChannel{}
	a := newTestAlerter(channel)

	pos := testPosition(1.3, 10000, 6500)
	assessment := mustAssess(t, pos)
	a.CheckAndAlert(context.Background(), 42, pos, assessment, nil)
	a.CheckAndAlert(context.Background(), 43, pos, assessment, nil)

	a.ClearHistory(42, pos.Wallet)
	if stats := a.Stats(); stats["alert_keys"] != 1 {
		t.Errorf("alert_keys = %d, want 1 after scoped clear", stats["alert_keys"])
	}

	// Cleared record means the next check fires first_alert again.
	if !a.CheckAndAlert(context.Background(), 42, pos, assessment, nil) {
		t.Error("cleared chat should alert again immediately")
	}

	a.ClearHistory(43, "")
	if stats := a.Stats(); stats["alert_keys"] != 1 {
		t.Errorf("alert_keys = %d, want 1 after chat-wide clear", stats["alert_keys"])
	}
}

func TestRemediationCostUSD(t *testing.T) {
	// 200,000 gas * 50 gwei * $2500/ETH = $25.
	got := remediationCostUSD(50, 2500)
	if got < 24.99 || got > 25.01 {
		t.Errorf("remediationCostUSD(50, 2500) = %v, want 25", got)
	}
}
