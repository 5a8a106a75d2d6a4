package app

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Alpha-M2/liquidation-alerter/clients/telegram"
	"github.com/Alpha-M2/liquidation-alerter/internal/core"
	"github.com/Alpha-M2/liquidation-alerter/internal/storage"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// UserStore is the slice of the storage layer the command handler needs.
type UserStore interface {
	GetOrCreateUser(ctx context.Context, chatID int64) (*storage.User, error)
	AddWallet(ctx context.Context, userID int64, address, label string) (*storage.Wallet, error)
	RemoveWallet(ctx context.Context, userID int64, address string) (bool, error)
	ListWallets(ctx context.Context, userID int64) ([]storage.Wallet, error)
	SetPaused(ctx context.Context, userID int64, paused bool) error
	SetThresholds(ctx context.Context, userID int64, warning, critical float64) error
}

// CommandHandler long-polls Telegram for commands and serves them against
// the store and the engine.
type CommandHandler struct {
	logger  *zap.Logger
	bot     *telegram.Client
	store   UserStore
	engine  *Engine
	alerter *Alerter
}

func NewCommandHandler(logger *zap.Logger, bot *telegram.Client, store UserStore, engine *Engine, alerter *Alerter) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{
		logger:  logger,
		bot:     bot,
		store:   store,
		engine:  engine,
		alerter: alerter,
	}
}

// Run polls for updates until ctx is cancelled.
func (h *CommandHandler) Run(ctx context.Context) {
	if !h.bot.Configured() {
		h.logger.Warn("telegram not configured, command handler disabled")
		return
	}
	h.logger.Info("command handler started")

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := h.bot.Updates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Warn("telegram update poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil || !strings.HasPrefix(update.Message.Text, "/") {
				continue
			}
			h.handleCommand(ctx, update.Message.Chat.ID, update.Message.Text)
		}
	}
}

func (h *CommandHandler) handleCommand(ctx context.Context, chatID int64, text string) {
	fields := strings.Fields(text)
	command := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	args := fields[1:]

	var reply string
	switch command {
	case "/start", "/help":
		reply = FormatWelcome()
	case "/add":
		reply = h.handleAdd(ctx, chatID, args)
	case "/remove":
		reply = h.handleRemove(ctx, chatID, args)
	case "/list":
		reply = h.handleList(ctx, chatID)
	case "/status":
		reply = h.handleStatus(ctx, chatID, args)
	case "/pause":
		reply = h.handlePause(ctx, chatID, true)
	case "/resume":
		reply = h.handlePause(ctx, chatID, false)
	case "/setthreshold":
		reply = h.handleSetThreshold(ctx, chatID, args)
	default:
		reply = "Unknown command. Use /help to see what I can do."
	}

	if err := h.bot.Send(ctx, chatID, reply); err != nil {
		h.logger.Warn("command reply failed",
			zap.Int64("chatID", chatID),
			zap.String("command", command),
			zap.Error(err),
		)
	}
}

func (h *CommandHandler) handleAdd(ctx context.Context, chatID int64, args []string) string {
	if len(args) < 1 {
		return "Usage: /add `<wallet_address> [label]`"
	}
	address := args[0]
	if !addressPattern.MatchString(address) {
		return fmt.Sprintf("`%s` doesn't look like an Ethereum address.", telegram.EscapeMarkdown(address))
	}
	label := strings.Join(args[1:], " ")

	user, err := h.store.GetOrCreateUser(ctx, chatID)
	if err != nil {
		h.logger.Error("get user failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	if _, err := h.store.AddWallet(ctx, user.ID, address, label); err != nil {
		h.logger.Error("add wallet failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	return formatWalletAdded(address)
}

func (h *CommandHandler) handleRemove(ctx context.Context, chatID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /remove `<wallet_address>`"
	}
	address := args[0]

	user, err := h.store.GetOrCreateUser(ctx, chatID)
	if err != nil {
		h.logger.Error("get user failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	removed, err := h.store.RemoveWallet(ctx, user.ID, address)
	if err != nil {
		h.logger.Error("remove wallet failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	if !removed {
		return fmt.Sprintf("`%s` is not being tracked.", shortAddress(address))
	}

	// Drop dispatch and confirmation state so a re-added wallet starts
	// clean.
	h.alerter.ClearHistory(chatID, address)
	h.engine.Forget(address)
	return formatWalletRemoved(address)
}

func (h *CommandHandler) handleList(ctx context.Context, chatID int64) string {
	user, err := h.store.GetOrCreateUser(ctx, chatID)
	if err != nil {
		h.logger.Error("get user failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	wallets, err := h.store.ListWallets(ctx, user.ID)
	if err != nil {
		h.logger.Error("list wallets failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	if len(wallets) == 0 {
		return formatNoWallets()
	}

	var sb strings.Builder
	sb.WriteString("*Tracked wallets:*")
	for _, w := range wallets {
		sb.WriteString(fmt.Sprintf("\n• `%s`", shortAddress(w.Address)))
		if w.Label != "" {
			sb.WriteString(" — " + telegram.EscapeMarkdown(w.Label))
		}
	}
	return sb.String()
}

func (h *CommandHandler) handleStatus(ctx context.Context, chatID int64, args []string) string {
	user, err := h.store.GetOrCreateUser(ctx, chatID)
	if err != nil {
		h.logger.Error("get user failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}

	var wallets []storage.Wallet
	if len(args) == 1 {
		wallets = []storage.Wallet{{Address: args[0]}}
	} else {
		wallets, err = h.store.ListWallets(ctx, user.ID)
		if err != nil {
			h.logger.Error("list wallets failed", zap.Int64("chatID", chatID), zap.Error(err))
			return "Something went wrong, please try again."
		}
		if len(wallets) == 0 {
			return formatNoWallets()
		}
	}

	var sections []string
	for _, wallet := range wallets {
		positions := h.engine.DetailedPositionsForWallet(ctx, wallet.Address)
		if len(positions) == 0 {
			sections = append(sections, formatNoPositions(wallet.Address))
			continue
		}

		for _, pos := range positions {
			assessment, err := core.AssessHealth(pos, user.WarningThreshold, user.CriticalThreshold)
			if err != nil {
				h.logger.Warn("status assessment failed",
					zap.String("wallet", wallet.Address),
					zap.String("protocol", pos.Protocol),
					zap.Error(err),
				)
				sections = append(sections, formatStatusUnavailable(wallet.Address))
				continue
			}
			sections = append(sections, FormatPositionStatus(pos, assessment))
		}

		if len(positions) > 1 {
			sections = append(sections, FormatUnifiedHealth(core.AggregateHealth(positions)))
		}
	}
	return strings.Join(sections, "\n\n———\n\n")
}

func (h *CommandHandler) handlePause(ctx context.Context, chatID int64, paused bool) string {
	user, err := h.store.GetOrCreateUser(ctx, chatID)
	if err != nil {
		h.logger.Error("get user failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	if err := h.store.SetPaused(ctx, user.ID, paused); err != nil {
		h.logger.Error("set paused failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	if paused {
		return formatAlertsPaused()
	}
	return formatAlertsResumed()
}

func (h *CommandHandler) handleSetThreshold(ctx context.Context, chatID int64, args []string) string {
	if len(args) != 2 {
		return "Usage: /setthreshold `<warning> <critical>`, e.g. /setthreshold 1.5 1.1"
	}
	warning, err1 := strconv.ParseFloat(args[0], 64)
	critical, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil || warning <= 0 || critical <= 0 {
		return "Thresholds must be positive numbers, e.g. /setthreshold 1.5 1.1"
	}
	if critical >= warning {
		return "The critical threshold should be below the warning threshold."
	}

	user, err := h.store.GetOrCreateUser(ctx, chatID)
	if err != nil {
		h.logger.Error("get user failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	if err := h.store.SetThresholds(ctx, user.ID, warning, critical); err != nil {
		h.logger.Error("set thresholds failed", zap.Int64("chatID", chatID), zap.Error(err))
		return "Something went wrong, please try again."
	}
	return formatThresholdsSet(warning, critical)
}
