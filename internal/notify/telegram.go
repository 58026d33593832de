package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/models"
)

// TelegramNotifier pushes operator alerts to a Telegram chat. Fund-loss-risk
// failures get maximal visibility here, distinct from ordinary validation
// noise. With no token configured every call is a logged no-op, so callers
// never need to nil-check.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Logger
}

// New creates the notifier. An empty token disables sending.
func New(token string, chatID int64, logger *logrus.Logger) *TelegramNotifier {
	var b *bot.Bot
	if token != "" {
		var err error
		b, err = bot.New(token)
		if err != nil {
			logger.WithError(err).Warn("Telegram bot initialization failed, notifications disabled")
			b = nil
		}
	}
	return &TelegramNotifier{bot: b, chatID: chatID, logger: logger}
}

// NotifyFundLossRisk alerts the operator about a blocked trade that would have
// risked irrecoverable loss.
func (n *TelegramNotifier) NotifyFundLossRisk(ctx context.Context, route, message string) {
	text := fmt.Sprintf("🚨 FUND LOSS RISK BLOCKED\nRoute: %s\n%s", route, message)
	n.send(ctx, text)
}

// NotifySagaTerminal reports a finished execution.
func (n *TelegramNotifier) NotifySagaTerminal(ctx context.Context, saga *models.ExecutionSaga) {
	var text string
	switch saga.State {
	case models.SagaCompleted:
		text = fmt.Sprintf("✅ Execution %s completed\nRoute: %s\nProfit: %s (slippage %s)",
			saga.ID, saga.Path.Describe(), saga.ActualProfit.StringFixed(8), saga.Slippage.StringFixed(8))
	case models.SagaDepositTimeout:
		text = fmt.Sprintf("⏳ Execution %s: deposit unconfirmed\nRoute: %s\nWithdrawal: %s\nFunds are in flight, manual reconciliation needed.",
			saga.ID, saga.Path.Describe(), saga.WithdrawalID)
	case models.SagaValidationFailed:
		// Ordinary validation failures stay in the logs; fund-loss cases were
		// already alerted by the validator.
		return
	default:
		text = fmt.Sprintf("❌ Execution %s failed at state %s\nRoute: %s\nError: %s",
			saga.ID, saga.State, saga.Path.Describe(), saga.Error)
		if saga.WithdrawalID != "" {
			text += fmt.Sprintf("\nWithdrawal %s already submitted, reconcile manually.", saga.WithdrawalID)
		}
	}
	n.send(ctx, text)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) {
	if n.bot == nil || n.chatID == 0 {
		n.logger.WithField("text", text).Debug("Telegram disabled, alert logged only")
		return
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		n.logger.WithError(err).Warn("Failed to send Telegram notification")
	}
}
