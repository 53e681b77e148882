// Package notifier alerts operators about branches that failed to sync.
package notifier

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/user/submodsync/pkg/logger"
)

// maxErrorLen keeps a report well under Telegram's message size limit.
const maxErrorLen = 300

// Sender delivers Telegram messages. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Failure is one branch that did not sync.
type Failure struct {
	Branch string
	Mode   string
	Err    error
}

// Notifier sends failure reports to a Telegram chat.
type Notifier struct {
	sender Sender
	chatID int64
	repo   string
}

// NewNotifier creates a notifier reporting failures of repo to chatID.
func NewNotifier(sender Sender, chatID int64, repo string) *Notifier {
	return &Notifier{sender: sender, chatID: chatID, repo: repo}
}

// NewTelegramNotifier connects to the bot API with token. An empty token
// disables notifications and returns a nil notifier.
func NewTelegramNotifier(token string, chatID int64, repo string) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info().Str("username", bot.Self.UserName).Msg("Telegram bot authorized")
	return NewNotifier(bot, chatID, repo), nil
}

// ReportFailures sends one message listing every failure. It does nothing
// on a nil notifier or when there are no failures.
func (n *Notifier) ReportFailures(runID string, failures []Failure) error {
	if n == nil || len(failures) == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, n.buildMessage(runID, failures))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("send failure report: %w", err)
	}
	logger.Debug().Int64("chat_id", n.chatID).Int("failures", len(failures)).Msg("Sent failure report")
	return nil
}

func (n *Notifier) buildMessage(runID string, failures []Failure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ *%s*: submodule sync failed\n\n", escape(n.repo))
	for _, f := range failures {
		text := "unknown error"
		if f.Err != nil {
			text = f.Err.Error()
		}
		if len(text) > maxErrorLen {
			text = text[:maxErrorLen] + "…"
		}
		mode := ""
		if f.Mode != "" {
			mode = fmt.Sprintf(" (%s)", escape(f.Mode))
		}
		fmt.Fprintf(&b, "• `%s`%s: %s\n", f.Branch, mode, escape(text))
	}
	if runID != "" {
		fmt.Fprintf(&b, "\nRun: `%s`", runID)
	}
	return b.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
