package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Channel is the Telegram operator surface: it delivers approval
// notifications to the configured chat and accepts /approve, /reject,
// /cancel, and /approvals commands from allow-listed senders.
type Channel struct {
	cfg   *config.TelegramConfig
	coord *approval.Coordinator
	allow map[string]bool

	mu  sync.RWMutex
	bot *tgbotapi.BotAPI
}

// New creates a Telegram channel bound to the coordinator.
func New(cfg *config.TelegramConfig, coord *approval.Coordinator) *Channel {
	allow := make(map[string]bool)
	for _, id := range cfg.AllowFrom {
		allow[strings.TrimSpace(id)] = true
	}
	return &Channel{
		cfg:   cfg,
		coord: coord,
		allow: allow,
	}
}

// SetCoordinator binds the coordinator after construction. The channel is
// built before the coordinator because the coordinator takes the channel as
// its notifier; callers must bind before Start.
func (c *Channel) SetCoordinator(coord *approval.Coordinator) {
	c.coord = coord
}

func (c *Channel) Name() string { return "telegram" }

// Start connects the bot and runs the update loop until the context ends.
func (c *Channel) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(c.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}

	c.mu.Lock()
	c.bot = bot
	c.mu.Unlock()

	slog.Info("telegram bot connected", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			c.handleMessage(ctx, update.Message)
		}
	}
}

// Stop halts the update loop.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.RLock()
	bot := c.bot
	c.mu.RUnlock()
	if bot != nil {
		bot.StopReceivingUpdates()
	}
	return nil
}

// Notify sends an approval notification to the configured operator chat.
// Failures surface as errors for the coordinator to log; they never block
// the approval lifecycle.
func (c *Channel) Notify(ctx context.Context, agentID, message string) error {
	c.mu.RLock()
	bot := c.bot
	c.mu.RUnlock()
	if bot == nil {
		return fmt.Errorf("bot not initialized")
	}

	chatID, err := parseInt64(c.cfg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", c.cfg.ChatID, err)
	}

	tgMsg := tgbotapi.NewMessage(chatID, message)
	if _, err := bot.Send(tgMsg); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}

func (c *Channel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	senderID := fmt.Sprintf("%d", msg.From.ID)
	if len(c.allow) > 0 && !c.allow[senderID] {
		slog.Debug("unauthorized sender", "id", senderID)
		return
	}

	content := strings.TrimSpace(msg.Text)
	if content == "" {
		return
	}

	cmd, ok := parseCommand(content)
	if !ok {
		return
	}

	operator := strings.TrimSpace(msg.From.UserName)
	if operator == "" {
		operator = senderID
	}

	reply := c.execute(ctx, cmd, operator)
	if reply == "" {
		return
	}
	c.reply(msg.Chat.ID, reply)
}

func (c *Channel) execute(ctx context.Context, cmd command, operator string) string {
	switch cmd.name {
	case "help", "start":
		return usage
	case "approvals":
		return c.listPending()
	case "approve", "reject":
		result, err := c.coord.Resolve(ctx, cmd.id, approval.DecisionInput{
			Approved:   cmd.name == "approve",
			ApprovedBy: operator,
			Note:       cmd.rest,
		})
		if err != nil {
			slog.Error("telegram resolve failed", "approval_id", cmd.id, "error", err)
			return "Something went wrong, try again."
		}
		return formatResult(cmd.name, cmd.id, result)
	case "cancel":
		result, err := c.coord.Cancel(ctx, cmd.id, cmd.rest)
		if err != nil {
			slog.Error("telegram cancel failed", "approval_id", cmd.id, "error", err)
			return "Something went wrong, try again."
		}
		return formatResult(cmd.name, cmd.id, result)
	default:
		return ""
	}
}

func (c *Channel) listPending() string {
	pending, err := c.coord.List(approval.Query{Status: approval.StatusPending})
	if err != nil {
		slog.Error("telegram list failed", "error", err)
		return "Something went wrong, try again."
	}
	if len(pending) == 0 {
		return "No pending approvals."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending approval(s):\n", len(pending))
	for _, req := range pending {
		fmt.Fprintf(&b, "%s - agent %s, session %s, expires %s\n",
			req.ID, req.AgentID, req.SessionID, req.ExpiresAt.Format(time.RFC3339))
	}
	return b.String()
}

func (c *Channel) reply(chatID int64, text string) {
	c.mu.RLock()
	bot := c.bot
	c.mu.RUnlock()
	if bot == nil {
		return
	}
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Warn("telegram reply failed", "error", err)
	}
}

const usage = `Commands:
/approvals - list pending approval requests
/approve <id> [note] - approve a request
/reject <id> [note] - reject a request
/cancel <id> [reason] - cancel a request`

type command struct {
	name string
	id   string
	rest string
}

// parseCommand extracts an operator command from a message. Commands without
// a required id fall back to usage via the help command.
func parseCommand(text string) (command, bool) {
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}
	fields := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Strip the bot mention suffix Telegram adds in group chats.
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}

	switch name {
	case "help", "start", "approvals":
		return command{name: name}, true
	case "approve", "reject", "cancel":
		if len(fields) < 2 {
			return command{name: "help"}, true
		}
		return command{
			name: name,
			id:   fields[1],
			rest: strings.Join(fields[2:], " "),
		}, true
	default:
		return command{}, false
	}
}

func formatResult(action, id string, result approval.Result) string {
	switch result.Outcome {
	case approval.OutcomeOK:
		switch result.Request.Status {
		case approval.StatusApproved:
			return fmt.Sprintf("Approved %s. The session may resume.", id)
		case approval.StatusRejected:
			return fmt.Sprintf("Rejected %s.", id)
		case approval.StatusCancelled:
			return fmt.Sprintf("Cancelled %s (%s).", id, result.Request.CancellationReason)
		}
		return fmt.Sprintf("Done: %s %s.", action, id)
	case approval.OutcomeNotFound:
		return fmt.Sprintf("No approval request with id %s.", id)
	case approval.OutcomeAlreadyResolved:
		return fmt.Sprintf("%s was already settled: %s.", id, result.Detail)
	case approval.OutcomeAlreadyCancelled:
		return fmt.Sprintf("%s was already cancelled: %s.", id, result.Detail)
	case approval.OutcomeAlreadyTerminal:
		return fmt.Sprintf("%s is already settled: %s.", id, result.Detail)
	case approval.OutcomeExpired:
		return fmt.Sprintf("%s expired before a decision was made.", id)
	case approval.OutcomeNotExpired:
		return fmt.Sprintf("%s has not reached its deadline yet.", id)
	default:
		return fmt.Sprintf("%s: %s.", id, result.Outcome)
	}
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
