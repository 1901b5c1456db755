// Package bot implements the Telegram admin conversation: activity control,
// destination registration and status reporting.
package bot

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/internal/service/telegram"
	"github.com/mack4pf/telegram-automated-signal/internal/usecase"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

const (
	cbAddPrefix    = "add_"
	cbRemovePrefix = "rm_"
	cbAddCustom    = "add_custom"
	cbStart        = "sys_start"
	cbStop         = "sys_stop"
	cbRefresh      = "refresh"
)

// Config for AdminBot.
type Config struct {
	AdminChatID    int64
	PollTimeout    int
	SessionTimeout time.Duration
	// PanelStrategies get one-tap add buttons on the panel.
	PanelStrategies []string
}

// AdminBot long-polls the Bot API and serves admin commands. When
// AdminChatID is set, updates from anyone else are ignored silently.
type AdminBot struct {
	bot      telegram.BotAPI
	registry *usecase.DestinationRegistry
	store    domrepo.StateStore
	journal  domrepo.Journal
	logger   *logger.Logger
	cfg      Config
	sessions *Sessions
}

func NewAdminBot(bot telegram.BotAPI, registry *usecase.DestinationRegistry, store domrepo.StateStore, journal domrepo.Journal, lgr *logger.Logger, cfg Config) *AdminBot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	if len(cfg.PanelStrategies) == 0 {
		cfg.PanelStrategies = []string{registry.DefaultStrategy(), "gold"}
	}
	return &AdminBot{
		bot:      bot,
		registry: registry,
		store:    store,
		journal:  journal,
		logger:   lgr,
		cfg:      cfg,
		sessions: NewSessions(cfg.SessionTimeout, time.Now),
	}
}

// Run blocks until ctx is cancelled.
func (b *AdminBot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := b.bot.GetUpdatesChan(u)

	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()

	b.logger.Info("admin bot started", logger.Int64("admin_chat_id", b.cfg.AdminChatID))
	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			b.logger.Info("admin bot stopped")
			return
		case <-sweep.C:
			b.sessions.Sweep()
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update. Panics are contained so one bad update
// does not stop polling.
func (b *AdminBot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("admin bot panic", logger.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.ChannelPost != nil:
		b.handleMessage(ctx, update.ChannelPost)
	}
}

func (b *AdminBot) authorized(chatID int64, from *tgbotapi.User) bool {
	if b.cfg.AdminChatID == 0 {
		return true
	}
	if chatID == b.cfg.AdminChatID {
		return true
	}
	return from != nil && from.ID == b.cfg.AdminChatID
}

func (b *AdminBot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Text == "" || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	if !b.authorized(chatID, msg.From) {
		b.logger.Debug("unauthorized admin message", logger.Int64("chat_id", chatID))
		return
	}

	if !msg.IsCommand() {
		b.handleSessionReply(ctx, chatID, strings.TrimSpace(msg.Text))
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		b.setActive(ctx, chatID, true)
	case "stop":
		b.setActive(ctx, chatID, false)
	case "status":
		b.sendStatus(ctx, chatID)
	case "admin":
		b.sendPanel(ctx, chatID)
	case "strategies":
		b.sendStrategies(ctx, chatID)
	case "add":
		if args == "" {
			b.sessions.Begin(chatID, ActionAwaitAddStrategy)
			b.reply(chatID, "✍️ Send the strategy name to add this chat to, or /cancel.")
			return
		}
		b.addChat(ctx, chatID, args)
	case "remove":
		if args == "" {
			b.sessions.Begin(chatID, ActionAwaitRemoveStrategy)
			b.reply(chatID, "✍️ Send the strategy name to remove this chat from, or /cancel.")
			return
		}
		b.removeChat(ctx, chatID, args)
	case "recent":
		b.sendRecent(ctx, chatID, args)
	case "cancel":
		if b.sessions.Cancel(chatID) {
			b.reply(chatID, "Cancelled.")
		}
	}
}

func (b *AdminBot) handleSessionReply(ctx context.Context, chatID int64, text string) {
	switch b.sessions.Take(chatID) {
	case ActionAwaitAddStrategy:
		b.addChat(ctx, chatID, text)
	case ActionAwaitRemoveStrategy:
		b.removeChat(ctx, chatID, text)
	}
}

func (b *AdminBot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil {
		return
	}
	chatID := q.Message.Chat.ID
	if !b.authorized(chatID, q.From) {
		return
	}

	if _, err := b.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Warn("answer callback failed", logger.Error(err))
	}

	data := q.Data
	switch {
	case data == cbAddCustom:
		b.sessions.Begin(chatID, ActionAwaitAddStrategy)
		b.reply(chatID, "✍️ Send the strategy name to add this chat to, or /cancel.")
	case data == cbStart:
		b.setActive(ctx, chatID, true)
	case data == cbStop:
		b.setActive(ctx, chatID, false)
	case data == cbRefresh:
		if _, err := b.bot.Request(tgbotapi.NewDeleteMessage(chatID, q.Message.MessageID)); err != nil {
			b.logger.Debug("delete panel failed", logger.Error(err))
		}
		b.sendPanel(ctx, chatID)
	case strings.HasPrefix(data, cbAddPrefix):
		b.addChat(ctx, chatID, strings.TrimPrefix(data, cbAddPrefix))
	case strings.HasPrefix(data, cbRemovePrefix):
		b.removeChat(ctx, chatID, strings.TrimPrefix(data, cbRemovePrefix))
	}
}

func (b *AdminBot) setActive(ctx context.Context, chatID int64, active bool) {
	if err := b.store.SetSystemActive(ctx, active); err != nil {
		b.logger.Error("set system state failed", logger.Error(err))
		b.reply(chatID, "❌ Could not change system state. Check logs.")
		return
	}
	b.logger.Info("system state changed", logger.Bool("active", active), logger.Int64("by", chatID))
	if active {
		b.reply(chatID, "🟢 <b>System started.</b> Signals will be relayed.")
	} else {
		b.reply(chatID, "🔴 <b>System stopped.</b> Incoming signals are ignored.")
	}
}

func (b *AdminBot) sendStatus(ctx context.Context, chatID int64) {
	active, err := b.store.SystemActive(ctx)
	state := "🟢 ACTIVE"
	if !active {
		state = "🔴 STOPPED"
	}
	store := "connected"
	if err != nil || !b.store.Healthy(ctx) {
		store = "unreachable"
	}
	b.reply(chatID, fmt.Sprintf("📊 <b>Status</b>\n\nSystem: <b>%s</b>\nStore: %s", state, store))
}

func (b *AdminBot) strategiesText(ctx context.Context) string {
	strategies, err := b.registry.ListStrategies(ctx)
	if err != nil {
		return "⚠️ Could not read strategies.\n"
	}
	if len(strategies) == 0 {
		return fmt.Sprintf("No strategies configured yet.\nDefault: '%s'\n", b.registry.DefaultStrategy())
	}

	names := make([]string, 0, len(strategies))
	for s := range strategies {
		names = append(names, s)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, s := range names {
		fmt.Fprintf(&sb, "• <b>%s</b>: %d channel(s)\n", html.EscapeString(strings.ToUpper(s)), strategies[s])
	}
	return sb.String()
}

func (b *AdminBot) sendStrategies(ctx context.Context, chatID int64) {
	b.reply(chatID, "📋 <b>Strategies</b>\n\n"+b.strategiesText(ctx))
}

func (b *AdminBot) sendPanel(ctx context.Context, chatID int64) {
	text := "🎛️ <b>Admin Control Panel</b>\n\nCurrent Configuration:\n" + b.strategiesText(ctx)

	var addRow []tgbotapi.InlineKeyboardButton
	for _, s := range b.cfg.PanelStrategies {
		addRow = append(addRow, tgbotapi.NewInlineKeyboardButtonData("➕ Add to "+strings.ToUpper(s), cbAddPrefix+s))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		addRow,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Custom strategy", cbAddCustom),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🟢 Start System", cbStart),
			tgbotapi.NewInlineKeyboardButtonData("🔴 Stop System", cbStop),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh Status", cbRefresh),
		),
	)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = kb
	if _, err := b.bot.Send(msg); err != nil {
		b.logger.Warn("send admin panel failed", logger.Error(err))
	}
}

func (b *AdminBot) addChat(ctx context.Context, chatID int64, strategy string) {
	name := strings.ToUpper(strings.TrimSpace(strategy))
	if err := b.registry.Register(ctx, strategy, strconv.FormatInt(chatID, 10)); err != nil {
		b.logger.Warn("register destination failed", logger.String("strategy", strategy), logger.Error(err))
		b.reply(chatID, fmt.Sprintf("❌ Failed to add channel to %s. Check logs.", html.EscapeString(name)))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Channel added to <b>%s</b> list!", html.EscapeString(name)))
}

func (b *AdminBot) removeChat(ctx context.Context, chatID int64, strategy string) {
	name := strings.ToUpper(strings.TrimSpace(strategy))
	if err := b.registry.Unregister(ctx, strategy, strconv.FormatInt(chatID, 10)); err != nil {
		b.logger.Warn("unregister destination failed", logger.String("strategy", strategy), logger.Error(err))
		b.reply(chatID, fmt.Sprintf("❌ Failed to remove channel from %s. Check logs.", html.EscapeString(name)))
		return
	}
	b.reply(chatID, fmt.Sprintf("🗑️ Channel removed from <b>%s</b> list.", html.EscapeString(name)))
}

func (b *AdminBot) sendRecent(ctx context.Context, chatID int64, strategy string) {
	if b.journal == nil {
		b.reply(chatID, "Journal is disabled.")
		return
	}
	if strategy == "" {
		strategy = b.registry.DefaultStrategy()
	}
	events, err := b.journal.Recent(ctx, models.NormalizeStrategy(strategy), 10)
	if err != nil {
		b.logger.Warn("journal read failed", logger.Error(err))
		b.reply(chatID, "❌ Could not read the journal.")
		return
	}
	if len(events) == 0 {
		b.reply(chatID, "No signals recorded yet.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🕑 <b>Recent %s signals</b>\n\n", html.EscapeString(strings.ToUpper(strategy)))
	for _, ev := range events {
		label := ev.Signal
		if ev.Outcome != "" {
			label = string(ev.Outcome)
		}
		fmt.Fprintf(&sb, "%s <b>%s</b> %s\n", ev.At.UTC().Format("01-02 15:04"), html.EscapeString(ev.Ticker), html.EscapeString(label))
	}
	b.reply(chatID, sb.String())
}

func (b *AdminBot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.bot.Send(msg); err != nil {
		b.logger.Warn("admin reply failed", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}
