package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"khamsat_bot/internal/access"
	"khamsat_bot/internal/classify"
	"khamsat_bot/internal/model"
	"khamsat_bot/internal/preference"
	"khamsat_bot/internal/seenset"
	"khamsat_bot/internal/source"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Fetcher returns the current page of requests for /latest.
type Fetcher interface {
	Fetch(ctx context.Context) (source.Result, error)
}

// Settings reads and writes the monitoring toggle.
type Settings interface {
	IsMonitoringActive(ctx context.Context) (bool, error)
	SetMonitoringActive(ctx context.Context, active bool) error
}

// Deps groups the services a Bot works with.
type Deps struct {
	Settings    Settings
	Access      *access.Registry
	Preferences *preference.Service
	Seen        *seenset.Set
	Source      Fetcher
	Taxonomy    *classify.Taxonomy
}

// Bot is the Telegram front end: it answers commands, drives the category
// keyboard and the approval workflow, and delivers alerts.
type Bot struct {
	api      telegramAPI
	settings Settings
	access   *access.Registry
	prefs    *preference.Service
	seen     *seenset.Set
	source   Fetcher
	tax      *classify.Taxonomy
	log      *slog.Logger
	started  time.Time
}

// New creates a Bot with the given Telegram token.
func New(token string, deps Deps, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized on telegram", "username", api.Self.UserName)
	return newWithAPI(api, deps, log), nil
}

func newWithAPI(api telegramAPI, deps Deps, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		settings: deps.Settings,
		access:   deps.Access,
		prefs:    deps.Preferences,
		seen:     deps.Seen,
		source:   deps.Source,
		tax:      deps.Taxonomy,
		log:      log,
		started:  time.Now(),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update", "update_id", update.UpdateID, "panic", r)
		}
	}()

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	b.handleCommand(ctx, update.Message)
}

// SendAlert delivers one formatted alert message. Unlike reply it reports
// the failure to the caller.
func (b *Bot) SendAlert(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send alert to %d: %w", chatID, err)
	}
	return nil
}

// FormatAlert renders new items into alert messages using the bot's taxonomy.
func (b *Bot) FormatAlert(items []model.Item) []string {
	return FormatAlert(b.tax, items)
}

// Notify sends a plain HTML message, logging failures.
func (b *Bot) Notify(chatID int64, text string) {
	b.reply(chatID, text)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send keyboard", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyChunks(chatID int64, chunks []string) {
	for _, c := range chunks {
		b.reply(chatID, c)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	if !b.checkAccess(ctx, msg) {
		return
	}

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdStatus:
		b.handleStatus(ctx, chatID)
	case cmdLatest:
		b.handleLatest(ctx, chatID)
	case cmdCategories:
		b.handleCategories(ctx, chatID)
	default:
		if !isAdminCommand(cmd) {
			b.reply(chatID, msgUnknownCommand)
			return
		}
		if !b.access.IsAdmin(chatID) {
			b.reply(chatID, msgAdminOnly)
			return
		}
		b.handleAdminCommand(ctx, chatID, cmd, args)
	}
}

func (b *Bot) handleAdminCommand(ctx context.Context, chatID int64, cmd, args string) {
	switch cmd {
	case cmdMonitor:
		b.handleMonitor(ctx, chatID, args)
	case cmdPending:
		b.handlePending(ctx, chatID)
	case cmdApprove:
		b.handleDecision(ctx, chatID, args, true)
	case cmdReject:
		b.handleDecision(ctx, chatID, args, false)
	case cmdRemove:
		b.handleRemove(ctx, chatID, args)
	case cmdStats:
		b.handleStats(ctx, chatID)
	case cmdSubscribers:
		b.handleSubscribers(ctx, chatID)
	case cmdResetSeen:
		b.handleResetSeen(ctx, chatID)
	}
}
