// Package bot is the Telegram front-end: the same session and node status
// the web dashboard shows, one session per chat.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/handlers"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/keyboard"
	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/idempotency"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/middleware"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/ratelimit"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/state"
	"github.com/NoaSEED/juno-starknet-node-setup/pkg/config"
)

const updateDedupeTTL = 24 * time.Hour

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot     *telebot.Bot
	log         *slog.Logger
	deps        *handlers.Deps
	router      *Router
	dispatcher  *Dispatcher
	errHandler  *apperrors.Handler
	rateLimitMw *middleware.RateLimitMiddleware
	idempotency idempotency.Manager
}

// New builds a telegram bot instance configured according to the application settings.
// guard and idem may be nil.
func New(
	cfg config.BotConfig,
	deps *handlers.Deps,
	errHandler *apperrors.Handler,
	guard *ratelimit.Guard,
	idem idempotency.Manager,
) (*Bot, error) {
	settings := telebot.Settings{
		Token:     cfg.Token,
		ParseMode: telebot.ModeHTML,
	}

	if cfg.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen: cfg.WebhookListen,
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return newBot(tb, deps, errHandler, guard, idem), nil
}

func newBot(tb *telebot.Bot, deps *handlers.Deps, errHandler *apperrors.Handler, guard *ratelimit.Guard, idem idempotency.Manager) *Bot {
	log := deps.Log
	if log == nil {
		log = slog.Default()
		deps.Log = log
	}
	if deps.Keyboard == nil {
		deps.Keyboard = keyboard.NewBuilder(log)
	}

	dispatcher := NewDispatcher(deps.FSM, log)

	b := &Bot{
		telebot:     tb,
		log:         log,
		deps:        deps,
		router:      NewRouter(dispatcher, log),
		dispatcher:  dispatcher,
		errHandler:  errHandler,
		idempotency: idem,
	}

	if guard != nil {
		b.rateLimitMw = middleware.NewRateLimitMiddleware(guard, map[string]string{
			CommandStatus:  ratelimit.CommandStatus,
			CommandRefresh: ratelimit.CommandRefresh,
			"callback:" + keyboard.UniqueStatusRefresh: ratelimit.CommandRefresh,
		}, b.exemptFromRateLimit, log)
	}

	b.setupRouter()
	b.registerTelebotHandlers()

	return b
}

// Start runs the telegram bot event loop. It blocks until Stop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func (b *Bot) setupRouter() {
	d := b.deps

	b.router.Use(RecoveryMiddleware(b.log, b.errHandler, d.Translator))
	b.router.Use(middleware.UpdateDedupe(b.idempotency, updateDedupeTTL, b.log))
	b.router.Use(ErrorHandlingMiddleware(b.errHandler, d.Translator))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(middleware.Metrics)
	if b.rateLimitMw != nil {
		b.router.Use(b.rateLimitMw.Handle)
	}

	b.router.RegisterCommand(CommandStart, handlers.NewStartHandler(d))
	b.router.RegisterCommand(CommandHelp, handlers.NewHelpHandler(d))
	b.router.RegisterCommand(CommandLogin, handlers.NewLoginHandler(d))
	b.router.RegisterCommand(CommandLogout, handlers.NewLogoutHandler(d))
	b.router.RegisterCommand(CommandWhoami, handlers.NewWhoamiHandler(d))
	b.router.RegisterCommand(CommandStatus, handlers.NewStatusHandler(d))
	b.router.RegisterCommand(CommandRefresh, handlers.NewRefreshHandler(d))
	b.router.RegisterCommand(CommandCancel, handlers.NewCancelHandler(d))

	b.router.RegisterCallback(keyboard.UniqueStatusRefresh, handlers.NewRefreshCallback(d))
	b.router.RegisterCallback(keyboard.UniqueLoginCancel, handlers.NewLoginCancelCallback(d))

	b.dispatcher.RegisterStateHandler(state.StateLoginUsername, handlers.NewLoginUsernameHandler(d))
	b.dispatcher.RegisterStateHandler(state.StateLoginPassword, handlers.NewLoginPasswordHandler(d))

	b.router.SetDefault(handlers.NewUnknownHandler(d))

	menu := map[string]string{
		keyboard.MenuLogin:   CommandLogin,
		keyboard.MenuStatus:  CommandStatus,
		keyboard.MenuRefresh: CommandRefresh,
		keyboard.MenuWhoami:  CommandWhoami,
		keyboard.MenuLogout:  CommandLogout,
		keyboard.MenuHelp:    CommandHelp,
	}
	for _, lang := range d.I18n.Languages() {
		t := d.I18n.Translator(lang)
		for key, cmd := range menu {
			b.router.RegisterAlias(t.T(key), cmd)
		}
	}
}

// exemptFromRateLimit keeps the login flow unthrottled: /login, its menu
// label, and every step of the login conversation.
func (b *Bot) exemptFromRateLimit(c telebot.Context) bool {
	if cb := c.Callback(); cb != nil {
		return cb.Unique == keyboard.UniqueLoginCancel
	}

	if b.router.CommandFor(c) == CommandLogin {
		return true
	}

	current, err := b.dispatcher.CurrentState(context.Background(), handlers.ChatID(c))
	if err != nil {
		return false
	}
	return current == state.StateLoginUsername || current == state.StateLoginPassword
}

func (b *Bot) registerTelebotHandlers() {
	if b.telebot == nil {
		return
	}

	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)

	commands := []telebot.Command{
		{Text: CommandStatus[1:], Description: "JUNO node status"},
		{Text: CommandRefresh[1:], Description: "Refresh node status"},
		{Text: CommandLogin[1:], Description: "Sign in"},
		{Text: CommandWhoami[1:], Description: "Show your account"},
		{Text: CommandLogout[1:], Description: "Sign out"},
		{Text: CommandHelp[1:], Description: "List commands"},
	}
	if b.telebot.Token != "" {
		if err := b.telebot.SetCommands(commands); err != nil {
			b.log.Warn("failed to publish bot commands", slog.Any("error", err))
		}
	}
}
