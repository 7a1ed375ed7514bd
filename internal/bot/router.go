package bot

import (
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/handlers"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/bot/keyboard"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/middleware"
)

// Router picks one handler per update and runs it through the middleware
// chain. Lookup order for text is command, menu label, conversation step,
// then the default handler.
type Router struct {
	dispatcher *Dispatcher
	log        *slog.Logger

	mu        sync.RWMutex
	commands  map[string]handlers.Handler
	callbacks map[string]handlers.CallbackHandler
	labels    map[string]string
	chain     []handlers.Middleware
	fallback  handlers.Handler
}

func NewRouter(dispatcher *Dispatcher, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		dispatcher: dispatcher,
		log:        log,
		commands:   map[string]handlers.Handler{},
		callbacks:  map[string]handlers.CallbackHandler{},
		labels:     map[string]string{},
	}
}

func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	r.commands[cmd] = h
	r.mu.Unlock()
}

func (r *Router) RegisterCallback(unique string, h handlers.CallbackHandler) {
	r.mu.Lock()
	r.callbacks[unique] = h
	r.mu.Unlock()
}

// RegisterAlias makes a reply keyboard label behave like cmd. Blank labels
// are ignored.
func (r *Router) RegisterAlias(label, cmd string) {
	if label = strings.TrimSpace(label); label == "" {
		return
	}
	r.mu.Lock()
	r.labels[label] = cmd
	r.mu.Unlock()
}

// Use appends mw. The first registered middleware is the outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	r.chain = append(r.chain, mw)
	r.mu.Unlock()
}

func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// Route handles text and callback updates.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}
	if cb := c.Callback(); cb != nil {
		return r.routeCallback(c, cb)
	}

	h := r.textHandler(c)
	if h == nil {
		return nil
	}
	return r.wrap(h)(c)
}

// CommandFor names the command a text update maps to, following menu
// labels. It returns "" for callbacks and free text.
func (r *Router) CommandFor(c telebot.Context) string {
	if c == nil || c.Callback() != nil {
		return ""
	}
	text := strings.TrimSpace(c.Text())
	if strings.HasPrefix(text, "/") {
		return middleware.CommandName(c)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.labels[text]
}

func (r *Router) routeCallback(c telebot.Context, cb *telebot.Callback) error {
	unique := cb.Unique
	if unique == "" {
		var err error
		if unique, _, err = keyboard.DecodeCallback(cb.Data); err != nil {
			r.log.Info("ignoring callback without data")
			return nil
		}
	}

	r.mu.RLock()
	h := r.callbacks[unique]
	r.mu.RUnlock()

	if h == nil {
		r.log.Info("no callback handler found", slog.String("unique", unique))
		return c.Respond()
	}
	return r.wrap(h)(c)
}

func (r *Router) textHandler(c telebot.Context) handlers.Handler {
	text := strings.TrimSpace(c.Text())

	r.mu.RLock()
	var h handlers.Handler
	if strings.HasPrefix(text, "/") {
		h = r.commands[middleware.CommandName(c)]
	} else if cmd, ok := r.labels[text]; ok {
		h = r.commands[cmd]
	}
	fallback := r.fallback
	r.mu.RUnlock()

	if h != nil {
		return h
	}

	step, err := r.dispatcher.Resolve(c)
	switch {
	case err != nil:
		return func(telebot.Context) error { return err }
	case step != nil:
		return step
	default:
		return fallback
	}
}

func (r *Router) wrap(h handlers.Handler) handlers.Handler {
	r.mu.RLock()
	chain := append([]handlers.Middleware(nil), r.chain...)
	r.mu.RUnlock()

	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}
