package tg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"registrar/internal/directory"
	"registrar/internal/domain"
	"registrar/internal/store"
	"registrar/pkg/tgbotapisfm"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	StateGlobal      = "global"
	StateIdle        = "idle"
	StateImportText  = "import_text"
	StateImportDraft = "import_draft"

	defaultRequestTimeout = 30 * time.Second
	draftTTL              = 24 * time.Hour
	maxFindResults        = 10
	maxMessageLength      = 4096
)

// Forcer is told about every successful write, so a mirror can catch up
// early.
type Forcer interface {
	ForceUpdate()
}

// Directory finds a student's details by class roll.
type Directory interface {
	Lookup(roll string) (directory.Student, bool)
}

type Options struct {
	VerifyBaseURL   string
	RegistrationFee int
	RequestTimeout  time.Duration
	Mirror          Forcer
	Directory       Directory // optional
}

// TGHandler serves the admin chat. It owns one store session; the bot
// handles updates one at a time, which is what the session needs.
type TGHandler struct {
	Store   *store.Store
	logger  *zap.Logger
	drafts  *gocache.Cache // user id -> Draft
	opts    Options
	timeout time.Duration
}

func NewTGHandler(st *store.Store, opts Options, logger *zap.Logger) *TGHandler {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &TGHandler{
		Store:   st,
		logger:  logger,
		drafts:  gocache.New(draftTTL, time.Hour),
		opts:    opts,
		timeout: timeout,
	}
}

func (h *TGHandler) StatesMap() map[string]tgbotapisfm.State {
	return map[string]tgbotapisfm.State{
		StateGlobal:      h.GlobalState(),
		StateIdle:        h.IdleState(),
		StateImportText:  h.ImportTextState(),
		StateImportDraft: h.ImportDraftState(),
	}
}

// GlobalState holds the commands that work in the middle of any flow.
func (h *TGHandler) GlobalState() tgbotapisfm.State {
	return tgbotapisfm.State{
		Global: true,
		MessageHandlers: map[string]tgbotapisfm.Handler{
			"/cancel": h.CancelHandler(),
			"/login":  h.LoginHandler(),
		},
	}
}

func (h *TGHandler) IdleState() tgbotapisfm.State {
	return tgbotapisfm.State{
		MessageHandlers: map[string]tgbotapisfm.Handler{
			"/start":   h.StartHandler(),
			"/help":    h.StartHandler(),
			"/stats":   h.StatsHandler(),
			"/reload":  h.ReloadHandler(),
			"/find":    h.FindHandler(),
			"/list":    h.ListHandler(),
			"/edit":    h.EditHandler(),
			"/link":    h.LinkHandler(),
			"/next":    h.NextHandler(),
			"/revoke":  h.RevokeHandler(true),
			"/restore": h.RevokeHandler(false),
			"/delete":  h.DeleteHandler(),
			"/import":  h.ImportHandler(),
			"/logout":  h.LogoutHandler(),
		},
		CatchAllFunc: &tgbotapisfm.Handler{
			Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
				return reply(bot, update, "Unknown command. Send /start for the list.")
			},
		},
	}
}

const helpText = `Registrar admin bot

/stats - totals and per-group counts
/reload - fetch the roster from GitHub
/find <id|roll|name> - look up registrants
/list [group] - registrants by group and gender
/edit <id> then "field: value" lines - change a registrant
/link <id> - verification link
/next <group> <gender> - preview the next id
/revoke <id>, /restore <id> - flip the revoked flag
/delete <id> - remove a registrant
/import - register from pasted text
/cancel - abort the current flow
/login <token> - store a GitHub token
/logout - forget the token and the cached roster`

func (h *TGHandler) StartHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			return reply(bot, update, helpText)
		},
	}
}

func (h *TGHandler) CancelHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			userID := update.SentFrom().ID
			h.drafts.Delete(draftKey(userID))
			bot.ResetUserState(userID)
			msg := tgbotapi.NewMessage(update.FromChat().ID, "Cancelled.")
			msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
			_, err := bot.SendMessage(msg)
			return err
		},
	}
}

func (h *TGHandler) LoginHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			token := strings.TrimSpace(update.Message.CommandArguments())
			// the token should not stay in the chat history
			if err := bot.Request(tgbotapi.NewDeleteMessage(update.Message.Chat.ID, update.Message.MessageID)); err != nil {
				h.logger.Warn("failed to delete login message", zap.Error(err))
			}
			if token == "" {
				return reply(bot, update, "Usage: /login <github token>")
			}

			ctx, cancel := h.context()
			defer cancel()
			if err := h.Store.Login(ctx, token); err != nil {
				return reply(bot, update, describeError(err))
			}
			return reply(bot, update, "Credential saved.")
		},
	}
}

func (h *TGHandler) LogoutHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			ctx, cancel := h.context()
			defer cancel()
			if err := h.Store.Logout(ctx); err != nil {
				h.logger.Error("logout failed", zap.Error(err))
				return reply(bot, update, "Logout was incomplete: "+err.Error())
			}
			return reply(bot, update, "Credential and cached roster removed.")
		},
	}
}

func (h *TGHandler) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.timeout)
}

// load makes sure the session holds a roster. It answers the user itself
// when nothing could be loaded.
func (h *TGHandler) load(ctx context.Context, bot *tgbotapisfm.Bot, update tgbotapi.Update, force bool) (store.Source, bool) {
	source, err := h.Store.Load(ctx, force)
	if err != nil {
		h.logger.Warn("roster load failed", zap.Error(err))
		_ = reply(bot, update, describeError(err))
		return source, false
	}
	return source, true
}

func (h *TGHandler) wrote() {
	if h.opts.Mirror != nil {
		h.opts.Mirror.ForceUpdate()
	}
}

func reply(bot *tgbotapisfm.Bot, update tgbotapi.Update, text string) error {
	_, err := bot.SendMessage(tgbotapi.NewMessage(update.FromChat().ID, text))
	return err
}

func draftKey(userID int64) string {
	return fmt.Sprint(userID)
}

// describeError turns a store error into a chat message.
func describeError(err error) string {
	var de *domain.Error
	detail := err.Error()
	if errors.As(err, &de) && de.Message != "" {
		detail = de.Message
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return "Invalid data: " + detail
	case errors.Is(err, domain.ErrAuth):
		return "GitHub rejected the credential, or none is stored. Send /login <token>."
	case errors.Is(err, domain.ErrPermission):
		return "The GitHub credential has no write access to the roster repository."
	case errors.Is(err, domain.ErrConflict):
		return "Conflict: " + detail + ". Send /reload and try again."
	case errors.Is(err, domain.ErrNotFound):
		return "Not found: " + detail
	case errors.Is(err, domain.ErrNetwork):
		return "GitHub is unreachable right now. Try again later."
	}
	return "Something went wrong: " + detail
}
