// Package tgbotapisfm is a small finite state machine on top of
// telegram-bot-api. Every user has a current state kept in a go-cache with
// expiration; updates are routed to the handlers of that state, after the
// global states had their chance.
package tgbotapisfm

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type Config struct {
	Token           string           // bot token
	APIEndpoint     string           // optional, e.g. "http://localhost/bot%s/%s"
	Expiration      time.Duration    // how long a user state is kept
	CleanupInterval time.Duration    // cache janitor interval
	States          map[string]State // state name -> state
	DefaultState    string           // used when a user has no state yet
	SendInterval    time.Duration    // optional, see DefaultSendInterval
}

type Bot struct {
	BotAPI        *tgbotapi.BotAPI // exported for direct API access
	expiration    time.Duration
	limiter       *Limiter
	cache         *gocache.Cache // user id -> state name
	logger        *zap.Logger
	states        map[string]State
	globalStates  []*State
	defaultState  string
	updateHandler HandlerFunc // called for every update before routing
	mu            sync.RWMutex
	statesMu      sync.RWMutex

	IgnoreList []int64 // users and chats that are never served
	AllowList  []int64 // when non-empty, only these users are served
}

// NewBot creates the bot. logger is optional; without it the bot logs
// nothing.
func NewBot(config Config, ignoreList []int64, logger ...*zap.Logger) (*Bot, error) {
	if config.States == nil {
		config.States = make(map[string]State)
	}
	if config.Expiration < 0 {
		return nil, NewValidationError(ErrNegativeExpiration, config.Expiration)
	}
	if config.CleanupInterval < 0 {
		return nil, NewValidationError(ErrNegativeCleanup, config.CleanupInterval)
	}
	if config.Token == "" {
		return nil, ErrInvalidToken
	}
	if config.DefaultState != "" {
		if _, ok := config.States[config.DefaultState]; !ok {
			return nil, NewValidationError(ErrStateHandlerNotFound, config.DefaultState)
		}
	}

	var (
		botAPI *tgbotapi.BotAPI
		err    error
	)
	if config.APIEndpoint != "" {
		botAPI, err = tgbotapi.NewBotAPIWithAPIEndpoint(config.Token, config.APIEndpoint)
	} else {
		botAPI, err = tgbotapi.NewBotAPI(config.Token)
	}
	if err != nil {
		return nil, NewValidationError(ErrTelegramInit, err)
	}

	zapLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		zapLogger = logger[0]
	}
	limiter := NewLimiter()
	if config.SendInterval > 0 {
		limiter = NewLimiterWithInterval(config.SendInterval)
	}

	app := &Bot{
		BotAPI:       botAPI,
		limiter:      limiter,
		cache:        gocache.New(config.Expiration, config.CleanupInterval),
		expiration:   config.Expiration,
		logger:       zapLogger,
		defaultState: config.DefaultState,
		IgnoreList:   ignoreList,
	}
	app.ReplaceStates(config.States)
	return app, nil
}

// SetLogger must be called before Start.
func (b *Bot) SetLogger(logger *zap.Logger) error {
	if !b.mu.TryRLock() {
		return NewValidationError(ErrBotStarted, "logger")
	}
	defer b.mu.RUnlock()

	b.logger = logger
	return nil
}

// SetUpdateHandler must be called before Start.
func (b *Bot) SetUpdateHandler(handler HandlerFunc) error {
	if !b.mu.TryRLock() {
		return NewValidationError(ErrBotStarted, "update handler")
	}
	defer b.mu.RUnlock()

	b.updateHandler = handler
	return nil
}

// Start handles updates in a goroutine. The returned channel yields the
// error that stopped the loop, if any, and is closed when the loop ends.
func (b *Bot) Start(offset, timeout int) chan error {
	errChan := make(chan error, 1)

	if !b.mu.TryLock() {
		b.logger.Warn("bot is already running")
		errChan <- ErrBotStarted
		close(errChan)
		return errChan
	}

	b.logger.Info("starting bot", zap.String("username", b.BotAPI.Self.UserName))
	go func() {
		if err := b.HandleUpdates(offset, timeout); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	return errChan
}

// Stop stops receiving updates. It must follow a successful Start.
func (b *Bot) Stop() {
	b.BotAPI.StopReceivingUpdates()
	b.mu.Unlock()
	b.logger.Info("stopped receiving updates")
}

// HandleUpdates polls Telegram and handles updates one at a time.
func (b *Bot) HandleUpdates(offset, timeout int) error {
	u := tgbotapi.NewUpdate(offset)
	u.Timeout = timeout
	updates := b.BotAPI.GetUpdatesChan(u)
	b.logger.Info("handling updates")

	for update := range updates {
		if err := b.HandleUpdate(update); err != nil {
			return err
		}
	}
	return nil
}

// HandleUpdate routes one update: the update handler first, then the global
// states, then the user's own state.
func (b *Bot) HandleUpdate(update tgbotapi.Update) error {
	if b.updateHandler != nil {
		if err := b.updateHandler(b, update); err != nil {
			b.logger.Error("update handler failed", zap.Error(err))
			return fmt.Errorf("update handler error: %w", err)
		}
	}

	from := update.SentFrom()
	if from == nil || !b.Serves(from.ID) {
		return nil
	}
	if chat := update.FromChat(); chat != nil && slices.Contains(b.IgnoreList, chat.ID) {
		return nil
	}

	globalStateFound, err := b.HandleGlobalStates(update)
	if err != nil {
		b.logger.Error("failed to handle global state", zap.Error(err))
		return fmt.Errorf("global state error: %w", err)
	}
	if globalStateFound {
		return nil
	}

	userStateName, err := b.GetUserState(from.ID)
	if err != nil {
		if b.defaultState == "" {
			b.logger.Debug("user has no state", zap.Int64("user_id", from.ID))
			return nil
		}
		userStateName = b.defaultState
	}

	b.statesMu.RLock()
	userState, ok := b.states[userStateName]
	b.statesMu.RUnlock()
	if !ok {
		b.logger.Error("state not found in states map", zap.String("state", userStateName))
		return fmt.Errorf("state %s not found", userStateName)
	}

	if _, err := b.SelectHandler(update, &userState); err != nil {
		b.logger.Error("failed to handle user state", zap.Error(err))
		return fmt.Errorf("handle user state error: %w", err)
	}
	return nil
}

// Serves reports whether updates from userID are handled.
func (b *Bot) Serves(userID int64) bool {
	if slices.Contains(b.IgnoreList, userID) {
		return false
	}
	return len(b.AllowList) == 0 || slices.Contains(b.AllowList, userID)
}

func (b *Bot) GetUserState(userID int64) (string, error) {
	v, ok := b.cache.Get(strconv.FormatInt(userID, 10))
	if !ok {
		return "", ErrStateNotFound
	}
	userState, ok := v.(string)
	if !ok {
		return "", ErrInvalidStateType
	}
	return userState, nil
}

func (b *Bot) SetUserState(userID int64, state string) error {
	b.statesMu.RLock()
	_, ok := b.states[state]
	b.statesMu.RUnlock()

	if !ok {
		return NewValidationError(ErrStateHandlerNotFound, state)
	}

	b.cache.Set(strconv.FormatInt(userID, 10), state, b.expiration)
	return nil
}

// ResetUserState sends the user back to the default state.
func (b *Bot) ResetUserState(userID int64) {
	b.cache.Delete(strconv.FormatInt(userID, 10))
}

// SetUserStateImmediate switches the user to state, runs its entrance
// handler and handles update in the new state right away.
func (b *Bot) SetUserStateImmediate(userID int64, state string, update tgbotapi.Update) error {
	if err := b.SetUserState(userID, state); err != nil {
		return err
	}

	b.statesMu.RLock()
	newState, ok := b.states[state]
	b.statesMu.RUnlock()
	if !ok {
		return nil
	}

	if newState.AtEntranceFunc != nil {
		if err := newState.AtEntranceFunc.Handle(b, update); err != nil {
			b.logger.Error("failed to handle entrance function", zap.Error(err))
		}
	}
	if _, err := b.SelectHandler(update, &newState); err != nil {
		b.logger.Error("failed to handle immediate reaction", zap.Error(err))
	}
	return nil
}

// EnterState switches the user to state and runs only its entrance handler.
func (b *Bot) EnterState(userID int64, state string, update tgbotapi.Update) error {
	if err := b.SetUserState(userID, state); err != nil {
		return err
	}
	b.statesMu.RLock()
	newState := b.states[state]
	b.statesMu.RUnlock()
	if newState.AtEntranceFunc == nil {
		return nil
	}
	return newState.AtEntranceFunc.Handle(b, update)
}

// HandleGlobalStates reports whether one of the global states handled
// update.
func (b *Bot) HandleGlobalStates(update tgbotapi.Update) (bool, error) {
	b.statesMu.RLock()
	globals := b.globalStates
	b.statesMu.RUnlock()

	for _, state := range globals {
		handlerIsFound, err := b.selectHandler(update, state, false)
		if err != nil {
			b.logger.Error("failed to handle global state", zap.Error(err))
			continue
		}
		if handlerIsFound {
			return true, nil
		}
	}
	return false, nil
}

func (b *Bot) SelectHandler(update tgbotapi.Update, userState *State) (bool, error) {
	return b.selectHandler(update, userState, true)
}

// selectHandler runs the catch-all only when catchAll is set, so a global
// state never swallows updates meant for the user's own state.
func (b *Bot) selectHandler(update tgbotapi.Update, state *State, catchAll bool) (bool, error) {
	switch {
	case update.Message != nil:
		return b.handleMessage(state, update, catchAll)
	case update.CallbackQuery != nil:
		return b.handleCallback(state, update, catchAll)
	}
	return false, nil
}

func messageKeys(msg *tgbotapi.Message) []string {
	keys := []string{strings.ToLower(strings.TrimSpace(msg.Text))}
	if msg.IsCommand() {
		keys = append(keys, "/"+strings.ToLower(msg.Command()))
	}
	return keys
}

func callbackKeys(data string) []string {
	keys := []string{data}
	if i := strings.IndexByte(data, ':'); i > 0 {
		keys = append(keys, data[:i])
	}
	return keys
}

func (b *Bot) handleMessage(state *State, update tgbotapi.Update, catchAll bool) (bool, error) {
	msg := update.Message
	fields := []zap.Field{
		zap.String("command", msg.Text),
		zap.Int64("chat_id", msg.Chat.ID),
		zap.String("username", msg.Chat.UserName),
	}

	for _, key := range messageKeys(msg) {
		handler, ok := state.MessageHandlers[key]
		if !ok {
			continue
		}
		if err := handler.Handle(b, update); err != nil {
			b.logger.Error("failed to handle command", append(fields, zap.Error(err))...)
		} else {
			b.logger.Info("command handled", fields...)
		}
		return true, nil
	}

	if catchAll && state.CatchAllFunc != nil {
		if err := state.CatchAllFunc.Handle(b, update); err != nil {
			b.logger.Error("failed to handle message", append(fields, zap.Error(err))...)
		}
		return false, nil
	}
	if catchAll {
		b.logger.Info("command not found", fields...)
	}
	return false, nil
}

func (b *Bot) handleCallback(state *State, update tgbotapi.Update, catchAll bool) (bool, error) {
	cb := update.CallbackQuery
	fields := []zap.Field{
		zap.String("callback", cb.Data),
		zap.Int64("user_id", cb.From.ID),
		zap.String("username", cb.From.UserName),
	}

	for _, key := range callbackKeys(cb.Data) {
		handler, ok := state.CallbackHandlers[key]
		if !ok {
			continue
		}
		if err := handler.Handle(b, update); err != nil {
			b.logger.Error("failed to handle callback", append(fields, zap.Error(err))...)
			return true, err
		}
		b.logger.Info("callback handled", fields...)
		return true, nil
	}

	if catchAll && state.CatchAllFunc != nil {
		if err := state.CatchAllFunc.Handle(b, update); err != nil {
			b.logger.Error("failed to handle callback", append(fields, zap.Error(err))...)
		}
		return false, nil
	}
	if catchAll {
		b.logger.Info("callback not found", fields...)
	}
	return false, nil
}

// ReplaceStates swaps the whole state map.
func (b *Bot) ReplaceStates(newStates map[string]State) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()

	newGlobalStates := make([]*State, 0)
	for _, state := range newStates {
		if state.Global {
			stateCopy := state
			newGlobalStates = append(newGlobalStates, &stateCopy)
		}
	}

	b.states = newStates
	b.globalStates = newGlobalStates
	b.logger.Debug("bot states replaced", zap.Int("states", len(newStates)))
}

// SendMessage sends c through the limiter.
func (b *Bot) SendMessage(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.limiter.Wait()
	msg, err := b.BotAPI.Send(c)
	if err != nil {
		b.logger.Error("failed to send message", zap.Error(err))
	}
	return msg, err
}

// Request performs an API call without a message result, such as answering
// a callback query.
func (b *Bot) Request(c tgbotapi.Chattable) error {
	b.limiter.Wait()
	_, err := b.BotAPI.Request(c)
	return err
}
