package tgbotapisfm

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// HandlerFunc reacts to one update.
type HandlerFunc func(bot *Bot, update tgbotapi.Update) error

type Handler struct {
	Handle HandlerFunc
}

// State is a node of the conversation graph.
//
// MessageHandlers are keyed by the lower-cased message text, or by the
// command word for messages starting with "/" ("/find jane" matches
// "/find"). CallbackHandlers are keyed by the callback data, or by the part
// before the first ':' ("gender:Male" matches "gender").
type State struct {
	Global           bool     // checked for every update before the user's own state
	AtEntranceFunc   *Handler // runs when the user enters the state
	CatchAllFunc     *Handler // runs when no handler matches
	MessageHandlers  map[string]Handler
	CallbackHandlers map[string]Handler
}
