package tg

import (
	"fmt"
	"strings"

	"registrar/internal/codec"
	"registrar/internal/importer"
	"registrar/internal/model"
	"registrar/pkg/tgbotapisfm"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Draft is a registration being assembled in the chat.
type Draft struct {
	Input model.RegistrantInput
}

func (h *TGHandler) getDraft(userID int64) (Draft, bool) {
	x, found := h.drafts.Get(draftKey(userID))
	if !found {
		return Draft{}, false
	}
	d, ok := x.(Draft)
	return d, ok
}

func (h *TGHandler) saveDraft(userID int64, d Draft) {
	h.drafts.Set(draftKey(userID), d, gocache.DefaultExpiration)
}

func (h *TGHandler) ImportHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			userID := update.SentFrom().ID
			h.drafts.Delete(draftKey(userID))
			return bot.EnterState(userID, StateImportText, update)
		},
	}
}

func (h *TGHandler) ImportTextState() tgbotapisfm.State {
	return tgbotapisfm.State{
		AtEntranceFunc: &tgbotapisfm.Handler{
			Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
				return reply(bot, update, "Paste the registration text. /cancel to stop.")
			},
		},
		CatchAllFunc: &tgbotapisfm.Handler{
			Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
				if update.Message == nil {
					return nil
				}
				res := importer.Parse(update.Message.Text)
				if res.Empty() {
					return reply(bot, update, "Nothing recognised in that text. Paste it again or /cancel.")
				}
				d := Draft{Input: model.RegistrantInput{Paid: model.Amount(h.opts.RegistrationFee)}}
				res.Fill(&d.Input)
				h.lookupStudent(&d.Input)
				if d.Input.TShirtSize != "" {
					d.Input.Parts = []model.Part{model.PartTShirt}
				}
				userID := update.SentFrom().ID
				h.saveDraft(userID, d)
				h.logger.Info("import draft started", zap.Int64("user_id", userID), zap.String("roll", d.Input.Roll))
				return bot.EnterState(userID, StateImportDraft, update)
			},
		},
	}
}

// lookupStudent fills the draft's empty fields from the student directory
// when the roll is known there.
func (h *TGHandler) lookupStudent(in *model.RegistrantInput) {
	if h.opts.Directory == nil || in.Roll == "" {
		return
	}
	if s, ok := h.opts.Directory.Lookup(in.Roll); ok {
		s.Fill(in)
		h.logger.Debug("draft filled from student directory", zap.String("roll", in.Roll))
	}
}

func (h *TGHandler) ImportDraftState() tgbotapisfm.State {
	return tgbotapisfm.State{
		AtEntranceFunc: &tgbotapisfm.Handler{
			Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
				return h.showDraft(bot, update)
			},
		},
		MessageHandlers: map[string]tgbotapisfm.Handler{
			"confirm": h.ConfirmHandler(),
		},
		CallbackHandlers: map[string]tgbotapisfm.Handler{
			"gender":  h.DraftChoiceHandler("gender"),
			"group":   h.DraftChoiceHandler("group"),
			"confirm": h.ConfirmHandler(),
		},
		CatchAllFunc: &tgbotapisfm.Handler{
			Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
				if update.Message == nil {
					return nil
				}
				userID := update.SentFrom().ID
				d, ok := h.getDraft(userID)
				if !ok {
					bot.ResetUserState(userID)
					return reply(bot, update, "The draft expired. Start again with /import.")
				}
				if problem := applyEdit(&d.Input, update.Message.Text); problem != "" {
					return reply(bot, update, problem)
				}
				h.lookupStudent(&d.Input)
				h.saveDraft(userID, d)
				return h.showDraft(bot, update)
			},
		},
	}
}

// DraftChoiceHandler handles keyboard answers such as "gender:Female".
func (h *TGHandler) DraftChoiceHandler(field string) tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			cb := update.CallbackQuery
			if err := bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
				h.logger.Warn("failed to answer callback", zap.Error(err))
			}
			d, ok := h.getDraft(cb.From.ID)
			if !ok {
				bot.ResetUserState(cb.From.ID)
				return reply(bot, update, "The draft expired. Start again with /import.")
			}
			value := strings.TrimPrefix(cb.Data, field+":")
			if problem := applyEdit(&d.Input, field+": "+value); problem != "" {
				return reply(bot, update, problem)
			}
			h.saveDraft(cb.From.ID, d)
			return h.showDraft(bot, update)
		},
	}
}

func (h *TGHandler) ConfirmHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			userID := update.SentFrom().ID
			if cb := update.CallbackQuery; cb != nil {
				if err := bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
					h.logger.Warn("failed to answer callback", zap.Error(err))
				}
			}
			d, ok := h.getDraft(userID)
			if !ok {
				bot.ResetUserState(userID)
				return reply(bot, update, "The draft expired. Start again with /import.")
			}

			ctx, cancel := h.context()
			defer cancel()
			if _, ok := h.load(ctx, bot, update, false); !ok {
				return nil
			}
			r, err := h.Store.Create(ctx, d.Input)
			if err != nil {
				// the draft stays so the admin can fix it and confirm again
				return reply(bot, update, describeError(err))
			}

			h.drafts.Delete(draftKey(userID))
			bot.ResetUserState(userID)
			h.wrote()

			msg := tgbotapi.NewMessage(update.FromChat().ID, fmt.Sprintf("Registered %s as %s.\n%s",
				r.Name, r.RegistrationID, codec.VerificationURL(h.opts.VerifyBaseURL, r.RegistrationID)))
			msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
			_, err = bot.SendMessage(msg)
			return err
		},
	}
}

func (h *TGHandler) showDraft(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
	d, ok := h.getDraft(update.SentFrom().ID)
	if !ok {
		return reply(bot, update, "The draft expired. Start again with /import.")
	}
	in := d.Input

	var b strings.Builder
	b.WriteString("Draft registration\n")
	line := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "\n%s: %s", label, value)
	}
	line("Name", in.Name)
	line("Roll", in.Roll)
	line("Gender", string(in.Gender))
	line("Group", in.Group.Name())
	line("Email", in.Email)
	line("Phone", in.Phone)
	line("Paid", fmt.Sprint(in.Paid))
	line("Parts", joinParts(in.Parts))
	line("Size", in.TShirtSize)
	line("Referred by", in.ReferredBy)
	if in.RegistrationID != "" {
		line("Id", in.RegistrationID)
	} else if in.Group.Valid() && in.Gender.Valid() {
		if next, err := h.Store.NextID(in.Group, in.Gender); err == nil {
			line("Id", next+" (next free)")
		}
	}
	b.WriteString("\n\nSend \"field: value\" to change a field (name, roll, gender, group, email, phone, paid, parts, size, referred, photo, id), more text to fill empty fields, confirm to save or /cancel.")

	msg := tgbotapi.NewMessage(update.FromChat().ID, b.String())
	switch {
	case !in.Gender.Valid():
		msg.ReplyMarkup = choiceKeyboard("gender", []string{string(model.GenderMale), string(model.GenderFemale)}, []string{"Male", "Female"})
	case !in.Group.Valid():
		var values, labels []string
		for _, g := range model.Groups {
			values = append(values, string(g))
			labels = append(labels, g.Name())
		}
		msg.ReplyMarkup = choiceKeyboard("group", values, labels)
	default:
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm", "confirm"),
		))
	}
	_, err := bot.SendMessage(msg)
	return err
}

func choiceKeyboard(field string, values, labels []string) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, len(values))
	for i := range values {
		row[i] = tgbotapi.NewInlineKeyboardButtonData(labels[i], field+":"+values[i])
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// applyEdit changes one draft field from "field: value" text. Text without a
// known field name is parsed as more registration text and fills only the
// fields still empty. It returns a message for the user when the value is
// rejected.
func applyEdit(in *model.RegistrantInput, text string) string {
	field, value, found := strings.Cut(text, ":")
	field = strings.ToLower(strings.TrimSpace(field))
	value = strings.TrimSpace(value)
	if !found || !isDraftField(field) {
		importer.Parse(text).Fill(in)
		return ""
	}

	switch field {
	case "name":
		in.Name = value
	case "roll":
		in.Roll = value
	case "email":
		in.Email = value
	case "phone":
		in.Phone = value
	case "photo":
		in.Photo = value
	case "referred", "referred by", "referred_by":
		in.ReferredBy = value
	case "id":
		in.RegistrationID = strings.ToUpper(value)
	case "gender":
		g, ok := model.ParseGender(value)
		if !ok {
			return "Unknown gender " + value + ". Use Male or Female."
		}
		in.Gender = g
	case "group":
		g, ok := model.ParseGroup(value)
		if !ok {
			return "Unknown group " + value + ". Use Arts, Science or Commerce."
		}
		in.Group = g
	case "paid":
		v, ok := model.ParseAmount(value)
		if !ok {
			return "Paid must be a whole non-negative number."
		}
		in.Paid = v
	case "parts":
		parts, problem := parseParts(value)
		if problem != "" {
			return problem
		}
		in.Parts = parts
	case "size":
		size, ok := model.NormalizeSize(value)
		if !ok {
			return "Unknown size " + value + ". Use one of " + strings.Join(model.TShirtSizes, ", ") + "."
		}
		in.TShirtSize = size
	}
	return ""
}

func isDraftField(field string) bool {
	switch field {
	case "name", "roll", "email", "phone", "photo", "referred", "referred by", "referred_by",
		"id", "gender", "group", "paid", "parts", "size":
		return true
	}
	return false
}

// parseParts reads a comma separated part list such as "shirt, food".
func parseParts(value string) ([]model.Part, string) {
	var parts []model.Part
	for _, s := range strings.Split(value, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		p, ok := model.ParsePart(s)
		if !ok {
			return nil, "Unknown part " + strings.TrimSpace(s) + ". Use T-Shirt, Food or Gift."
		}
		parts = append(parts, p)
	}
	return parts, ""
}
