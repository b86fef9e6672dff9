package tg

import (
	"fmt"
	"strings"
	"unicode"

	"registrar/internal/model"
	"registrar/pkg/tgbotapisfm"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const editUsage = `Usage: /edit <id> followed by "field: value" lines, e.g.
/edit SC-G-0001
name: Jane Doe
paid: 1500
Fields: name, roll, gender, group, email, phone, paid, parts, size, referred, photo.`

// EditHandler updates one registrant from "field: value" lines given with
// the command. Only the named fields change.
func (h *TGHandler) EditHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			id, lines := splitEditArgs(update.Message.CommandArguments())
			if id == "" {
				return reply(bot, update, editUsage)
			}
			ctx, cancel := h.context()
			defer cancel()
			if _, ok := h.load(ctx, bot, update, false); !ok {
				return nil
			}
			current, ok := h.Store.Read(id)
			if !ok {
				return reply(bot, update, "No registrant with id "+id+".")
			}
			if len(lines) == 0 {
				return reply(bot, update, h.formatRegistrant(current)+"\n\n"+editUsage)
			}

			patch, problem := editPatch(lines)
			if problem != "" {
				return reply(bot, update, problem)
			}
			updated, err := h.Store.Update(ctx, id, patch)
			if err != nil {
				return reply(bot, update, describeError(err))
			}
			h.wrote()

			text := "Updated.\n\n" + h.formatRegistrant(updated)
			if patch.Paid != nil {
				if _, ok := model.ParseAmount(*patch.Paid); !ok {
					text += fmt.Sprintf("\n\nPaid %q is not a whole non-negative number; kept %d.", *patch.Paid, updated.Paid)
				}
			}
			return reply(bot, update, text)
		},
	}
}

// splitEditArgs separates the id from the field lines that follow it on the
// same line or below.
func splitEditArgs(args string) (string, []string) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", nil
	}
	id, rest := args, ""
	if i := strings.IndexFunc(args, unicode.IsSpace); i >= 0 {
		id, rest = args[:i], args[i:]
	}
	var lines []string
	for _, l := range strings.Split(rest, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.ToUpper(id), lines
}

// editPatch turns "field: value" lines into a patch. Paid is passed on as
// typed; the store keeps the old amount when it does not parse.
func editPatch(lines []string) (model.RegistrantPatch, string) {
	var p model.RegistrantPatch
	for _, line := range lines {
		field, value, found := strings.Cut(line, ":")
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)
		if !found || !isDraftField(field) {
			return p, "Cannot read " + line + ". Use \"field: value\"."
		}

		switch field {
		case "name":
			p.Name = &value
		case "roll":
			p.Roll = &value
		case "email":
			p.Email = &value
		case "phone":
			p.Phone = &value
		case "photo":
			p.Photo = &value
		case "referred", "referred by", "referred_by":
			p.ReferredBy = &value
		case "paid":
			p.Paid = &value
		case "id":
			return p, "The registration id cannot be changed."
		case "gender":
			g, ok := model.ParseGender(value)
			if !ok {
				return p, "Unknown gender " + value + ". Use Male or Female."
			}
			p.Gender = &g
		case "group":
			g, ok := model.ParseGroup(value)
			if !ok {
				return p, "Unknown group " + value + ". Use Arts, Science or Commerce."
			}
			p.Group = &g
		case "parts":
			parts, problem := parseParts(value)
			if problem != "" {
				return p, problem
			}
			p.Parts = &parts
		case "size":
			p.TShirtSize = &value
		}
	}
	return p, ""
}
