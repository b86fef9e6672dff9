package tg

import (
	"fmt"
	"strings"

	"registrar/internal/codec"
	"registrar/internal/model"
	"registrar/internal/store"
	"registrar/pkg/tgbotapisfm"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (h *TGHandler) StatsHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			ctx, cancel := h.context()
			defer cancel()
			if _, ok := h.load(ctx, bot, update, false); !ok {
				return nil
			}
			return reply(bot, update, formatStats(h.Store.Statistics()))
		},
	}
}

func formatStats(st store.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d\nActive: %d\nRevoked: %d\nPayments: %d\n", st.Total, st.Active, st.Revoked, st.TotalPayments)
	for _, group := range model.Groups {
		gs, ok := st.Groups[group]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %d", group.Name(), gs.Total)
		for _, gender := range model.Genders {
			fmt.Fprintf(&b, "\n  %s: %d", gender, gs.Genders[gender])
		}
	}
	return b.String()
}

func (h *TGHandler) ReloadHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			ctx, cancel := h.context()
			defer cancel()
			source, ok := h.load(ctx, bot, update, true)
			if !ok {
				return nil
			}
			n := len(h.Store.Records())
			if source == store.SourceStaleCache {
				return reply(bot, update, fmt.Sprintf("GitHub is unreachable; using the cached roster (%d registrants).", n))
			}
			return reply(bot, update, fmt.Sprintf("Roster reloaded: %d registrants.", n))
		},
	}
}

// FindHandler looks the query up as an id, then as a roll, then by name.
func (h *TGHandler) FindHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			query := strings.TrimSpace(update.Message.CommandArguments())
			if query == "" {
				return reply(bot, update, "Usage: /find <id|roll|name>")
			}
			ctx, cancel := h.context()
			defer cancel()
			if _, ok := h.load(ctx, bot, update, false); !ok {
				return nil
			}

			var found []model.Registrant
			if r, ok := h.Store.Read(strings.ToUpper(query)); ok {
				found = append(found, r)
			} else if r, ok := h.Store.ReadByRoll(query); ok {
				found = append(found, r)
			} else {
				found = h.Store.SearchByName(query)
			}
			if len(found) == 0 {
				return reply(bot, update, "No registrant matches "+query+".")
			}

			var b strings.Builder
			for i, r := range found {
				if i == maxFindResults {
					fmt.Fprintf(&b, "\n...and %d more", len(found)-maxFindResults)
					break
				}
				if i > 0 {
					b.WriteString("\n\n")
				}
				b.WriteString(h.formatRegistrant(r))
			}
			return reply(bot, update, b.String())
		},
	}
}

func (h *TGHandler) formatRegistrant(r model.Registrant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s", r.RegistrationID, r.Name)
	if r.Revoked {
		b.WriteString(" [REVOKED]")
	}
	fmt.Fprintf(&b, "\nRoll: %s\nGroup: %s, %s\nPaid: %d\nRegistered: %s", r.Roll, r.Group.Name(), r.Gender, r.Paid, r.RegistrationDate)
	if len(r.PartsAvailable) > 0 {
		fmt.Fprintf(&b, "\nParts: %s", joinParts(r.PartsAvailable))
	}
	if r.TShirtSize != "" && r.HasPart(model.PartTShirt) {
		fmt.Fprintf(&b, "\nSize: %s", r.TShirtSize)
	}
	if r.Phone != "" {
		fmt.Fprintf(&b, "\nPhone: %s", r.Phone)
	}
	if r.Email != "" {
		fmt.Fprintf(&b, "\nEmail: %s", r.Email)
	}
	if r.ReferredBy != "" {
		fmt.Fprintf(&b, "\nReferred by: %s", h.describeReferral(r.ReferredBy))
	}
	return b.String()
}

// describeReferral resolves a referral by id or roll at render time; free
// text is shown as is.
func (h *TGHandler) describeReferral(ref string) string {
	if r, ok := h.Store.Read(strings.ToUpper(ref)); ok {
		return fmt.Sprintf("%s (%s)", r.Name, r.RegistrationID)
	}
	if r, ok := h.Store.ReadByRoll(ref); ok {
		return fmt.Sprintf("%s (%s)", r.Name, r.RegistrationID)
	}
	return ref
}

func joinParts(parts []model.Part) string {
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func (h *TGHandler) LinkHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			id := strings.ToUpper(strings.TrimSpace(update.Message.CommandArguments()))
			if id == "" {
				return reply(bot, update, "Usage: /link <registration id>")
			}
			ctx, cancel := h.context()
			defer cancel()
			if _, ok := h.load(ctx, bot, update, false); !ok {
				return nil
			}
			if _, ok := h.Store.Read(id); !ok {
				return reply(bot, update, "No registrant with id "+id+".")
			}
			return reply(bot, update, codec.VerificationURL(h.opts.VerifyBaseURL, id))
		},
	}
}

func (h *TGHandler) NextHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			args := strings.Fields(update.Message.CommandArguments())
			if len(args) != 2 {
				return reply(bot, update, "Usage: /next <group> <gender>, e.g. /next science female")
			}
			group, ok := model.ParseGroup(args[0])
			if !ok {
				return reply(bot, update, "Unknown group "+args[0]+". Use Arts, Science or Commerce.")
			}
			gender, ok := model.ParseGender(args[1])
			if !ok {
				return reply(bot, update, "Unknown gender "+args[1]+". Use Male or Female.")
			}
			ctx, cancel := h.context()
			defer cancel()
			if _, ok := h.load(ctx, bot, update, false); !ok {
				return nil
			}
			id, err := h.Store.NextID(group, gender)
			if err != nil {
				return reply(bot, update, describeError(err))
			}
			return reply(bot, update, "Next id: "+id)
		},
	}
}

func (h *TGHandler) RevokeHandler(revoke bool) tgbotapisfm.Handler {
	usage, done := "Usage: /restore <registration id>", "restored"
	if revoke {
		usage, done = "Usage: /revoke <registration id>", "revoked"
	}
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			id := strings.ToUpper(strings.TrimSpace(update.Message.CommandArguments()))
			if id == "" {
				return reply(bot, update, usage)
			}
			ctx, cancel := h.context()
			defer cancel()
			if _, ok := h.load(ctx, bot, update, false); !ok {
				return nil
			}

			var err error
			if revoke {
				_, err = h.Store.Revoke(ctx, id)
			} else {
				_, err = h.Store.Restore(ctx, id)
			}
			if err != nil {
				return reply(bot, update, describeError(err))
			}
			h.wrote()
			return reply(bot, update, fmt.Sprintf("%s %s.", id, done))
		},
	}
}

func (h *TGHandler) DeleteHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			id := strings.ToUpper(strings.TrimSpace(update.Message.CommandArguments()))
			if id == "" {
				return reply(bot, update, "Usage: /delete <registration id>")
			}
			ctx, cancel := h.context()
			defer cancel()
			if _, ok := h.load(ctx, bot, update, false); !ok {
				return nil
			}
			if err := h.Store.Delete(ctx, id); err != nil {
				return reply(bot, update, describeError(err))
			}
			h.wrote()
			return reply(bot, update, id+" deleted.")
		},
	}
}

// ListHandler prints the roster bucketed by group and gender, optionally
// limited to one group.
func (h *TGHandler) ListHandler() tgbotapisfm.Handler {
	return tgbotapisfm.Handler{
		Handle: func(bot *tgbotapisfm.Bot, update tgbotapi.Update) error {
			var only model.Group
			if arg := strings.TrimSpace(update.Message.CommandArguments()); arg != "" {
				g, ok := model.ParseGroup(arg)
				if !ok {
					return reply(bot, update, "Unknown group "+arg+". Use Arts, Science or Commerce.")
				}
				only = g
			}
			ctx, cancel := h.context()
			defer cancel()
			if _, ok := h.load(ctx, bot, update, false); !ok {
				return nil
			}

			text := formatBuckets(h.Store.Grouped().Buckets(), only)
			if text == "" {
				return reply(bot, update, "No registrants yet.")
			}
			for _, chunk := range splitMessage(text, maxMessageLength) {
				if err := reply(bot, update, chunk); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func formatBuckets(buckets []store.Bucket, only model.Group) string {
	var b strings.Builder
	for _, bucket := range buckets {
		if only != "" && bucket.Group != only {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s, %s (%d)", bucket.Group.Name(), bucket.Gender, len(bucket.Registrants))
		for _, r := range bucket.Registrants {
			fmt.Fprintf(&b, "\n%s %s", r.RegistrationID, r.Name)
			if r.Revoked {
				b.WriteString(" [REVOKED]")
			}
		}
	}
	return b.String()
}

// splitMessage cuts text at line breaks into pieces of at most limit bytes.
// A single longer line is cut hard.
func splitMessage(text string, limit int) []string {
	var out []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			out = append(out, text[:limit])
			text = text[limit:]
			continue
		}
		out = append(out, text[:cut])
		text = text[cut+1:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
