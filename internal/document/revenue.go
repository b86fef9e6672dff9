package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"registrar/internal/domain"
	"registrar/internal/github"
	"registrar/internal/model"
)

const (
	DefaultRegistrationFee = 1200
	RevenueSource          = "Registration Fee"
	RevenueType            = "Registration"
	UnknownClient          = "Unknown Client"
)

// DefaultClients names the person credited with a registration, per group
// and gender.
var DefaultClients = map[model.Group]map[model.Gender]string{
	model.GroupScience: {
		model.GenderMale:   "Arian Mollik Wasi",
		model.GenderFemale: "Marzia Mittika",
	},
	model.GroupArts: {
		model.GenderMale:   "Sahariar Nafiz",
		model.GenderFemale: "Nafiza Tanzim Hafsa",
	},
	model.GroupCommerce: {
		model.GenderMale:   "Tanvir Hossain Chowdhury",
		model.GenderFemale: "Mehbuba",
	},
}

// Revenue is the income ledger document. Entries written by other tools are
// carried through untouched.
type Revenue struct {
	file    *github.File
	amount  int
	clients map[model.Group]map[model.Gender]string
	logger  *zap.Logger
}

var _ domain.RevenueLedger = (*Revenue)(nil)

func NewRevenue(file *github.File, amount int, logger *zap.Logger) *Revenue {
	if amount <= 0 {
		amount = DefaultRegistrationFee
	}
	return &Revenue{file: file, amount: amount, clients: DefaultClients, logger: logger}
}

func (r *Revenue) ClientFor(group model.Group, gender model.Gender) string {
	if name, ok := r.clients[group][gender]; ok {
		return name
	}
	return UnknownClient
}

func (r *Revenue) Entry(reg model.Registrant, at time.Time) model.RevenueEntry {
	return model.RevenueEntry{
		ID:       at.UnixMilli(),
		Source:   RevenueSource,
		Amount:   r.amount,
		Date:     at.Format("2006-01-02"),
		Type:     RevenueType,
		Clients:  []string{r.ClientFor(reg.Group, reg.Gender)},
		Comments: reg.Name,
	}
}

// RecordRegistration appends one registration fee entry with a single
// compare-and-swap write. It does not retry.
func (r *Revenue) RecordRegistration(ctx context.Context, reg model.Registrant, at time.Time) error {
	content, sha, err := r.file.Get(ctx)
	if err != nil {
		return err
	}
	entries := []json.RawMessage{}
	if len(bytes.TrimSpace(content)) > 0 {
		if err := json.Unmarshal(content, &entries); err != nil {
			return fmt.Errorf("decode revenues %s: %w", r.file.Location(), err)
		}
	}

	entry := r.Entry(reg, at)
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	out, err := encodeIndented(append(entries, raw))
	if err != nil {
		return fmt.Errorf("encode revenues: %w", err)
	}

	msg := fmt.Sprintf("Add revenue entry @ %s", at.Format(time.RFC3339))
	if _, err := r.file.Put(ctx, out, sha, msg); err != nil {
		return err
	}
	r.logger.Info("revenue entry added",
		zap.Int64("id", entry.ID),
		zap.String("client", entry.Clients[0]),
		zap.String("comments", entry.Comments),
	)
	return nil
}
