// Package document maps the roster and revenue JSON documents onto files in
// a GitHub repository. Every write re-submits the whole document; the file
// sha is the only conflict detection.
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"registrar/internal/domain"
	"registrar/internal/github"
	"registrar/internal/model"
)

type Roster struct {
	file   *github.File
	logger *zap.Logger
}

var _ domain.RosterRemote = (*Roster)(nil)

func NewRoster(file *github.File, logger *zap.Logger) *Roster {
	return &Roster{file: file, logger: logger}
}

func (r *Roster) Fetch(ctx context.Context) ([]model.Registrant, string, error) {
	content, sha, err := r.file.Get(ctx)
	if err != nil {
		return nil, "", err
	}
	records, err := DecodeRoster(content)
	if err != nil {
		return nil, "", fmt.Errorf("decode roster %s: %w", r.file.Location(), err)
	}
	r.logger.Debug("roster fetched",
		zap.Int("records", len(records)),
		zap.String("revision", sha),
	)
	return records, sha, nil
}

func (r *Roster) Put(ctx context.Context, records []model.Registrant, revision, message string) (string, error) {
	content, err := EncodeRoster(records)
	if err != nil {
		return "", fmt.Errorf("encode roster: %w", err)
	}
	sha, err := r.file.Put(ctx, content, revision, message)
	if err != nil {
		return "", err
	}
	r.logger.Info("roster written",
		zap.Int("records", len(records)),
		zap.String("revision", sha),
		zap.String("message", message),
	)
	return sha, nil
}

// DecodeRoster parses a roster document. Empty content is an empty roster.
func DecodeRoster(content []byte) ([]model.Registrant, error) {
	records := []model.Registrant{}
	if len(bytes.TrimSpace(content)) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.Registrant{}
	}
	return records, nil
}

// EncodeRoster renders records as a 2-space indented JSON array without
// HTML escaping.
func EncodeRoster(records []model.Registrant) ([]byte, error) {
	if records == nil {
		records = []model.Registrant{}
	}
	return encodeIndented(records)
}

func encodeIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
