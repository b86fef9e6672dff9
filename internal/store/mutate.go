package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"registrar/internal/domain"
	"registrar/internal/model"
	"registrar/internal/regid"
)

// Create validates in, allocates a registration id when none was supplied,
// and persists the roster. The revenue entry is appended afterwards and its
// failure does not fail the registration.
func (s *Store) Create(ctx context.Context, in model.RegistrantInput) (model.Registrant, error) {
	now := s.now()
	r, err := s.newRegistrant(in, now)
	if err != nil {
		return model.Registrant{}, err
	}

	next := append(s.cloneRecords(), r)
	if err := s.persist(ctx, next, "Add registrant "+r.RegistrationID); err != nil {
		return model.Registrant{}, err
	}
	s.logger.Info("registrant created",
		zap.String("registration_id", r.RegistrationID),
		zap.String("roll", r.Roll),
	)

	s.recordRevenue(ctx, r, now)
	return r.Clone(), nil
}

func (s *Store) newRegistrant(in model.RegistrantInput, now time.Time) (model.Registrant, error) {
	name := strings.TrimSpace(in.Name)
	roll := strings.TrimSpace(in.Roll)
	if name == "" || roll == "" || in.Gender == "" || in.Group == "" {
		return model.Registrant{}, domain.Validation("name, roll, gender and group are required")
	}
	if !in.Gender.Valid() {
		return model.Registrant{}, domain.Validation("unknown gender %q", in.Gender)
	}
	if !in.Group.Valid() {
		return model.Registrant{}, domain.Validation("unknown group %q", in.Group)
	}
	if in.Paid < 0 {
		return model.Registrant{}, domain.Validation("paid amount cannot be negative")
	}
	parts, size, err := normalizeParts(in.Parts, in.TShirtSize)
	if err != nil {
		return model.Registrant{}, err
	}

	if i := s.indexByRoll(roll); i >= 0 {
		return model.Registrant{}, domain.Conflict("roll %s is already registered as %s", roll, s.records[i].RegistrationID)
	}
	id := strings.TrimSpace(in.RegistrationID)
	if id == "" {
		if id, err = regid.Next(s.records, in.Group, in.Gender); err != nil {
			return model.Registrant{}, err
		}
	} else if s.indexOf(id) >= 0 {
		return model.Registrant{}, domain.Conflict("registration id %s is already in use", id)
	}

	return model.Registrant{
		Name:             name,
		Roll:             roll,
		Gender:           in.Gender,
		Group:            in.Group,
		RegistrationDate: now.Format(model.DateLayout),
		RegistrationID:   id,
		Photo:            strings.TrimSpace(in.Photo),
		ReferredBy:       strings.TrimSpace(in.ReferredBy),
		Paid:             in.Paid,
		Email:            strings.TrimSpace(in.Email),
		Phone:            strings.TrimSpace(in.Phone),
		PartsAvailable:   parts,
		TShirtSize:       size,
	}, nil
}

// Update merges patch into the registrant with the given id and persists
// the roster.
func (s *Store) Update(ctx context.Context, id string, patch model.RegistrantPatch) (model.Registrant, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return model.Registrant{}, domain.NotFound("registrant %s not found", id)
	}
	updated, err := s.applyPatch(idx, s.records[idx].Clone(), patch)
	if err != nil {
		return model.Registrant{}, err
	}

	next := s.cloneRecords()
	next[idx] = updated
	if err := s.persist(ctx, next, "Update registrant "+id); err != nil {
		return model.Registrant{}, err
	}
	s.logger.Info("registrant updated", zap.String("registration_id", id))
	return updated.Clone(), nil
}

func (s *Store) Revoke(ctx context.Context, id string) (model.Registrant, error) {
	revoked := true
	return s.Update(ctx, id, model.RegistrantPatch{Revoked: &revoked})
}

func (s *Store) Restore(ctx context.Context, id string) (model.Registrant, error) {
	revoked := false
	return s.Update(ctx, id, model.RegistrantPatch{Revoked: &revoked})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.NotFound("registrant %s not found", id)
	}
	next := make([]model.Registrant, 0, len(s.records)-1)
	for i, r := range s.records {
		if i != idx {
			next = append(next, r.Clone())
		}
	}
	if err := s.persist(ctx, next, "Delete registrant "+id); err != nil {
		return err
	}
	s.logger.Info("registrant deleted", zap.String("registration_id", id))
	return nil
}

// applyPatch validates only the fields the patch touches, so records that
// predate a rule can still be revoked or restored.
func (s *Store) applyPatch(idx int, r model.Registrant, p model.RegistrantPatch) (model.Registrant, error) {
	if p.Name != nil {
		r.Name = strings.TrimSpace(*p.Name)
		if r.Name == "" {
			return r, domain.Validation("name is required")
		}
	}
	if p.Roll != nil {
		roll := strings.TrimSpace(*p.Roll)
		if roll == "" {
			return r, domain.Validation("roll is required")
		}
		if j := s.indexByRoll(roll); j >= 0 && j != idx {
			return r, domain.Conflict("roll %s is already registered as %s", roll, s.records[j].RegistrationID)
		}
		r.Roll = roll
	}
	if p.Gender != nil {
		if !p.Gender.Valid() {
			return r, domain.Validation("unknown gender %q", *p.Gender)
		}
		r.Gender = *p.Gender
	}
	if p.Group != nil {
		if !p.Group.Valid() {
			return r, domain.Validation("unknown group %q", *p.Group)
		}
		r.Group = *p.Group
	}
	if p.Email != nil {
		r.Email = strings.TrimSpace(*p.Email)
	}
	if p.Phone != nil {
		r.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Photo != nil {
		r.Photo = strings.TrimSpace(*p.Photo)
	}
	if p.ReferredBy != nil {
		r.ReferredBy = strings.TrimSpace(*p.ReferredBy)
	}
	if p.Paid != nil {
		if v, ok := model.ParseAmount(*p.Paid); ok {
			r.Paid = v
		} else {
			s.logger.Debug("ignoring unparsable paid amount",
				zap.String("registration_id", r.RegistrationID),
				zap.String("paid", *p.Paid),
			)
		}
	}
	if p.Parts != nil || p.TShirtSize != nil {
		parts, size := r.PartsAvailable, r.TShirtSize
		if p.Parts != nil {
			parts = *p.Parts
		}
		if p.TShirtSize != nil {
			size = *p.TShirtSize
		}
		var err error
		if r.PartsAvailable, r.TShirtSize, err = normalizeParts(parts, size); err != nil {
			return r, err
		}
	}
	if p.Revoked != nil {
		r.Revoked = *p.Revoked
	}
	return r, nil
}

// normalizeParts dedupes parts and resolves the size that goes with them.
// The size is dropped when no T-shirt is included.
func normalizeParts(parts []model.Part, size string) ([]model.Part, string, error) {
	out := make([]model.Part, 0, len(parts))
	seen := make(map[model.Part]bool, len(parts))
	for _, p := range parts {
		if !p.Valid() {
			return nil, "", domain.Validation("unknown part %q", p)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if !seen[model.PartTShirt] {
		return out, "", nil
	}
	if strings.TrimSpace(size) == "" {
		return nil, "", domain.Validation("please select a T-shirt size")
	}
	normalized, ok := model.NormalizeSize(size)
	if !ok {
		return nil, "", domain.Validation("invalid T-shirt size %q", size)
	}
	return out, normalized, nil
}

// persist writes next as the whole roster against the current revision and
// commits it to memory and cache only when the remote accepted it.
func (s *Store) persist(ctx context.Context, next []model.Registrant, message string) error {
	revision, err := s.roster.Put(ctx, next, s.revision, message)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			s.forgetCredential(ctx)
		}
		s.logger.Warn("roster write failed",
			zap.String("message", message),
			zap.String("revision", s.revision),
			zap.Error(err),
		)
		return err
	}
	s.records, s.revision = next, revision
	s.writeCache(ctx)
	return nil
}

func (s *Store) recordRevenue(ctx context.Context, r model.Registrant, at time.Time) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.RecordRegistration(ctx, r, at); err != nil {
		s.logger.Warn("failed to record revenue entry",
			zap.String("registration_id", r.RegistrationID),
			zap.Error(err),
		)
	}
}

func (s *Store) cloneRecords() []model.Registrant {
	out := make([]model.Registrant, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

func (s *Store) indexOf(id string) int {
	id = strings.TrimSpace(id)
	for i, r := range s.records {
		if r.RegistrationID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByRoll(roll string) int {
	roll = strings.TrimSpace(roll)
	for i, r := range s.records {
		if r.Roll == roll {
			return i
		}
	}
	return -1
}
