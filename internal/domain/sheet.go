package domain

import (
	"context"

	"registrar/internal/model"
)

type SheetService interface {
	WriteRoster(ctx context.Context, records []model.Registrant) error
}
