package services

import (
	"context"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

type RunsService struct {
	repo importrun.Repository
}

func NewRunsService(repo importrun.Repository) *RunsService {
	return &RunsService{repo: repo}
}

// List returns runs newest first, applying the default limit and cap.
func (s *RunsService) List(ctx context.Context, params *importrun.FindParams) ([]*importrun.ImportRun, error) {
	if params == nil {
		params = &importrun.FindParams{}
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return nil, serrors.Validation("to must not be before from")
	}
	if params.Status != "" && !params.Status.IsValid() {
		return nil, serrors.Validation("invalid status %q", params.Status)
	}
	p := *params
	p.Limit = params.EffectiveLimit()
	return s.repo.List(ctx, &p)
}
