package service

import (
	"context"
	"errors"
	"strconv"

	repository "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/repository"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scorecard"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scoring"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
)

// CreateTemplate stores a custom scoring template.
func (s *Service) CreateTemplate(ctx context.Context, t *model.ScoringTemplate) (*model.ScoringTemplate, error) {
	if t == nil {
		return nil, model.Invalid("service.create_template", "template", "required", "template", "nil")
	}
	t = t.Clone()
	t.SystemOwned = false
	if t.Version == 0 {
		t.Version = 1
	}
	if err := scoring.ValidateTemplate(t); err != nil {
		return nil, err
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}
	s.log().Info(ctx, "template created",
		logger.String("template_id", t.ID),
		logger.String("discipline", string(t.Discipline)),
	)
	return t, nil
}

// UpdateTemplate replaces the definition of a custom template and bumps its
// version. System templates fail with model.ErrTemplateImmutable, and a
// template still scoring pending or in-progress cards fails with
// model.ErrTemplateInUse.
func (s *Service) UpdateTemplate(ctx context.Context, id string, next *model.ScoringTemplate) (*model.ScoringTemplate, error) {
	const op = "service.update_template"
	if next == nil {
		return nil, model.Invalid(op, "template", "required", "template", "nil")
	}
	if err := s.checkTemplateUnused(ctx, op, id); err != nil {
		return nil, err
	}
	return s.store.UpdateTemplate(ctx, id, func(t *model.ScoringTemplate) error {
		if t.SystemOwned {
			return model.NewError(op, model.ErrTemplateImmutable).WithField("id", "system_owned", "false", "true")
		}
		updated := next.Clone()
		updated.ID = t.ID
		updated.SystemOwned = false
		updated.Version = t.Version + 1
		if err := scoring.ValidateTemplate(updated); err != nil {
			return err
		}
		*t = *updated
		return nil
	})
}

// checkTemplateUnused fails when an editable card is scored by template id.
// Cards opened concurrently are caught by the version check in ruleFor.
func (s *Service) checkTemplateUnused(ctx context.Context, op, id string) error {
	cards, err := s.store.ListScoreCards(ctx, repository.ScoreCardFilter{TemplateID: id})
	if err != nil {
		return err
	}
	editable := 0
	for _, c := range cards {
		if scorecard.Editable(c.Status) {
			editable++
		}
	}
	if editable == 0 {
		return nil
	}
	return model.NewError(op, model.ErrTemplateInUse).WithField("id", "unused", "0 editable scorecards", strconv.Itoa(editable))
}

// GetTemplate returns a template by ID.
func (s *Service) GetTemplate(ctx context.Context, id string) (*model.ScoringTemplate, error) {
	return s.store.GetTemplate(ctx, id)
}

// ListTemplates returns every template ordered by ID.
func (s *Service) ListTemplates(ctx context.Context) ([]*model.ScoringTemplate, error) {
	return s.store.ListTemplates(ctx)
}

// AssignTemplate binds a template to a competition category and discipline.
func (s *Service) AssignTemplate(ctx context.Context, key model.TemplateKey, templateID string) error {
	const op = "service.assign_template"
	if key.CompetitionID == "" || key.CategoryID == "" {
		return model.Invalid(op, "key", "required", "competition_id and category_id", "")
	}
	if !key.Discipline.Valid() {
		return model.Invalid(op, "discipline", "oneof", "dressage jumping", string(key.Discipline))
	}
	t, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if t.Discipline != key.Discipline {
		return model.Invalid(op, "template_id", "discipline", string(key.Discipline), string(t.Discipline))
	}
	return s.store.AssignTemplate(ctx, key, templateID)
}

// ResolveTemplate returns the template assigned to key.
func (s *Service) ResolveTemplate(ctx context.Context, key model.TemplateKey) (*model.ScoringTemplate, error) {
	id, err := s.store.AssignedTemplate(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NotFound("service.resolve_template", "template assignment",
				key.CompetitionID+"/"+key.CategoryID+"/"+string(key.Discipline))
		}
		return nil, err
	}
	return s.store.GetTemplate(ctx, id)
}
