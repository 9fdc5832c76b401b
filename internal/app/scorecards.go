package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	repository "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/repository"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scorecard"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scoring"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/types"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/metrics"
)

// CreateScoreCard opens a pending scorecard for one judge and participant.
func (s *Service) CreateScoreCard(ctx context.Context, req types.NewScoreCard) (c *model.ScoreCard, err error) {
	const op = "create"
	defer func() { s.observe(ctx, op, c, err) }()

	req.CompetitionID = strings.TrimSpace(req.CompetitionID)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if err := s.checkAssignedDiscipline(ctx, req); err != nil {
		return nil, err
	}
	rule, t, err := s.ruleForRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	params := scorecard.Params{
		ID:            s.newID(),
		ParticipantID: strings.TrimSpace(req.ParticipantID),
		JudgeID:       strings.TrimSpace(req.JudgeID),
		JudgePosition: req.JudgePosition,
		CompetitionID: req.CompetitionID,
		CategoryID:    req.CategoryID,
	}
	if t != nil {
		params.TemplateID = t.ID
		params.TemplateVersion = t.Version
	}
	if req.Discipline == model.Jumping {
		params.AllowedTimeSeconds = s.allowedTime(params.CompetitionID, req.AllowedTimeSeconds)
	}
	c, err = s.machine.New(params, rule)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateScoreCard(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// checkAssignedDiscipline rejects a card for a category whose template
// assignment belongs to the other discipline.
func (s *Service) checkAssignedDiscipline(ctx context.Context, req types.NewScoreCard) error {
	if !req.Discipline.Valid() {
		return nil
	}
	other := model.Jumping
	if req.Discipline == model.Jumping {
		other = model.Dressage
	}
	_, err := s.store.AssignedTemplate(ctx, model.TemplateKey{
		CompetitionID: req.CompetitionID,
		CategoryID:    req.CategoryID,
		Discipline:    other,
	})
	switch {
	case err == nil:
		return model.Invalid("service.create_scorecard", "discipline", "assigned", string(other), string(req.Discipline))
	case errors.Is(err, model.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) ruleForRequest(ctx context.Context, req types.NewScoreCard) (scoring.Rule, *model.ScoringTemplate, error) {
	switch req.Discipline {
	case model.Dressage:
		var (
			t   *model.ScoringTemplate
			err error
		)
		if req.TemplateID != "" {
			t, err = s.store.GetTemplate(ctx, req.TemplateID)
		} else {
			t, err = s.ResolveTemplate(ctx, model.TemplateKey{
				CompetitionID: req.CompetitionID,
				CategoryID:    req.CategoryID,
				Discipline:    model.Dressage,
			})
		}
		if err != nil {
			return nil, nil, err
		}
		rule, err := scoring.NewDressage(t)
		if err != nil {
			return nil, nil, err
		}
		return rule, t, nil
	case model.Jumping:
		rule, err := scoring.NewJumping(s.faultTable)
		if err != nil {
			return nil, nil, err
		}
		return rule, nil, nil
	default:
		return nil, nil, model.Invalid("service.create_scorecard", "discipline", "oneof", "dressage jumping", string(req.Discipline))
	}
}

func (s *Service) allowedTime(competitionID string, override *float64) float64 {
	if override != nil {
		return *override
	}
	if v, ok := s.allowedTimes[competitionID]; ok {
		return v
	}
	return s.defaultAllowedTime
}

// ruleFor rebuilds the scoring rule of an existing card. An editable card
// must still match the template version it was opened under; locked cards
// are never rescored.
func (s *Service) ruleFor(ctx context.Context, c *model.ScoreCard) (scoring.Rule, error) {
	var t *model.ScoringTemplate
	if c.Discipline == model.Dressage {
		var err error
		if t, err = s.store.GetTemplate(ctx, c.TemplateID); err != nil {
			return nil, err
		}
		if scorecard.Editable(c.Status) && c.TemplateVersion != 0 && t.Version != c.TemplateVersion {
			return nil, model.NewError("service.scoring_rule", model.ErrVersionConflict).WithField(
				"template_version", "unchanged", strconv.Itoa(c.TemplateVersion), strconv.Itoa(t.Version))
		}
	}
	return scoring.New(c.Discipline, t, s.faultTable)
}

// mutate applies fn to a card inside the store's atomic update.
func (s *Service) mutate(ctx context.Context, op, id string, fn func(*model.ScoreCard, scoring.Rule) error) (c *model.ScoreCard, err error) {
	defer func() { s.observe(ctx, op, c, err) }()

	current, err := s.store.GetScoreCard(ctx, id)
	if err != nil {
		return nil, err
	}
	rule, err := s.ruleFor(ctx, current)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateScoreCard(ctx, id, func(c *model.ScoreCard) error {
		return fn(c, rule)
	})
}

// transition applies a lifecycle step and schedules a ranking refresh.
func (s *Service) transition(ctx context.Context, op, id string, fn func(*model.ScoreCard, scoring.Rule) error) (*model.ScoreCard, error) {
	c, err := s.mutate(ctx, op, id, fn)
	if err != nil {
		return nil, err
	}
	metrics.RecordScoreCardTransition(string(c.Status))
	if c.Status != model.StatusInProgress {
		s.scheduleRecalculation(ctx, c, op)
	}
	return c, nil
}

func (s *Service) observe(ctx context.Context, op string, c *model.ScoreCard, err error) {
	metrics.RecordScoreCardOperation(op, outcome(err))
	if err != nil {
		s.log().Debug(ctx, "scorecard operation rejected", logger.String("op", op), logger.Error(err))
		return
	}
	s.log().Debug(ctx, "scorecard operation",
		logger.String("op", op),
		logger.String("scorecard_id", c.ID),
		logger.String("status", string(c.Status)),
		logger.Float64("final_score", c.FinalScore),
	)
}

func (s *Service) log() logger.Logger {
	if s.logger == nil {
		return logger.Get()
	}
	return s.logger
}

// RecordMark enters or replaces one dressage mark.
func (s *Service) RecordMark(ctx context.Context, id string, mark model.MarkID, value float64) (*model.ScoreCard, error) {
	return s.mutate(ctx, "record_mark", id, func(c *model.ScoreCard, r scoring.Rule) error {
		return s.machine.RecordMark(c, r, mark, value)
	})
}

// ClearMark returns a dressage mark to the not-entered state.
func (s *Service) ClearMark(ctx context.Context, id string, mark model.MarkID) (*model.ScoreCard, error) {
	return s.mutate(ctx, "clear_mark", id, func(c *model.ScoreCard, r scoring.Rule) error {
		return s.machine.ClearMark(c, r, mark)
	})
}

// RecordFault appends a jumping fault with explicit penalty points.
func (s *Service) RecordFault(ctx context.Context, id string, f model.FaultEntry) (*model.ScoreCard, error) {
	return s.mutate(ctx, "record_fault", id, func(c *model.ScoreCard, r scoring.Rule) error {
		return s.machine.RecordFault(c, r, f)
	})
}

// RecordStandardFault appends a jumping fault priced by the fault table,
// counting earlier faults of the same type on the round.
func (s *Service) RecordStandardFault(ctx context.Context, id string, obstacle int, t model.FaultType) (*model.ScoreCard, error) {
	return s.mutate(ctx, "record_standard_fault", id, func(c *model.ScoreCard, r scoring.Rule) error {
		prior := 0
		for _, f := range c.Faults {
			if f.Type == t {
				prior++
			}
		}
		return s.machine.RecordFault(c, r, model.FaultEntry{
			ObstacleNumber: obstacle,
			Type:           t,
			PenaltyPoints:  s.faultTable.Penalty(t, prior),
		})
	})
}

// RecordTime sets the elapsed jumping round time.
func (s *Service) RecordTime(ctx context.Context, id string, seconds float64) (*model.ScoreCard, error) {
	return s.mutate(ctx, "record_time", id, func(c *model.ScoreCard, r scoring.Rule) error {
		return s.machine.RecordTime(c, r, seconds)
	})
}

// StartEvaluation moves a pending card to in_progress.
func (s *Service) StartEvaluation(ctx context.Context, id string) (*model.ScoreCard, error) {
	return s.transition(ctx, "start", id, func(c *model.ScoreCard, _ scoring.Rule) error {
		return s.machine.Start(c)
	})
}

// CompleteEvaluation freezes a card once every required input is present.
func (s *Service) CompleteEvaluation(ctx context.Context, id string) (*model.ScoreCard, error) {
	return s.transition(ctx, "complete", id, func(c *model.ScoreCard, r scoring.Rule) error {
		return s.machine.Complete(c, r)
	})
}

// ValidateScoreCard confirms a completed card.
func (s *Service) ValidateScoreCard(ctx context.Context, id string) (*model.ScoreCard, error) {
	return s.transition(ctx, "validate", id, func(c *model.ScoreCard, _ scoring.Rule) error {
		return s.machine.Validate(c)
	})
}

// PublishScoreCard publishes a validated card.
func (s *Service) PublishScoreCard(ctx context.Context, id string) (*model.ScoreCard, error) {
	return s.transition(ctx, "publish", id, func(c *model.ScoreCard, _ scoring.Rule) error {
		return s.machine.Publish(c)
	})
}

// Disqualify excludes a card from ranking for the given reason.
func (s *Service) Disqualify(ctx context.Context, id, reason string) (*model.ScoreCard, error) {
	c, err := s.transition(ctx, "disqualify", id, func(c *model.ScoreCard, _ scoring.Rule) error {
		return s.machine.Disqualify(c, reason)
	})
	if err != nil {
		return nil, err
	}
	s.log().Info(ctx, "scorecard disqualified",
		logger.String("scorecard_id", c.ID),
		logger.String("participant_id", c.ParticipantID),
		logger.String("judge_id", c.JudgeID),
	)
	return c, nil
}

// GetScoreCard returns one card.
func (s *Service) GetScoreCard(ctx context.Context, id string) (*model.ScoreCard, error) {
	return s.store.GetScoreCard(ctx, id)
}

// ListScoreCards returns the cards matching f.
func (s *Service) ListScoreCards(ctx context.Context, f repository.ScoreCardFilter) ([]*model.ScoreCard, error) {
	return s.store.ListScoreCards(ctx, f)
}
