package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	repository "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/repository"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/ranking"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/metrics"
)

// recalculateConcurrency bounds parallel category rebuilds in
// RecalculateCompetition.
const recalculateConcurrency = 4

var errUnchanged = errors.New("ranking unchanged")

// RecalculateRanking rebuilds the ranking of one category from its eligible
// cards. With nothing eligible the stored entries are cleared and
// model.ErrNoEligibleScoreCards is returned. Publication state is kept.
func (s *Service) RecalculateRanking(ctx context.Context, competitionID, categoryID string) (r *model.Ranking, err error) {
	const op = "service.recalculate_ranking"
	start := time.Now()
	var discipline model.Discipline
	defer func() {
		metrics.RecordRankingRecalculation(string(discipline), outcome(err), time.Since(start).Seconds())
	}()

	cards, err := s.store.ListScoreCards(ctx, repository.ScoreCardFilter{
		CompetitionID: competitionID,
		CategoryID:    categoryID,
	})
	if err != nil {
		return nil, err
	}

	discipline, participants, err := eligibleSet(op, cards)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, s.clearRanking(ctx, competitionID, categoryID)
	}

	info, err := s.participants.Participants(ctx, competitionID, participants)
	if err != nil {
		s.log().Warn(ctx, "participant directory unavailable",
			logger.String("competition_id", competitionID),
			logger.Error(err),
		)
		info = nil
	}

	res, err := s.builder.Build(discipline, cards, info)
	if err != nil {
		return nil, err
	}

	r, err = s.store.UpdateCategoryRanking(ctx, competitionID, categoryID, func(r *model.Ranking) error {
		if r.ID == "" {
			r.ID = s.newID()
		}
		r.Discipline = discipline
		ranking.Replace(r, res)
		return nil
	})
	if err != nil {
		return nil, err
	}

	tied := 0
	for _, e := range r.Entries {
		if e.IsTied {
			tied++
		}
	}
	metrics.RecordRankingShape(len(r.Entries), tied)
	s.log().Debug(ctx, "ranking recalculated",
		logger.String("ranking_id", r.ID),
		logger.String("competition_id", competitionID),
		logger.String("category_id", categoryID),
		logger.Int("entries", len(r.Entries)),
		logger.Int("tied", tied),
		logger.Bool("is_final", r.IsFinal),
	)
	return r, nil
}

// eligibleSet returns the discipline and participants of the eligible
// cards. A category cannot mix disciplines.
func eligibleSet(op string, cards []*model.ScoreCard) (model.Discipline, []string, error) {
	var d model.Discipline
	seen := map[string]struct{}{}
	var ids []string
	for _, c := range cards {
		if !model.Eligible(c) {
			continue
		}
		if d == "" {
			d = c.Discipline
		} else if c.Discipline != d {
			return "", nil, model.Invalid(op, "discipline", "single", string(d), string(c.Discipline))
		}
		if _, ok := seen[c.ParticipantID]; !ok {
			seen[c.ParticipantID] = struct{}{}
			ids = append(ids, c.ParticipantID)
		}
	}
	sort.Strings(ids)
	return d, ids, nil
}

// clearRanking empties a stored ranking. It never creates one.
func (s *Service) clearRanking(ctx context.Context, competitionID, categoryID string) error {
	noEligible := model.NewError("service.recalculate_ranking", model.ErrNoEligibleScoreCards)
	_, err := s.store.UpdateCategoryRanking(ctx, competitionID, categoryID, func(r *model.Ranking) error {
		if r.ID == "" {
			return noEligible
		}
		ranking.Clear(r)
		return nil
	})
	if err != nil && !errors.Is(err, model.ErrNoEligibleScoreCards) {
		return err
	}
	return noEligible
}

// RecalculateCompetition rebuilds every category of a competition. Categories
// with nothing eligible are skipped.
func (s *Service) RecalculateCompetition(ctx context.Context, competitionID string) ([]*model.Ranking, error) {
	categories, err := s.store.ListCategories(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	results := make([]*model.Ranking, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recalculateConcurrency)
	for i, category := range categories {
		g.Go(func() error {
			r, err := s.RecalculateRanking(gctx, competitionID, category)
			if errors.Is(err, model.ErrNoEligibleScoreCards) {
				return nil
			}
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	s.log().Info(ctx, "competition recalculated",
		logger.String("competition_id", competitionID),
		logger.Int("categories", len(categories)),
		logger.Int("rankings", len(out)),
	)
	return out, nil
}

// PublishRanking marks a ranking as published. Entries are not recomputed.
func (s *Service) PublishRanking(ctx context.Context, id string) (r *model.Ranking, err error) {
	result := "published"
	defer func() {
		if err != nil {
			result = outcome(err)
			if errors.Is(err, model.ErrAlreadyPublishedNoChange) {
				result = "unchanged"
			} else if errors.Is(err, model.ErrNoEligibleScoreCards) {
				result = "empty"
			}
		}
		metrics.RecordRankingPublication(result)
	}()

	r, err = s.store.UpdateRanking(ctx, id, func(r *model.Ranking) error {
		changed, err := ranking.Publish(r, s.now(), s.republishPolicy)
		if err != nil {
			return err
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		result = "noop"
		return s.store.GetRanking(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	s.log().Info(ctx, "ranking published",
		logger.String("ranking_id", r.ID),
		logger.String("competition_id", r.CompetitionID),
		logger.String("category_id", r.CategoryID),
		logger.Int("entries", len(r.Entries)),
		logger.Bool("is_final", r.IsFinal),
	)
	return r, nil
}

// GetRanking returns a ranking by ID.
func (s *Service) GetRanking(ctx context.Context, id string) (*model.Ranking, error) {
	return s.store.GetRanking(ctx, id)
}

// FindRanking returns the ranking of a category.
func (s *Service) FindRanking(ctx context.Context, competitionID, categoryID string) (*model.Ranking, error) {
	return s.store.FindRanking(ctx, competitionID, categoryID)
}
