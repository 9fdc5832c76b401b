// Package repository persists scorecards, rankings and scoring templates.
//
// Every mutation goes through an Update* call that applies a function to a
// copy of the stored record and saves it only if the function succeeds, so a
// failed operation never leaves a partially applied change behind.
package repository

import (
	"context"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
)

// ScoreCardFilter narrows ListScoreCards. Empty fields match everything.
type ScoreCardFilter struct {
	CompetitionID string
	CategoryID    string
	ParticipantID string
	JudgeID       string
	TemplateID    string
	Status        model.Status
}

// Match reports whether c passes the filter.
func (f ScoreCardFilter) Match(c *model.ScoreCard) bool {
	return (f.CompetitionID == "" || c.CompetitionID == f.CompetitionID) &&
		(f.CategoryID == "" || c.CategoryID == f.CategoryID) &&
		(f.ParticipantID == "" || c.ParticipantID == f.ParticipantID) &&
		(f.JudgeID == "" || c.JudgeID == f.JudgeID) &&
		(f.TemplateID == "" || c.TemplateID == f.TemplateID) &&
		(f.Status == "" || c.Status == f.Status)
}

// ScoreCardStore stores scorecards.
type ScoreCardStore interface {
	// CreateScoreCard inserts c. Fails with ErrAlreadyExists on a duplicate
	// ID or a second card for the same participant and judge in a category,
	// and with model.ErrValidation when the category already holds cards of
	// another discipline.
	CreateScoreCard(ctx context.Context, c *model.ScoreCard) error
	// GetScoreCard returns a copy of the card.
	GetScoreCard(ctx context.Context, id string) (*model.ScoreCard, error)
	// UpdateScoreCard applies fn to a copy of the card and stores the result
	// with Version incremented. Nothing is stored if fn fails.
	UpdateScoreCard(ctx context.Context, id string, fn func(*model.ScoreCard) error) (*model.ScoreCard, error)
	// ListScoreCards returns matching cards ordered by ID.
	ListScoreCards(ctx context.Context, f ScoreCardFilter) ([]*model.ScoreCard, error)
	// ListCategories returns the distinct category IDs holding cards of a
	// competition, sorted.
	ListCategories(ctx context.Context, competitionID string) ([]string, error)
	CountScoreCards(ctx context.Context) (int, error)
}

// RankingStore stores one ranking per competition category.
type RankingStore interface {
	GetRanking(ctx context.Context, id string) (*model.Ranking, error)
	FindRanking(ctx context.Context, competitionID, categoryID string) (*model.Ranking, error)
	// UpdateCategoryRanking applies fn to a copy of the category's ranking,
	// or to a new one with an empty ID if none exists yet; fn must then set
	// the ID.
	UpdateCategoryRanking(ctx context.Context, competitionID, categoryID string, fn func(*model.Ranking) error) (*model.Ranking, error)
	// UpdateRanking applies fn to a copy of an existing ranking.
	UpdateRanking(ctx context.Context, id string, fn func(*model.Ranking) error) (*model.Ranking, error)
	CountRankings(ctx context.Context) (int, error)
}

// TemplateStore stores scoring templates and their category assignments.
type TemplateStore interface {
	// CreateTemplate inserts t, failing with ErrAlreadyExists on a duplicate ID.
	CreateTemplate(ctx context.Context, t *model.ScoringTemplate) error
	// PutTemplate inserts or replaces t unconditionally. Used to load
	// system templates at startup.
	PutTemplate(ctx context.Context, t *model.ScoringTemplate) error
	GetTemplate(ctx context.Context, id string) (*model.ScoringTemplate, error)
	UpdateTemplate(ctx context.Context, id string, fn func(*model.ScoringTemplate) error) (*model.ScoringTemplate, error)
	// ListTemplates returns every template ordered by ID.
	ListTemplates(ctx context.Context) ([]*model.ScoringTemplate, error)
	AssignTemplate(ctx context.Context, key model.TemplateKey, templateID string) error
	// AssignedTemplate returns the template ID assigned to key, or
	// model.ErrNotFound.
	AssignedTemplate(ctx context.Context, key model.TemplateKey) (string, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	ScoreCardStore
	RankingStore
	TemplateStore
	Close() error
}
