// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	repository "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/repository"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("empty body")

// ScoreCardService is the scorecard half of the engine.
type ScoreCardService interface {
	CreateScoreCard(ctx context.Context, req types.NewScoreCard) (*model.ScoreCard, error)
	GetScoreCard(ctx context.Context, id string) (*model.ScoreCard, error)
	ListScoreCards(ctx context.Context, f repository.ScoreCardFilter) ([]*model.ScoreCard, error)
	RecordMark(ctx context.Context, id string, mark model.MarkID, value float64) (*model.ScoreCard, error)
	ClearMark(ctx context.Context, id string, mark model.MarkID) (*model.ScoreCard, error)
	RecordFault(ctx context.Context, id string, f model.FaultEntry) (*model.ScoreCard, error)
	RecordStandardFault(ctx context.Context, id string, obstacle int, t model.FaultType) (*model.ScoreCard, error)
	RecordTime(ctx context.Context, id string, seconds float64) (*model.ScoreCard, error)
	StartEvaluation(ctx context.Context, id string) (*model.ScoreCard, error)
	CompleteEvaluation(ctx context.Context, id string) (*model.ScoreCard, error)
	ValidateScoreCard(ctx context.Context, id string) (*model.ScoreCard, error)
	PublishScoreCard(ctx context.Context, id string) (*model.ScoreCard, error)
	Disqualify(ctx context.Context, id, reason string) (*model.ScoreCard, error)
}

// RankingService is the ranking half of the engine.
type RankingService interface {
	RecalculateRanking(ctx context.Context, competitionID, categoryID string) (*model.Ranking, error)
	RecalculateCompetition(ctx context.Context, competitionID string) ([]*model.Ranking, error)
	PublishRanking(ctx context.Context, id string) (*model.Ranking, error)
	GetRanking(ctx context.Context, id string) (*model.Ranking, error)
	FindRanking(ctx context.Context, competitionID, categoryID string) (*model.Ranking, error)
}

// TemplateService manages scoring templates.
type TemplateService interface {
	CreateTemplate(ctx context.Context, t *model.ScoringTemplate) (*model.ScoringTemplate, error)
	UpdateTemplate(ctx context.Context, id string, t *model.ScoringTemplate) (*model.ScoringTemplate, error)
	GetTemplate(ctx context.Context, id string) (*model.ScoringTemplate, error)
	ListTemplates(ctx context.Context) ([]*model.ScoringTemplate, error)
	AssignTemplate(ctx context.Context, key model.TemplateKey, templateID string) error
	ResolveTemplate(ctx context.Context, key model.TemplateKey) (*model.ScoringTemplate, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ScoreCardService
	RankingService
	TemplateService
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	scoreCardHandler *ScoreCardHandler
	rankingHandler   *RankingHandler
	templateHandler  *TemplateHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		scoreCardHandler: NewScoreCardHandler(deps),
		rankingHandler:   NewRankingHandler(deps),
		templateHandler:  NewTemplateHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	routes := []struct {
		pattern  string
		endpoint string
		handler  http.HandlerFunc
	}{
		{"GET /healthz", "healthz", s.healthHandler.HandleHealth},
		{"GET /stats", "stats", s.statsHandler.HandleStats},

		{"POST /scorecards", "scorecards", s.scoreCardHandler.HandleCreate},
		{"GET /scorecards/{id}", "scorecard", s.scoreCardHandler.HandleGet},
		{"PUT /scorecards/{id}/marks/{markID}", "scorecard_mark", s.scoreCardHandler.HandleRecordMark},
		{"DELETE /scorecards/{id}/marks/{markID}", "scorecard_mark", s.scoreCardHandler.HandleClearMark},
		{"POST /scorecards/{id}/faults", "scorecard_faults", s.scoreCardHandler.HandleRecordFault},
		{"PUT /scorecards/{id}/time", "scorecard_time", s.scoreCardHandler.HandleRecordTime},
		{"POST /scorecards/{id}/start", "scorecard_start", s.scoreCardHandler.HandleStart},
		{"POST /scorecards/{id}/complete", "scorecard_complete", s.scoreCardHandler.HandleComplete},
		{"POST /scorecards/{id}/validate", "scorecard_validate", s.scoreCardHandler.HandleValidate},
		{"POST /scorecards/{id}/publish", "scorecard_publish", s.scoreCardHandler.HandlePublish},
		{"POST /scorecards/{id}/disqualify", "scorecard_disqualify", s.scoreCardHandler.HandleDisqualify},
		{"GET /competitions/{cid}/categories/{kid}/scorecards", "category_scorecards", s.scoreCardHandler.HandleListCategory},

		{"POST /competitions/{cid}/categories/{kid}/ranking/recalculate", "ranking_recalculate", s.rankingHandler.HandleRecalculate},
		{"GET /competitions/{cid}/categories/{kid}/ranking", "category_ranking", s.rankingHandler.HandleFind},
		{"POST /competitions/{cid}/recalculate", "competition_recalculate", s.rankingHandler.HandleRecalculateCompetition},
		{"GET /rankings/{id}", "ranking", s.rankingHandler.HandleGet},
		{"POST /rankings/{id}/publish", "ranking_publish", s.rankingHandler.HandlePublish},

		{"PUT /competitions/{cid}/categories/{kid}/template", "category_template", s.templateHandler.HandleAssign},
		{"GET /competitions/{cid}/categories/{kid}/template", "category_template", s.templateHandler.HandleResolve},
		{"GET /templates", "templates", s.templateHandler.HandleList},
		{"POST /templates", "templates", s.templateHandler.HandleCreate},
		{"GET /templates/{id}", "template", s.templateHandler.HandleGet},
		{"PUT /templates/{id}", "template", s.templateHandler.HandleUpdate},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, MetricsMiddleware(rt.handler, rt.endpoint))
	}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Field    string   `json:"field,omitempty"`
	Rule     string   `json:"rule,omitempty"`
	Expected string   `json:"expected,omitempty"`
	Actual   string   `json:"actual,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes its structured detail.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := errorResponse{Code: code, Message: err.Error()}
	if e, ok := model.AsError(err); ok {
		resp.Field = e.Field
		resp.Rule = e.Rule
		resp.Expected = e.Expected
		resp.Actual = e.Actual
		resp.Missing = e.Missing
	}
	if status >= http.StatusInternalServerError {
		resp.Message = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	const op = "api.decode"
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return WrapKind(op, ErrBadRequest, errEmptyBody)
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// WrapKind tags err with an API error kind.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
