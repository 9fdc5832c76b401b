package api

import (
	"context"
	"errors"
	"net/http"

	repository "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/repository"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/types"
)

// ScoreCardHandler handles scorecard requests.
type ScoreCardHandler struct {
	deps ScoreCardService
}

// NewScoreCardHandler creates a new scorecard handler.
func NewScoreCardHandler(deps ScoreCardService) *ScoreCardHandler {
	return &ScoreCardHandler{deps: deps}
}

// HandleCreate handles POST /scorecards.
func (h *ScoreCardHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.NewScoreCard
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.deps.CreateScoreCard(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/scorecards/"+c.ID)
	writeJSON(w, http.StatusCreated, c)
}

// HandleGet handles GET /scorecards/{id}.
func (h *ScoreCardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	respondCard(w)(h.deps.GetScoreCard(r.Context(), r.PathValue("id")))
}

// HandleRecordMark handles PUT /scorecards/{id}/marks/{markID}.
func (h *ScoreCardHandler) HandleRecordMark(w http.ResponseWriter, r *http.Request) {
	var body types.MarkValue
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Value == nil {
		writeError(w, model.Invalid("api.record_mark", "value", "required", "number", ""))
		return
	}
	mark := model.MarkID(r.PathValue("markID"))
	respondCard(w)(h.deps.RecordMark(r.Context(), r.PathValue("id"), mark, *body.Value))
}

// HandleClearMark handles DELETE /scorecards/{id}/marks/{markID}.
func (h *ScoreCardHandler) HandleClearMark(w http.ResponseWriter, r *http.Request) {
	mark := model.MarkID(r.PathValue("markID"))
	respondCard(w)(h.deps.ClearMark(r.Context(), r.PathValue("id"), mark))
}

// HandleRecordFault handles POST /scorecards/{id}/faults. A body without
// penalty_points is priced from the fault table.
func (h *ScoreCardHandler) HandleRecordFault(w http.ResponseWriter, r *http.Request) {
	var body types.Fault
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	if body.Standard() {
		respondCard(w)(h.deps.RecordStandardFault(r.Context(), id, body.ObstacleNumber, body.Type))
		return
	}
	respondCard(w)(h.deps.RecordFault(r.Context(), id, body.Entry()))
}

// HandleRecordTime handles PUT /scorecards/{id}/time.
func (h *ScoreCardHandler) HandleRecordTime(w http.ResponseWriter, r *http.Request) {
	var body types.ElapsedTime
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Seconds == nil {
		writeError(w, model.Invalid("api.record_time", "seconds", "required", "number", ""))
		return
	}
	respondCard(w)(h.deps.RecordTime(r.Context(), r.PathValue("id"), *body.Seconds))
}

// HandleStart handles POST /scorecards/{id}/start.
func (h *ScoreCardHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.deps.StartEvaluation)
}

// HandleComplete handles POST /scorecards/{id}/complete.
func (h *ScoreCardHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.deps.CompleteEvaluation)
}

// HandleValidate handles POST /scorecards/{id}/validate.
func (h *ScoreCardHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.deps.ValidateScoreCard)
}

// HandlePublish handles POST /scorecards/{id}/publish.
func (h *ScoreCardHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.deps.PublishScoreCard)
}

// HandleDisqualify handles POST /scorecards/{id}/disqualify.
func (h *ScoreCardHandler) HandleDisqualify(w http.ResponseWriter, r *http.Request) {
	var body types.Disqualification
	// An empty body is an empty reason, rejected by the service.
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, err)
		return
	}
	respondCard(w)(h.deps.Disqualify(r.Context(), r.PathValue("id"), body.Reason))
}

// HandleListCategory handles GET /competitions/{cid}/categories/{kid}/scorecards.
// Optional query filters: status, participant_id, judge_id.
func (h *ScoreCardHandler) HandleListCategory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cards, err := h.deps.ListScoreCards(r.Context(), repository.ScoreCardFilter{
		CompetitionID: r.PathValue("cid"),
		CategoryID:    r.PathValue("kid"),
		ParticipantID: q.Get("participant_id"),
		JudgeID:       q.Get("judge_id"),
		Status:        model.Status(q.Get("status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if cards == nil {
		cards = []*model.ScoreCard{}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (h *ScoreCardHandler) step(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*model.ScoreCard, error)) {
	respondCard(w)(fn(r.Context(), r.PathValue("id")))
}

// respondCard writes the outcome of a scorecard operation.
func respondCard(w http.ResponseWriter) func(*model.ScoreCard, error) {
	return func(c *model.ScoreCard, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}
