package api

import (
	"net/http"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
)

// RankingHandler handles ranking requests.
type RankingHandler struct {
	deps RankingService
}

// NewRankingHandler creates a new ranking handler.
func NewRankingHandler(deps RankingService) *RankingHandler {
	return &RankingHandler{deps: deps}
}

// HandleRecalculate handles POST /competitions/{cid}/categories/{kid}/ranking/recalculate.
func (h *RankingHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	respondRanking(w)(h.deps.RecalculateRanking(r.Context(), r.PathValue("cid"), r.PathValue("kid")))
}

// HandleFind handles GET /competitions/{cid}/categories/{kid}/ranking.
func (h *RankingHandler) HandleFind(w http.ResponseWriter, r *http.Request) {
	respondRanking(w)(h.deps.FindRanking(r.Context(), r.PathValue("cid"), r.PathValue("kid")))
}

// HandleRecalculateCompetition handles POST /competitions/{cid}/recalculate.
func (h *RankingHandler) HandleRecalculateCompetition(w http.ResponseWriter, r *http.Request) {
	rankings, err := h.deps.RecalculateCompetition(r.Context(), r.PathValue("cid"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rankings == nil {
		rankings = []*model.Ranking{}
	}
	writeJSON(w, http.StatusOK, rankings)
}

// HandleGet handles GET /rankings/{id}.
func (h *RankingHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	respondRanking(w)(h.deps.GetRanking(r.Context(), r.PathValue("id")))
}

// HandlePublish handles POST /rankings/{id}/publish.
func (h *RankingHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	respondRanking(w)(h.deps.PublishRanking(r.Context(), r.PathValue("id")))
}

func respondRanking(w http.ResponseWriter) func(*model.Ranking, error) {
	return func(rk *model.Ranking, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rk)
	}
}
