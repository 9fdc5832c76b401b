package api

import (
	"net/http"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/types"
)

// TemplateHandler handles scoring template requests.
type TemplateHandler struct {
	deps TemplateService
}

// NewTemplateHandler creates a new template handler.
func NewTemplateHandler(deps TemplateService) *TemplateHandler {
	return &TemplateHandler{deps: deps}
}

// HandleList handles GET /templates.
func (h *TemplateHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ts, err := h.deps.ListTemplates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if ts == nil {
		ts = []*model.ScoringTemplate{}
	}
	writeJSON(w, http.StatusOK, ts)
}

// HandleCreate handles POST /templates.
func (h *TemplateHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var t model.ScoringTemplate
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, err)
		return
	}
	created, err := h.deps.CreateTemplate(r.Context(), &t)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/templates/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// HandleGet handles GET /templates/{id}.
func (h *TemplateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	respondTemplate(w)(h.deps.GetTemplate(r.Context(), r.PathValue("id")))
}

// HandleUpdate handles PUT /templates/{id}.
func (h *TemplateHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var t model.ScoringTemplate
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, err)
		return
	}
	respondTemplate(w)(h.deps.UpdateTemplate(r.Context(), r.PathValue("id"), &t))
}

// HandleAssign handles PUT /competitions/{cid}/categories/{kid}/template.
func (h *TemplateHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var body types.TemplateAssignment
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	key := model.TemplateKey{
		CompetitionID: r.PathValue("cid"),
		CategoryID:    r.PathValue("kid"),
		Discipline:    body.Discipline,
	}
	if err := h.deps.AssignTemplate(r.Context(), key, body.TemplateID); err != nil {
		writeError(w, err)
		return
	}
	respondTemplate(w)(h.deps.ResolveTemplate(r.Context(), key))
}

// HandleResolve handles GET /competitions/{cid}/categories/{kid}/template?discipline=.
// The discipline defaults to dressage.
func (h *TemplateHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	d := model.Discipline(r.URL.Query().Get("discipline"))
	if d == "" {
		d = model.Dressage
	}
	respondTemplate(w)(h.deps.ResolveTemplate(r.Context(), model.TemplateKey{
		CompetitionID: r.PathValue("cid"),
		CategoryID:    r.PathValue("kid"),
		Discipline:    d,
	}))
}

func respondTemplate(w http.ResponseWriter) func(*model.ScoringTemplate, error) {
	return func(t *model.ScoringTemplate, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}
