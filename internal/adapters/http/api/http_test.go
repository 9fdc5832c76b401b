package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/http/api"
	service "github.com/Avillegasa/equestrian-fei-system-sub000/internal/app"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type apiError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Field   string   `json:"field"`
	Rule    string   `json:"rule"`
	Missing []string `json:"missing"`
}

type client struct {
	mux *http.ServeMux
}

func (c client) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	c.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func newClient() (client, func()) {
	svc := service.New(service.WithAutoRecalculate(false))
	So(svc.Start(context.Background()), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	return client{mux: mux}, svc.Stop
}

// openCard assigns the intro test to comp-1/cat-1 and opens a started card.
func openCard(c client, participant string) string {
	w := c.do(http.MethodPut, "/competitions/comp-1/categories/cat-1/template",
		`{"discipline":"dressage","template_id":"fei-intro-three-movement"}`)
	So(w.Code, ShouldEqual, http.StatusOK)

	w = c.do(http.MethodPost, "/scorecards", `{"participant_id":"`+participant+`","judge_id":"j-1",
		"competition_id":"comp-1","category_id":"cat-1","discipline":"dressage"}`)
	So(w.Code, ShouldEqual, http.StatusCreated)
	card := decode[model.ScoreCard](w)
	So(w.Header().Get("Location"), ShouldEqual, "/scorecards/"+card.ID)

	w = c.do(http.MethodPost, "/scorecards/"+card.ID+"/start", "")
	So(w.Code, ShouldEqual, http.StatusOK)
	return card.ID
}

func TestServer_Operational(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		c, stop := newClient()
		defer stop()

		Convey("Then the health endpoint exposes metrics", func() {
			w := c.do(http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "fei_scoring_")
		})

		Convey("Then the stats endpoint reports the service state", func() {
			w := c.do(http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			stats := decode[map[string]any](w)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Then templates are listed", func() {
			w := c.do(http.MethodGet, "/templates", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			ts := decode[[]model.ScoringTemplate](w)
			So(len(ts), ShouldBeGreaterThanOrEqualTo, 3)
		})

		Convey("Then a wrong method is rejected by the mux", func() {
			w := c.do(http.MethodDelete, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_ScoreCards(t *testing.T) {
	Convey("Given a started dressage card", t, func() {
		c, stop := newClient()
		defer stop()
		id := openCard(c, "p-1")

		Convey("When an out-of-range mark is sent", func() {
			w := c.do(http.MethodPut, "/scorecards/"+id+"/marks/E2", `{"value":11}`)

			Convey("Then it is rejected with the offending field", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				e := decode[apiError](w)
				So(e.Code, ShouldEqual, "validation_error")
				So(e.Field, ShouldEqual, "E2")
				So(e.Rule, ShouldEqual, "range")
			})
		})

		Convey("When a mark body has no value", func() {
			w := c.do(http.MethodPut, "/scorecards/"+id+"/marks/E2", `{}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("When completion is attempted too early", func() {
			w := c.do(http.MethodPut, "/scorecards/"+id+"/marks/E1", `{"value":7}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			w = c.do(http.MethodPost, "/scorecards/"+id+"/complete", "")

			Convey("Then the missing marks are listed", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				e := decode[apiError](w)
				So(e.Code, ShouldEqual, "incomplete_required_marks")
				So(e.Missing, ShouldResemble, []string{"E2", "E3"})
			})
		})

		Convey("When every mark is entered and the card completed", func() {
			for mark, v := range map[string]string{"E1": "7", "E2": "8", "E3": "6"} {
				w := c.do(http.MethodPut, "/scorecards/"+id+"/marks/"+mark, `{"value":`+v+`}`)
				So(w.Code, ShouldEqual, http.StatusOK)
			}
			w := c.do(http.MethodPost, "/scorecards/"+id+"/complete", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			card := decode[model.ScoreCard](w)

			Convey("Then the totals are returned", func() {
				So(card.FinalScore, ShouldEqual, 29)
				So(card.Percentage, ShouldEqual, 72.5)
			})

			Convey("Then further edits conflict", func() {
				w := c.do(http.MethodDelete, "/scorecards/"+id+"/marks/E1", "")
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode[apiError](w).Code, ShouldEqual, "scorecard_locked")
			})

			Convey("Then the category lists it", func() {
				w := c.do(http.MethodGet, "/competitions/comp-1/categories/cat-1/scorecards?status=completed", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(decode[[]model.ScoreCard](w)), ShouldEqual, 1)
			})
		})

		Convey("When it is disqualified without a reason", func() {
			w := c.do(http.MethodPost, "/scorecards/"+id+"/disqualify", "")
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decode[apiError](w).Code, ShouldEqual, "missing_reason")

			w = c.do(http.MethodPost, "/scorecards/"+id+"/disqualify", `{"reason":"abuse of horse"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When a card is requested that does not exist", func() {
			w := c.do(http.MethodGet, "/scorecards/missing", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the same judge opens a second card", func() {
			w := c.do(http.MethodPost, "/scorecards", `{"participant_id":"p-1","judge_id":"j-1",
				"competition_id":"comp-1","category_id":"cat-1","discipline":"dressage"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When the body carries an unknown field", func() {
			w := c.do(http.MethodPost, "/scorecards", `{"participant":"p-9"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_Rankings(t *testing.T) {
	Convey("Given one completed ride", t, func() {
		c, stop := newClient()
		defer stop()
		id := openCard(c, "p-1")
		for mark, v := range map[string]string{"E1": "7", "E2": "8", "E3": "6"} {
			So(c.do(http.MethodPut, "/scorecards/"+id+"/marks/"+mark, `{"value":`+v+`}`).Code, ShouldEqual, http.StatusOK)
		}
		So(c.do(http.MethodPost, "/scorecards/"+id+"/complete", "").Code, ShouldEqual, http.StatusOK)

		Convey("When the category is recalculated and published", func() {
			w := c.do(http.MethodPost, "/competitions/comp-1/categories/cat-1/ranking/recalculate", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			r := decode[model.Ranking](w)
			So(len(r.Entries), ShouldEqual, 1)
			So(r.Entries[0].Position, ShouldEqual, 1)

			w = c.do(http.MethodPost, "/rankings/"+r.ID+"/publish", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[model.Ranking](w).IsPublished, ShouldBeTrue)

			Convey("Then publishing again without change conflicts", func() {
				w := c.do(http.MethodPost, "/rankings/"+r.ID+"/publish", "")
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode[apiError](w).Code, ShouldEqual, "already_published")
			})

			Convey("Then the ranking is readable by ID and category", func() {
				So(c.do(http.MethodGet, "/rankings/"+r.ID, "").Code, ShouldEqual, http.StatusOK)
				So(c.do(http.MethodGet, "/competitions/comp-1/categories/cat-1/ranking", "").Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the whole competition is recalculated", func() {
			w := c.do(http.MethodPost, "/competitions/comp-1/recalculate", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(len(decode[[]model.Ranking](w)), ShouldEqual, 1)
		})

		Convey("When an empty category is recalculated", func() {
			w := c.do(http.MethodPost, "/competitions/comp-1/categories/cat-2/ranking/recalculate", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode[apiError](w).Code, ShouldEqual, "no_eligible_scorecards")
		})
	})
}

func TestServer_Templates(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		c, stop := newClient()
		defer stop()

		Convey("When a system template is updated", func() {
			w := c.do(http.MethodPut, "/templates/fei-intro-three-movement", `{"id":"fei-intro-three-movement","name":"x",
				"discipline":"dressage","max_score":10,"exercises":[{"number":1,"max_note":10,"coefficient":1}]}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decode[apiError](w).Code, ShouldEqual, "template_immutable")
		})

		Convey("When a custom template is created", func() {
			w := c.do(http.MethodPost, "/templates", `{"id":"club","name":"Club","discipline":"dressage","max_score":10,
				"exercises":[{"number":1,"max_note":10,"coefficient":1,"required":true}]}`)
			So(w.Code, ShouldEqual, http.StatusCreated)

			Convey("Then it can be fetched and assigned", func() {
				So(c.do(http.MethodGet, "/templates/club", "").Code, ShouldEqual, http.StatusOK)
				w := c.do(http.MethodPut, "/competitions/comp-1/categories/cat-1/template", `{"discipline":"dressage","template_id":"club"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				w = c.do(http.MethodGet, "/competitions/comp-1/categories/cat-1/template?discipline=dressage", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[model.ScoringTemplate](w).ID, ShouldEqual, "club")
			})

			Convey("Then it cannot be replaced while a card scores against it", func() {
				w := c.do(http.MethodPut, "/competitions/comp-1/categories/cat-1/template", `{"discipline":"dressage","template_id":"club"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				w = c.do(http.MethodPost, "/scorecards", `{"participant_id":"p-1","judge_id":"j-1",
					"competition_id":"comp-1","category_id":"cat-1","discipline":"dressage"}`)
				So(w.Code, ShouldEqual, http.StatusCreated)

				w = c.do(http.MethodPut, "/templates/club", `{"id":"club","name":"Club","discipline":"dressage","max_score":5,
					"exercises":[{"number":1,"max_note":5,"coefficient":1,"required":true}]}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode[apiError](w).Code, ShouldEqual, "template_in_use")
			})
		})

		Convey("When an invalid template is created", func() {
			w := c.do(http.MethodPost, "/templates", `{"id":"bad","name":"Bad","discipline":"dressage","max_score":0,
				"exercises":[{"number":1,"max_note":10,"coefficient":1}]}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("When no template is assigned", func() {
			w := c.do(http.MethodGet, "/competitions/comp-9/categories/cat-9/template", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
