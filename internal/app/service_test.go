package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	repository "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/repository"
	service "github.com/Avillegasa/equestrian-fei-system-sub000/internal/app"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/ranking"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/types"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var introKey = model.TemplateKey{CompetitionID: "comp-1", CategoryID: "cat-1", Discipline: model.Dressage}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%03d", n.Add(1)) }
}

func newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithAutoRecalculate(false),
		service.WithIDGenerator(sequentialIDs()),
	}
	svc := service.New(append(base, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

// completedDressageCard creates, marks and completes a card on the intro
// test (coefficients 1, 2, 1).
func completedDressageCard(ctx context.Context, svc *service.Service, participant, judge string, e1, e2, e3 float64) *model.ScoreCard {
	c, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
		ParticipantID: participant,
		JudgeID:       judge,
		CompetitionID: introKey.CompetitionID,
		CategoryID:    introKey.CategoryID,
		Discipline:    model.Dressage,
	})
	So(err, ShouldBeNil)
	_, err = svc.StartEvaluation(ctx, c.ID)
	So(err, ShouldBeNil)
	for id, v := range map[model.MarkID]float64{"E1": e1, "E2": e2, "E3": e3} {
		_, err = svc.RecordMark(ctx, c.ID, id, v)
		So(err, ShouldBeNil)
	}
	c, err = svc.CompleteEvaluation(ctx, c.ID)
	So(err, ShouldBeNil)
	return c
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithAutoRecalculate(false))

		Convey("When getting stats before starting", func() {
			stats := svc.GetStats(context.Background())
			So(stats["started"], ShouldEqual, false)
		})

		Convey("When it is started and stopped", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldEqual, true)
			So(stats["totalTemplates"], ShouldBeGreaterThanOrEqualTo, 3)

			svc.Stop()
			svc.Stop()
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
		})
	})
}

func TestService_DressageScoreCards(t *testing.T) {
	ctx := context.Background()

	Convey("Given a category assigned to the intro test", t, func() {
		svc := newService()
		defer svc.Stop()
		So(svc.AssignTemplate(ctx, introKey, "fei-intro-three-movement"), ShouldBeNil)

		Convey("When a card is scored and completed", func() {
			c := completedDressageCard(ctx, svc, "p-1", "j-1", 7, 8, 6)

			Convey("Then the totals follow the coefficients", func() {
				So(c.TemplateID, ShouldEqual, "fei-intro-three-movement")
				So(c.FinalScore, ShouldEqual, 29)
				So(c.Percentage, ShouldEqual, 72.5)
				So(c.Status, ShouldEqual, model.StatusCompleted)
			})

			Convey("Then the card is locked", func() {
				_, err := svc.RecordMark(ctx, c.ID, "E1", 9)
				So(errors.Is(err, model.ErrScoreCardLocked), ShouldBeTrue)
				stored, _ := svc.GetScoreCard(ctx, c.ID)
				So(stored.Marks["E1"], ShouldEqual, 7)
			})

			Convey("Then it validates and publishes", func() {
				_, err := svc.ValidateScoreCard(ctx, c.ID)
				So(err, ShouldBeNil)
				pub, err := svc.PublishScoreCard(ctx, c.ID)
				So(err, ShouldBeNil)
				So(pub.Status, ShouldEqual, model.StatusPublished)
				So(pub.PublishedAt, ShouldNotBeNil)

				_, err = svc.Disqualify(ctx, c.ID, "lame horse")
				So(errors.Is(err, model.ErrInvalidStateTransition), ShouldBeTrue)
			})
		})

		Convey("When a required mark is missing at completion", func() {
			c, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
				ParticipantID: "p-1", JudgeID: "j-1",
				CompetitionID: "comp-1", CategoryID: "cat-1", Discipline: model.Dressage,
			})
			So(err, ShouldBeNil)
			_, err = svc.StartEvaluation(ctx, c.ID)
			So(err, ShouldBeNil)
			_, err = svc.RecordMark(ctx, c.ID, "E1", 7)
			So(err, ShouldBeNil)
			_, err = svc.CompleteEvaluation(ctx, c.ID)

			Convey("Then completion lists what is missing", func() {
				So(errors.Is(err, model.ErrIncompleteRequiredMarks), ShouldBeTrue)
				e, ok := model.AsError(err)
				So(ok, ShouldBeTrue)
				So(e.Missing, ShouldResemble, []string{"E2", "E3"})

				stored, _ := svc.GetScoreCard(ctx, c.ID)
				So(stored.Status, ShouldEqual, model.StatusInProgress)
			})

			Convey("Then an out-of-range mark is rejected without change", func() {
				_, err := svc.RecordMark(ctx, c.ID, "E2", 10.5)
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				stored, _ := svc.GetScoreCard(ctx, c.ID)
				_, present := stored.Marks["E2"]
				So(present, ShouldBeFalse)
			})

			Convey("Then a mark can be cleared", func() {
				cleared, err := svc.ClearMark(ctx, c.ID, "E1")
				So(err, ShouldBeNil)
				So(cleared.MarkedCount, ShouldEqual, 0)
				So(cleared.FinalScore, ShouldEqual, 0)
			})
		})

		Convey("When the same judge opens a second card for a participant", func() {
			req := types.NewScoreCard{
				ParticipantID: "p-1", JudgeID: "j-1",
				CompetitionID: "comp-1", CategoryID: "cat-1", Discipline: model.Dressage,
			}
			_, err := svc.CreateScoreCard(ctx, req)
			So(err, ShouldBeNil)
			_, err = svc.CreateScoreCard(ctx, req)
			So(errors.Is(err, repository.ErrAlreadyExists), ShouldBeTrue)
		})

		Convey("When a jumping card is opened in the dressage category", func() {
			_, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
				ParticipantID: "p-1", JudgeID: "j-1",
				CompetitionID: "comp-1", CategoryID: "cat-1", Discipline: model.Jumping,
			})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When an unassigned category already holds dressage cards", func() {
			_, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
				ParticipantID: "p-1", JudgeID: "j-1", TemplateID: "fei-intro-three-movement",
				CompetitionID: "comp-1", CategoryID: "cat-open", Discipline: model.Dressage,
			})
			So(err, ShouldBeNil)

			Convey("Then a jumping card cannot join it", func() {
				_, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
					ParticipantID: "p-2", JudgeID: "j-1",
					CompetitionID: "comp-1", CategoryID: "cat-open", Discipline: model.Jumping,
				})
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

				cards, err := svc.ListScoreCards(ctx, repository.ScoreCardFilter{CompetitionID: "comp-1", CategoryID: "cat-open"})
				So(err, ShouldBeNil)
				So(cards, ShouldHaveLength, 1)
			})
		})

		Convey("When no template is assigned to the category", func() {
			_, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
				ParticipantID: "p-1", JudgeID: "j-1",
				CompetitionID: "comp-1", CategoryID: "cat-9", Discipline: model.Dressage,
			})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a card is disqualified", func() {
			c, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
				ParticipantID: "p-1", JudgeID: "j-1",
				CompetitionID: "comp-1", CategoryID: "cat-1", Discipline: model.Dressage,
			})
			So(err, ShouldBeNil)

			_, err = svc.Disqualify(ctx, c.ID, "no")
			So(errors.Is(err, model.ErrMissingReason), ShouldBeTrue)

			dq, err := svc.Disqualify(ctx, c.ID, "  lame horse  ")
			So(err, ShouldBeNil)
			So(dq.IsDisqualified, ShouldBeTrue)
			So(dq.DisqualificationReason, ShouldEqual, "lame horse")

			_, err = svc.StartEvaluation(ctx, c.ID)
			So(errors.Is(err, model.ErrInvalidStateTransition), ShouldBeTrue)
		})
	})
}

func TestService_Rankings(t *testing.T) {
	ctx := context.Background()

	Convey("Given three completed dressage rides with a tie", t, func() {
		svc := newService(service.WithParticipantDirectory(service.StaticDirectory{
			"p-1": {RiderName: "Ana", HorseName: "Bolero", Country: "BOL"},
		}))
		defer svc.Stop()
		So(svc.AssignTemplate(ctx, introKey, "fei-intro-three-movement"), ShouldBeNil)

		completedDressageCard(ctx, svc, "p-1", "j-1", 7, 8, 6) // 29
		completedDressageCard(ctx, svc, "p-2", "j-1", 8, 7, 7) // 29
		completedDressageCard(ctx, svc, "p-3", "j-1", 6, 6, 6) // 24

		Convey("When the ranking is recalculated", func() {
			r, err := svc.RecalculateRanking(ctx, "comp-1", "cat-1")
			So(err, ShouldBeNil)

			Convey("Then tied rides share a position and the next is skipped", func() {
				So(len(r.Entries), ShouldEqual, 3)
				So(r.Entries[0].ParticipantID, ShouldEqual, "p-1")
				So(r.Entries[0].Position, ShouldEqual, 1)
				So(r.Entries[1].Position, ShouldEqual, 1)
				So(r.Entries[2].Position, ShouldEqual, 3)
				So(r.Entries[0].IsTied, ShouldBeTrue)
				So(r.Entries[0].TieBreakInfo, ShouldNotBeEmpty)
				So(r.Entries[2].TieBreakInfo, ShouldBeEmpty)
				So(r.Entries[0].RiderName, ShouldEqual, "Ana")
				So(r.Discipline, ShouldEqual, model.Dressage)
				So(r.IsFinal, ShouldBeFalse)
				So(r.IsPublished, ShouldBeFalse)
			})

			Convey("Then it publishes once per recalculation", func() {
				pub, err := svc.PublishRanking(ctx, r.ID)
				So(err, ShouldBeNil)
				So(pub.IsPublished, ShouldBeTrue)
				So(pub.GeneratedAt, ShouldNotBeNil)

				_, err = svc.PublishRanking(ctx, r.ID)
				So(errors.Is(err, model.ErrAlreadyPublishedNoChange), ShouldBeTrue)

				again, err := svc.RecalculateRanking(ctx, "comp-1", "cat-1")
				So(err, ShouldBeNil)
				So(again.ID, ShouldEqual, r.ID)
				So(again.IsPublished, ShouldBeTrue)
				So(again.RecalculatedSincePublish, ShouldBeTrue)

				_, err = svc.PublishRanking(ctx, r.ID)
				So(err, ShouldBeNil)
			})

			Convey("Then it can be found by category", func() {
				found, err := svc.FindRanking(ctx, "comp-1", "cat-1")
				So(err, ShouldBeNil)
				So(found.ID, ShouldEqual, r.ID)
			})
		})

		Convey("When the whole competition is recalculated", func() {
			rs, err := svc.RecalculateCompetition(ctx, "comp-1")
			So(err, ShouldBeNil)
			So(len(rs), ShouldEqual, 1)
			So(rs[0].CategoryID, ShouldEqual, "cat-1")
		})

		Convey("When an unknown ranking is published", func() {
			_, err := svc.PublishRanking(ctx, "missing")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a category with nothing eligible", t, func() {
		svc := newService()
		defer svc.Stop()

		_, err := svc.RecalculateRanking(ctx, "comp-1", "cat-empty")

		Convey("Then recalculation fails and no ranking is created", func() {
			So(errors.Is(err, model.ErrNoEligibleScoreCards), ShouldBeTrue)
			_, err = svc.FindRanking(ctx, "comp-1", "cat-empty")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a ranked category whose only ride is disqualified", t, func() {
		svc := newService()
		defer svc.Stop()
		So(svc.AssignTemplate(ctx, introKey, "fei-intro-three-movement"), ShouldBeNil)
		c := completedDressageCard(ctx, svc, "p-1", "j-1", 7, 8, 6)
		r, err := svc.RecalculateRanking(ctx, "comp-1", "cat-1")
		So(err, ShouldBeNil)

		_, err = svc.Disqualify(ctx, c.ID, "equipment violation")
		So(err, ShouldBeNil)
		_, err = svc.RecalculateRanking(ctx, "comp-1", "cat-1")

		Convey("Then the stored ranking is emptied", func() {
			So(errors.Is(err, model.ErrNoEligibleScoreCards), ShouldBeTrue)
			stored, err := svc.GetRanking(ctx, r.ID)
			So(err, ShouldBeNil)
			So(stored.Entries, ShouldBeEmpty)

			_, err = svc.PublishRanking(ctx, r.ID)
			So(errors.Is(err, model.ErrNoEligibleScoreCards), ShouldBeTrue)
		})
	})

	Convey("Given the noop republish policy", t, func() {
		svc := newService(service.WithRepublishPolicy(ranking.RepublishNoop))
		defer svc.Stop()
		So(svc.AssignTemplate(ctx, introKey, "fei-intro-three-movement"), ShouldBeNil)
		completedDressageCard(ctx, svc, "p-1", "j-1", 7, 8, 6)
		r, err := svc.RecalculateRanking(ctx, "comp-1", "cat-1")
		So(err, ShouldBeNil)
		first, err := svc.PublishRanking(ctx, r.ID)
		So(err, ShouldBeNil)

		Convey("Then publishing again returns the ranking unchanged", func() {
			second, err := svc.PublishRanking(ctx, r.ID)
			So(err, ShouldBeNil)
			So(second.Version, ShouldEqual, first.Version)
			So(second.GeneratedAt.Equal(*first.GeneratedAt), ShouldBeTrue)
		})
	})
}

func TestService_Jumping(t *testing.T) {
	ctx := context.Background()

	Convey("Given a jumping competition with a 75 second allowed time", t, func() {
		svc := newService(service.WithAllowedTimes(0, map[string]float64{"comp-2": 75}))
		defer svc.Stop()

		c, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
			ParticipantID: "p-1", JudgeID: "j-1",
			CompetitionID: "comp-2", CategoryID: "cat-j", Discipline: model.Jumping,
		})
		So(err, ShouldBeNil)
		So(c.AllowedTimeSeconds, ShouldEqual, 75)
		_, err = svc.StartEvaluation(ctx, c.ID)
		So(err, ShouldBeNil)

		Convey("When standard faults and the time are recorded", func() {
			_, err := svc.RecordStandardFault(ctx, c.ID, 3, model.FaultKnockdown)
			So(err, ShouldBeNil)
			_, err = svc.RecordStandardFault(ctx, c.ID, 5, model.FaultRefusal)
			So(err, ShouldBeNil)

			_, err = svc.CompleteEvaluation(ctx, c.ID)
			So(errors.Is(err, model.ErrIncompleteRequiredMarks), ShouldBeTrue)

			_, err = svc.RecordTime(ctx, c.ID, 77)
			So(err, ShouldBeNil)
			done, err := svc.CompleteEvaluation(ctx, c.ID)

			Convey("Then penalties and time faults add up", func() {
				So(err, ShouldBeNil)
				So(done.PenaltyPoints, ShouldEqual, 8)
				So(done.TimeFaults, ShouldEqual, 2)
				So(done.FinalScore, ShouldEqual, 10)
			})
		})

		Convey("When a fault carries explicit points", func() {
			got, err := svc.RecordFault(ctx, c.ID, model.FaultEntry{ObstacleNumber: 0, Type: model.FaultOther, PenaltyPoints: 2})
			So(err, ShouldBeNil)
			So(got.PenaltyPoints, ShouldEqual, 2)

			_, err = svc.RecordFault(ctx, c.ID, model.FaultEntry{Type: model.FaultOther, PenaltyPoints: -1})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When a time fault is entered by hand on a timed round", func() {
			_, err := svc.RecordStandardFault(ctx, c.ID, 0, model.FaultTime)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			_, err = svc.RecordTime(ctx, c.ID, 77)
			So(err, ShouldBeNil)
			done, err := svc.CompleteEvaluation(ctx, c.ID)

			Convey("Then only the derived time faults count", func() {
				So(err, ShouldBeNil)
				So(done.Faults, ShouldBeEmpty)
				So(done.TimeFaults, ShouldEqual, 2)
				So(done.FinalScore, ShouldEqual, 2)
			})
		})

		Convey("When a dressage mark is sent to a jumping card", func() {
			_, err := svc.RecordMark(ctx, c.ID, "E1", 7)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestService_Templates(t *testing.T) {
	ctx := context.Background()
	custom := &model.ScoringTemplate{
		ID: "club-novice", Name: "Club Novice", Discipline: model.Dressage, MaxScore: 20,
		Exercises: []model.ExerciseDefinition{
			{Number: 1, MaxNote: 10, Coefficient: 1, Required: true},
			{Number: 2, MaxNote: 10, Coefficient: 1, Required: true},
		},
	}

	Convey("Given a started service", t, func() {
		svc := newService()
		defer svc.Stop()

		Convey("When a system template is updated", func() {
			_, err := svc.UpdateTemplate(ctx, "fei-intro-three-movement", custom)
			So(errors.Is(err, model.ErrTemplateImmutable), ShouldBeTrue)
		})

		Convey("When a custom template is created and updated", func() {
			created, err := svc.CreateTemplate(ctx, custom)
			So(err, ShouldBeNil)
			So(created.Version, ShouldEqual, 1)
			So(created.SystemOwned, ShouldBeFalse)

			next := custom.Clone()
			next.MaxScore = 30
			next.Exercises = append(next.Exercises, model.ExerciseDefinition{Number: 3, MaxNote: 10, Coefficient: 1})
			updated, err := svc.UpdateTemplate(ctx, "club-novice", next)
			So(err, ShouldBeNil)
			So(updated.Version, ShouldEqual, 2)
			So(updated.MaxScore, ShouldEqual, 30)

			Convey("Then an invalid update is rejected and nothing changes", func() {
				bad := custom.Clone()
				bad.Exercises[1].Number = 1
				_, err := svc.UpdateTemplate(ctx, "club-novice", bad)
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				stored, _ := svc.GetTemplate(ctx, "club-novice")
				So(stored.Version, ShouldEqual, 2)
			})
		})

		Convey("When a custom template is used by an open card", func() {
			_, err := svc.CreateTemplate(ctx, custom)
			So(err, ShouldBeNil)
			key := model.TemplateKey{CompetitionID: "comp-1", CategoryID: "cat-club", Discipline: model.Dressage}
			So(svc.AssignTemplate(ctx, key, "club-novice"), ShouldBeNil)
			c, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
				ParticipantID: "p-1", JudgeID: "j-1",
				CompetitionID: "comp-1", CategoryID: "cat-club", Discipline: model.Dressage,
			})
			So(err, ShouldBeNil)
			So(c.TemplateVersion, ShouldEqual, 1)
			_, err = svc.StartEvaluation(ctx, c.ID)
			So(err, ShouldBeNil)
			_, err = svc.RecordMark(ctx, c.ID, "E1", 9)
			So(err, ShouldBeNil)

			stricter := custom.Clone()
			stricter.Exercises[0].MaxNote = 5
			stricter.MaxScore = 15

			Convey("Then the template cannot be edited under it", func() {
				_, err := svc.UpdateTemplate(ctx, "club-novice", stricter)
				So(errors.Is(err, model.ErrTemplateInUse), ShouldBeTrue)
				stored, _ := svc.GetTemplate(ctx, "club-novice")
				So(stored.Version, ShouldEqual, 1)
				So(stored.Exercises[0].MaxNote, ShouldEqual, 10)

				_, err = svc.RecordMark(ctx, c.ID, "E2", 8)
				So(err, ShouldBeNil)
				done, err := svc.CompleteEvaluation(ctx, c.ID)
				So(err, ShouldBeNil)
				So(done.Marks["E1"], ShouldEqual, 9)
				So(done.FinalScore, ShouldEqual, 17)
			})

			Convey("Then the edit is allowed once the card is completed", func() {
				_, err := svc.RecordMark(ctx, c.ID, "E2", 8)
				So(err, ShouldBeNil)
				_, err = svc.CompleteEvaluation(ctx, c.ID)
				So(err, ShouldBeNil)

				updated, err := svc.UpdateTemplate(ctx, "club-novice", stricter)
				So(err, ShouldBeNil)
				So(updated.Version, ShouldEqual, 2)

				validated, err := svc.ValidateScoreCard(ctx, c.ID)
				So(err, ShouldBeNil)
				So(validated.FinalScore, ShouldEqual, 17)
			})
		})

		Convey("When a template changes under an open card anyway", func() {
			store := repository.NewMemoryStore()
			svc := newService(service.WithStore(store))
			defer svc.Stop()
			_, err := svc.CreateTemplate(ctx, custom)
			So(err, ShouldBeNil)
			c, err := svc.CreateScoreCard(ctx, types.NewScoreCard{
				ParticipantID: "p-1", JudgeID: "j-1", TemplateID: "club-novice",
				CompetitionID: "comp-1", CategoryID: "cat-club", Discipline: model.Dressage,
			})
			So(err, ShouldBeNil)
			_, err = store.UpdateTemplate(ctx, "club-novice", func(t *model.ScoringTemplate) error {
				t.Exercises[0].MaxNote = 5
				t.Version++
				return nil
			})
			So(err, ShouldBeNil)

			Convey("Then further scoring is refused", func() {
				_, err := svc.RecordMark(ctx, c.ID, "E1", 9)
				So(errors.Is(err, model.ErrVersionConflict), ShouldBeTrue)
				stored, _ := svc.GetScoreCard(ctx, c.ID)
				So(stored.Marks, ShouldBeEmpty)
			})
		})

		Convey("When a template is assigned to the wrong discipline", func() {
			key := model.TemplateKey{CompetitionID: "comp-1", CategoryID: "cat-1", Discipline: model.Jumping}
			err := svc.AssignTemplate(ctx, key, "fei-intro-three-movement")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When a template is resolved", func() {
			So(svc.AssignTemplate(ctx, introKey, "fei-preliminary-a"), ShouldBeNil)
			tpl, err := svc.ResolveTemplate(ctx, introKey)
			So(err, ShouldBeNil)
			So(tpl.MaxScore, ShouldEqual, 180)

			ts, err := svc.ListTemplates(ctx)
			So(err, ShouldBeNil)
			So(len(ts), ShouldBeGreaterThanOrEqualTo, 3)
		})
	})
}

func TestService_AutoRecalculate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service refreshing rankings in the background", t, func() {
		svc := newService(service.WithAutoRecalculate(true), service.WithWorkerCount(2))
		defer svc.Stop()
		So(svc.AssignTemplate(ctx, introKey, "fei-intro-three-movement"), ShouldBeNil)

		Convey("When rides are completed", func() {
			completedDressageCard(ctx, svc, "p-1", "j-1", 7, 8, 6)
			completedDressageCard(ctx, svc, "p-2", "j-1", 6, 6, 6)

			Convey("Then the category ranking appears without an explicit call", func() {
				var r *model.Ranking
				deadline := time.Now().Add(5 * time.Second)
				for time.Now().Before(deadline) {
					found, err := svc.FindRanking(ctx, "comp-1", "cat-1")
					if err == nil && len(found.Entries) == 2 {
						r = found
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(r, ShouldNotBeNil)
				So(r.Entries[0].ParticipantID, ShouldEqual, "p-1")
			})
		})

		Convey("When a ride completes after the ranking was published", func() {
			completedDressageCard(ctx, svc, "p-1", "j-1", 7, 8, 6)
			r := waitForRanking(ctx, svc, func(r *model.Ranking) bool { return len(r.Entries) == 1 })
			So(r, ShouldNotBeNil)
			_, err := svc.PublishRanking(ctx, r.ID)
			So(err, ShouldBeNil)
			_, err = svc.PublishRanking(ctx, r.ID)
			So(errors.Is(err, model.ErrAlreadyPublishedNoChange), ShouldBeTrue)

			completedDressageCard(ctx, svc, "p-2", "j-1", 8, 8, 8)

			Convey("Then the background refresh counts as a recalculation", func() {
				r := waitForRanking(ctx, svc, func(r *model.Ranking) bool {
					return len(r.Entries) == 2 && r.RecalculatedSincePublish
				})
				So(r, ShouldNotBeNil)
				So(r.IsPublished, ShouldBeTrue)
				So(r.Entries[0].ParticipantID, ShouldEqual, "p-2")

				pub, err := svc.PublishRanking(ctx, r.ID)
				So(err, ShouldBeNil)
				So(pub.RecalculatedSincePublish, ShouldBeFalse)
			})
		})
	})
}

// waitForRanking polls the comp-1/cat-1 ranking until ok accepts it.
func waitForRanking(ctx context.Context, svc *service.Service, ok func(*model.Ranking) bool) *model.Ranking {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		found, err := svc.FindRanking(ctx, "comp-1", "cat-1")
		if err == nil && ok(found) {
			return found
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
