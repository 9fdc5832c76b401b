package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/mq/queue"
	worker "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/mq/worker"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/dedupe"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeRecalculator struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeRecalculator) RecalculateRanking(_ context.Context, competitionID, categoryID string) (*model.Ranking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, competitionID+"/"+categoryID)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Ranking{CompetitionID: competitionID, CategoryID: categoryID}, nil
}

func (f *fakeRecalculator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	Convey("Given a worker reading a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		rec := &fakeRecalculator{}
		d := dedupe.NewInMemoryDeduper()
		w := worker.NewInMemoryWorker(q, rec, worker.WithName("test"), worker.WithDeduper(d))
		go w.Run(ctx)

		Convey("When a recalculation request is queued", func() {
			key := dedupe.Key("comp-1", "cat-1")
			So(d.SeenAndRecord(ctx, key), ShouldBeFalse)
			So(q.Enqueue(ctx, queue.Request{CompetitionID: "comp-1", CategoryID: "cat-1"}), ShouldBeTrue)

			Convey("Then the ranking is recalculated and the key released", func() {
				So(waitFor(func() bool { return rec.count() == 1 }), ShouldBeTrue)
				So(waitFor(func() bool { return d.Size() == 0 }), ShouldBeTrue)
				So(waitFor(func() bool { return w.Processed() == 1 }), ShouldBeTrue)
			})
		})

		Convey("When the worker is shut down", func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
			defer stop()

			Convey("Then it stops promptly", func() {
				So(w.Shutdown(shutdownCtx), ShouldBeNil)
				So(w.Shutdown(shutdownCtx), ShouldBeNil)
			})
		})
	})

	Convey("Given a recalculator that finds nothing eligible", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue()
		rec := &fakeRecalculator{err: model.ErrNoEligibleScoreCards}
		w := worker.NewInMemoryWorker(q, rec)
		go w.Run(ctx)

		Convey("When a request is processed", func() {
			So(q.Enqueue(ctx, queue.Request{CompetitionID: "comp-1", CategoryID: "cat-9"}), ShouldBeTrue)

			Convey("Then the worker keeps running", func() {
				So(waitFor(func() bool { return rec.count() == 1 }), ShouldBeTrue)
				So(q.Enqueue(ctx, queue.Request{CompetitionID: "comp-1", CategoryID: "cat-9"}), ShouldBeTrue)
				So(waitFor(func() bool { return rec.count() == 2 }), ShouldBeTrue)
			})
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a pool of three workers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(32))
		rec := &fakeRecalculator{err: errors.New("store unavailable")}
		p := worker.NewPool(3, q, rec)
		So(p.Size(), ShouldEqual, 3)
		p.Start(ctx)

		Convey("When requests are queued and the pool shuts down", func() {
			for range 10 {
				So(q.Enqueue(ctx, queue.Request{CompetitionID: "comp-1", CategoryID: "cat-1"}), ShouldBeTrue)
			}
			So(waitFor(func() bool { return rec.count() == 10 }), ShouldBeTrue)
			err := p.Shutdown(ctx)

			Convey("Then failures are absorbed and every request was handled", func() {
				So(err, ShouldBeNil)
				So(p.Processed(), ShouldEqual, 10)
				So(q.IsClosed(), ShouldBeTrue)
			})
		})
	})
}
