// Package service wires the scoring engine to its stores, the template
// catalog and the background recalculation workers. It implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	catalog "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/catalog"
	eventqueue "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/mq/queue"
	workerpool "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/mq/worker"
	repository "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/repository"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/dedupe"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/panel"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/ranking"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scorecard"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scoring"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/metrics"
)

// ParticipantDirectory supplies rider, horse and country for ranking rows.
type ParticipantDirectory interface {
	Participants(ctx context.Context, competitionID string, participantIDs []string) (map[string]model.ParticipantInfo, error)
}

// StaticDirectory is a ParticipantDirectory backed by a fixed map keyed by
// participant ID.
type StaticDirectory map[string]model.ParticipantInfo

// Participants implements ParticipantDirectory.
func (d StaticDirectory) Participants(_ context.Context, _ string, ids []string) (map[string]model.ParticipantInfo, error) {
	out := make(map[string]model.ParticipantInfo, len(ids))
	for _, id := range ids {
		if info, ok := d[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

// Service implements the scoring and ranking operations.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	machine *scorecard.Machine
	builder *ranking.Builder
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool

	// Configuration
	workerCount        int
	queueSize          int
	dedupeSize         int
	autoRecalculate    bool
	minReasonLength    int
	panelPolicy        panel.Policy
	tieBreakMode       ranking.TieBreakMode
	republishPolicy    ranking.RepublishPolicy
	faultTable         scoring.FaultTable
	defaultAllowedTime float64
	allowedTimes       map[string]float64
	templatesFile      string
	participants       ParticipantDirectory
	now                func() time.Time
	newID              func() string

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Unset collaborators get in-memory defaults.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       1024,
		dedupeSize:      10_000,
		autoRecalculate: true,
		minReasonLength: scorecard.DefaultMinReasonLength,
		panelPolicy:     panel.DefaultPolicy(),
		tieBreakMode:    ranking.Informational,
		republishPolicy: ranking.RepublishError,
		faultTable:      scoring.DefaultFaultTable(),
		allowedTimes:    map[string]float64{},
		participants:    StaticDirectory{},
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	s.machine = scorecard.NewMachine(
		scorecard.WithMinReasonLength(s.minReasonLength),
		scorecard.WithClock(s.now),
	)
	s.builder = ranking.NewBuilder(
		ranking.WithPanelPolicy(s.panelPolicy),
		ranking.WithTieBreakMode(s.tieBreakMode),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start loads the template catalog and starts the recalculation workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := s.panelPolicy.Validate(); err != nil {
		return fmt.Errorf("panel policy: %w", err)
	}
	if _, err := scoring.NewJumping(s.faultTable); err != nil {
		return fmt.Errorf("fault table: %w", err)
	}

	s.logger.Info(ctx, "starting scoring service...")

	templates, err := catalog.Load(s.templatesFile)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	for _, t := range templates {
		if err := s.store.PutTemplate(ctx, t); err != nil {
			return fmt.Errorf("store template %s: %w", t.ID, err)
		}
	}

	if s.autoRecalculate {
		// Workers outlive the start-up context; Stop cancels them.
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.cancel = cancel
		s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
		s.pool = workerpool.NewPool(s.workerCount, s.queue, s,
			workerpool.WithDeduper(s.deduper),
		)
		s.pool.Start(runCtx)
	}

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("templates", len(templates)),
		logger.Bool("auto_recalculate", s.autoRecalculate),
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.String("tie_break_mode", string(s.tieBreakMode)),
		logger.String("panel_method", string(s.panelPolicy.Method)),
	)
	return nil
}

// Stop drains pending recalculations and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping scoring service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
}

// scheduleRecalculation queues a ranking refresh for the category unless
// one is already pending.
func (s *Service) scheduleRecalculation(ctx context.Context, c *model.ScoreCard, cause string) {
	if !s.autoRecalculate || s.queue == nil {
		return
	}
	key := dedupe.Key(c.CompetitionID, c.CategoryID)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordQueueCoalesced()
		return
	}
	ok := s.queue.Enqueue(ctx, eventqueue.Request{
		CompetitionID: c.CompetitionID,
		CategoryID:    c.CategoryID,
		Cause:         cause,
	})
	if !ok {
		s.deduper.Unrecord(ctx, key)
		s.logger.Warn(ctx, "recalculation not queued",
			logger.String("competition_id", c.CompetitionID),
			logger.String("category_id", c.CategoryID),
			logger.String("cause", cause),
		)
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":          s.started,
		"auto_recalculate": s.autoRecalculate,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"dedupeSize":       s.dedupeSize,
		"pendingRankings":  s.deduper.Size(),
		"tieBreakMode":     string(s.tieBreakMode),
		"republishPolicy":  string(s.republishPolicy),
		"panelMethod":      string(s.panelPolicy.Method),
	}
	if !s.started {
		return stats
	}

	if s.queue != nil {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["recalculationsProcessed"] = s.pool.Processed()
	}
	if n, err := s.store.CountScoreCards(ctx); err == nil {
		stats["totalScoreCards"] = n
		metrics.UpdateScoreCardsTotal(n)
	}
	if n, err := s.store.CountRankings(ctx); err == nil {
		stats["totalRankings"] = n
	}
	if ts, err := s.store.ListTemplates(ctx); err == nil {
		stats["totalTemplates"] = len(ts)
	}
	return stats
}

// outcome maps an error to a metrics label.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrScoreCardLocked):
		return "locked"
	case errors.Is(err, model.ErrInvalidStateTransition):
		return "transition"
	case errors.Is(err, model.ErrIncompleteRequiredMarks):
		return "incomplete"
	case errors.Is(err, model.ErrMissingReason):
		return "missing_reason"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrAlreadyExists):
		return "conflict"
	default:
		return "error"
	}
}
