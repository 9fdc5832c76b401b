package service

import (
	"time"

	repository "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/repository"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/panel"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/ranking"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scoring"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkerCount sets the number of recalculation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recalculation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many pending categories the deduper tracks.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithAutoRecalculate turns the background ranking refresh on or off.
func WithAutoRecalculate(enabled bool) Option {
	return func(s *Service) {
		s.autoRecalculate = enabled
	}
}

// WithMinReasonLength sets the minimum disqualification reason length.
func WithMinReasonLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minReasonLength = n
		}
	}
}

// WithPanelPolicy sets how several judges' cards are combined.
func WithPanelPolicy(p panel.Policy) Option {
	return func(s *Service) {
		s.panelPolicy = p
	}
}

// WithTieBreakMode sets whether tie-break keys separate positions.
func WithTieBreakMode(m ranking.TieBreakMode) Option {
	return func(s *Service) {
		if m.Valid() {
			s.tieBreakMode = m
		}
	}
}

// WithRepublishPolicy sets what publishing an unchanged ranking does.
func WithRepublishPolicy(p ranking.RepublishPolicy) Option {
	return func(s *Service) {
		if p.Valid() {
			s.republishPolicy = p
		}
	}
}

// WithFaultTable sets the jumping fault table.
func WithFaultTable(t scoring.FaultTable) Option {
	return func(s *Service) {
		s.faultTable = t
	}
}

// WithAllowedTimes sets the course allowed time used for new jumping cards:
// per competition when listed, otherwise fallback.
func WithAllowedTimes(fallback float64, perCompetition map[string]float64) Option {
	return func(s *Service) {
		if fallback >= 0 {
			s.defaultAllowedTime = fallback
		}
		s.allowedTimes = make(map[string]float64, len(perCompetition))
		for k, v := range perCompetition {
			s.allowedTimes[k] = v
		}
	}
}

// WithTemplatesFile loads operator templates on top of the embedded ones.
func WithTemplatesFile(path string) Option {
	return func(s *Service) {
		s.templatesFile = path
	}
}

// WithParticipantDirectory sets where ranking display fields come from.
func WithParticipantDirectory(d ParticipantDirectory) Option {
	return func(s *Service) {
		if d != nil {
			s.participants = d
		}
	}
}

// WithClock overrides the clock used for lifecycle and publication stamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithIDGenerator overrides how new scorecard and ranking IDs are made.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}
