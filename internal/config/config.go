// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config populated with defaults; Load layers file and env.
// - Domain values are exposed through converters so callers never re-parse.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"runtime"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/panel"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/ranking"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scoring"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// Storage selects the persistence backend.
	Storage       string `koanf:"storage" validate:"oneof=memory postgres"`
	DatabaseURL   string `koanf:"database_url" validate:"required_if=Storage postgres"`
	DatabaseDebug bool   `koanf:"database_debug"`

	// EventQueueSize bounds the recalculation queue.
	EventQueueSize int `koanf:"queue_size" validate:"gt=0"`
	// WorkerCount sets the number of recalculation workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`
	// DedupeSize bounds how many pending categories are coalesced.
	DedupeSize int `koanf:"dedupe_size" validate:"gt=0"`
	// AutoRecalculate refreshes a category ranking after each lifecycle step.
	AutoRecalculate bool `koanf:"auto_recalculate"`

	// MinReasonLength is the minimum disqualification reason, in runes.
	MinReasonLength int    `koanf:"min_reason_length" validate:"gt=0"`
	TieBreakMode    string `koanf:"tie_break_mode" validate:"oneof=informational decisive"`
	RepublishPolicy string `koanf:"republish_policy" validate:"oneof=error noop"`
	PanelMethod     string `koanf:"panel_method" validate:"oneof=mean median trimmed_mean"`
	PanelTrim       int    `koanf:"panel_trim" validate:"min=0"`

	// TemplatesFile is an optional YAML catalog merged over the built-in one.
	TemplatesFile string `koanf:"templates_file"`

	// Jumping fault table.
	KnockdownPenalty         float64   `koanf:"knockdown_penalty" validate:"min=0"`
	RefusalPenalties         []float64 `koanf:"refusal_penalties" validate:"min=1,dive,min=0"`
	TimeFaultPenalty         float64   `koanf:"time_fault_penalty" validate:"min=0"`
	TimeFaultIntervalSeconds float64   `koanf:"time_fault_interval_seconds" validate:"gt=0"`
	OtherFaultPenalty        float64   `koanf:"other_fault_penalty" validate:"min=0"`

	// DefaultAllowedTimeSeconds applies to jumping cards of competitions
	// missing from AllowedTimeSeconds. Zero disables time faults.
	DefaultAllowedTimeSeconds float64            `koanf:"default_allowed_time_seconds" validate:"min=0"`
	AllowedTimeSeconds        map[string]float64 `koanf:"allowed_time_seconds" validate:"dive,min=0"`
}

// New creates a Config populated with defaults.
func New() *Config {
	ft := scoring.DefaultFaultTable()
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		Storage:                  StorageMemory,
		EventQueueSize:           1024,
		WorkerCount:              runtime.NumCPU(),
		DedupeSize:               10_000,
		AutoRecalculate:          true,
		MinReasonLength:          5,
		TieBreakMode:             string(ranking.Informational),
		RepublishPolicy:          string(ranking.RepublishError),
		PanelMethod:              string(panel.Mean),
		KnockdownPenalty:         ft.KnockdownPenalty,
		RefusalPenalties:         append([]float64(nil), ft.RefusalPenalties...),
		TimeFaultPenalty:         ft.TimeFaultPenalty,
		TimeFaultIntervalSeconds: ft.TimeFaultInterval,
		OtherFaultPenalty:        ft.OtherPenalty,
		AllowedTimeSeconds:       map[string]float64{},
	}
}

// FaultTable returns the configured jumping fault table.
func (c *Config) FaultTable() scoring.FaultTable {
	return scoring.FaultTable{
		KnockdownPenalty:  c.KnockdownPenalty,
		RefusalPenalties:  append([]float64(nil), c.RefusalPenalties...),
		TimeFaultPenalty:  c.TimeFaultPenalty,
		TimeFaultInterval: c.TimeFaultIntervalSeconds,
		OtherPenalty:      c.OtherFaultPenalty,
	}
}

// PanelPolicy returns the configured multi-judge aggregation.
func (c *Config) PanelPolicy() panel.Policy {
	return panel.Policy{Method: panel.Method(c.PanelMethod), Trim: c.PanelTrim}
}

// Ranking returns the configured tie-break mode and republish policy.
func (c *Config) Ranking() (ranking.TieBreakMode, ranking.RepublishPolicy) {
	return ranking.TieBreakMode(c.TieBreakMode), ranking.RepublishPolicy(c.RepublishPolicy)
}
