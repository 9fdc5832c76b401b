package model

import (
	"maps"
	"time"
)

// Status is the lifecycle state of a ScoreCard.
type Status string

// ScoreCard lifecycle states.
const (
	StatusPending      Status = "pending"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusValidated    Status = "validated"
	StatusPublished    Status = "published"
	StatusDisqualified Status = "disqualified"
)

// FaultType tags a jumping fault for reporting.
type FaultType string

// Fault types.
const (
	FaultKnockdown FaultType = "knockdown"
	FaultRefusal   FaultType = "refusal"
	FaultTime      FaultType = "time_fault"
	FaultOther     FaultType = "other"
)

// Valid reports whether t is a known fault type.
func (t FaultType) Valid() bool {
	switch t {
	case FaultKnockdown, FaultRefusal, FaultTime, FaultOther:
		return true
	}
	return false
}

// FaultEntry is one penalised event on a jumping round.
type FaultEntry struct {
	ObstacleNumber int       `json:"obstacle_number"`
	Type           FaultType `json:"fault_type"`
	PenaltyPoints  float64   `json:"penalty_points"`
}

// ScoreCard is one judge's evaluation of one participant in one competition.
// Derived totals are always recomputed from Marks/Faults/ElapsedSeconds and
// never edited directly.
type ScoreCard struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"participant_id"`
	JudgeID       string     `json:"judge_id"`
	JudgePosition string     `json:"judge_position,omitempty"`
	CompetitionID string     `json:"competition_id"`
	CategoryID    string     `json:"category_id"`
	Discipline    Discipline `json:"discipline"`
	TemplateID    string     `json:"template_id,omitempty"`
	Status        Status     `json:"status"`

	// TemplateVersion is the template version the card was opened under.
	TemplateVersion int `json:"template_version,omitempty"`

	Marks              map[MarkID]float64 `json:"marks,omitempty"`
	Faults             []FaultEntry       `json:"faults,omitempty"`
	ElapsedSeconds     *float64           `json:"elapsed_seconds,omitempty"`
	AllowedTimeSeconds float64            `json:"allowed_time_seconds,omitempty"`

	FinalScore         float64 `json:"final_score"`
	Percentage         float64 `json:"percentage"`
	MarkedCount        int     `json:"marked_count"`
	MarkableCount      int     `json:"markable_count"`
	CollectiveSubtotal float64 `json:"collective_subtotal"`
	PenaltyPoints      float64 `json:"penalty_points"`
	TimeFaults         float64 `json:"time_faults"`

	IsDisqualified         bool   `json:"is_disqualified"`
	DisqualificationReason string `json:"disqualification_reason,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ValidatedAt    *time.Time `json:"validated_at,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	DisqualifiedAt *time.Time `json:"disqualified_at,omitempty"`

	Version int64 `json:"version"`
}

// Clone returns a deep copy of c.
func (c *ScoreCard) Clone() *ScoreCard {
	out := *c
	out.Marks = maps.Clone(c.Marks)
	out.Faults = append([]FaultEntry(nil), c.Faults...)
	out.ElapsedSeconds = clonePtr(c.ElapsedSeconds)
	out.StartedAt = clonePtr(c.StartedAt)
	out.CompletedAt = clonePtr(c.CompletedAt)
	out.ValidatedAt = clonePtr(c.ValidatedAt)
	out.PublishedAt = clonePtr(c.PublishedAt)
	out.DisqualifiedAt = clonePtr(c.DisqualifiedAt)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Eligible reports whether the card currently qualifies for ranking.
func Eligible(c *ScoreCard) bool {
	if c == nil || c.IsDisqualified {
		return false
	}
	switch c.Status {
	case StatusCompleted, StatusValidated, StatusPublished:
		return true
	}
	return false
}

// ParticipantInfo holds display fields supplied by collaborators.
type ParticipantInfo struct {
	RiderName string `json:"rider_name,omitempty"`
	HorseName string `json:"horse_name,omitempty"`
	Country   string `json:"country,omitempty"`
}
