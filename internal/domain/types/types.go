// Package types contains request shapes shared by the HTTP layer and the
// service.
package types

import "github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"

// NewScoreCard identifies a scorecard to open.
type NewScoreCard struct {
	ParticipantID string           `json:"participant_id"`
	JudgeID       string           `json:"judge_id"`
	JudgePosition string           `json:"judge_position,omitempty"`
	CompetitionID string           `json:"competition_id"`
	CategoryID    string           `json:"category_id"`
	Discipline    model.Discipline `json:"discipline"`
	// TemplateID pins a dressage template. When empty the template assigned
	// to the category is used.
	TemplateID string `json:"template_id,omitempty"`
	// AllowedTimeSeconds overrides the configured course time for jumping.
	AllowedTimeSeconds *float64 `json:"allowed_time_seconds,omitempty"`
}

// MarkValue is the body of a mark entry.
type MarkValue struct {
	Value *float64 `json:"value"`
}

// Fault is the body of a fault entry. Without PenaltyPoints the fault is
// priced from the fault table.
type Fault struct {
	ObstacleNumber int             `json:"obstacle_number"`
	Type           model.FaultType `json:"fault_type"`
	PenaltyPoints  *float64        `json:"penalty_points,omitempty"`
}

// Standard reports whether the fault should be priced from the fault table.
func (f Fault) Standard() bool { return f.PenaltyPoints == nil }

// Entry converts an explicitly priced fault to a model entry.
func (f Fault) Entry() model.FaultEntry {
	e := model.FaultEntry{ObstacleNumber: f.ObstacleNumber, Type: f.Type}
	if f.PenaltyPoints != nil {
		e.PenaltyPoints = *f.PenaltyPoints
	}
	return e
}

// ElapsedTime is the body of a round time entry.
type ElapsedTime struct {
	Seconds *float64 `json:"seconds"`
}

// Disqualification is the body of a disqualify request.
type Disqualification struct {
	Reason string `json:"reason"`
}

// TemplateAssignment binds a template to a category for one discipline.
type TemplateAssignment struct {
	Discipline model.Discipline `json:"discipline"`
	TemplateID string           `json:"template_id"`
}
