package model

import "time"

// RankingEntry is one row of a category ranking.
type RankingEntry struct {
	ParticipantID  string  `json:"participant_id"`
	Position       int     `json:"position"`
	FinalScore     float64 `json:"final_score"`
	Percentage     float64 `json:"percentage"`
	ElapsedSeconds float64 `json:"elapsed_seconds,omitempty"`
	IsTied         bool    `json:"is_tied"`
	TieBreakInfo   string  `json:"tie_break_info,omitempty"`
	JudgeCount     int     `json:"judge_count"`

	RiderName string `json:"rider_name,omitempty"`
	HorseName string `json:"horse_name,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Ranking is the computed standing of one (competition, category) pair.
type Ranking struct {
	ID            string         `json:"id"`
	CompetitionID string         `json:"competition_id"`
	CategoryID    string         `json:"category_id"`
	Discipline    Discipline     `json:"discipline"`
	Entries       []RankingEntry `json:"entries"`
	IsFinal       bool           `json:"is_final"`
	IsPublished   bool           `json:"is_published"`
	GeneratedAt   *time.Time     `json:"generated_at,omitempty"`

	// RecalculatedSincePublish is set by every recalculation and cleared by
	// publication.
	RecalculatedSincePublish bool `json:"recalculated_since_publish"`

	Version int64 `json:"version"`
}

// Clone returns a deep copy of r.
func (r *Ranking) Clone() *Ranking {
	out := *r
	out.Entries = append([]RankingEntry(nil), r.Entries...)
	out.GeneratedAt = clonePtr(r.GeneratedAt)
	return &out
}
