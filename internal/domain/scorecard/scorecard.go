// Package scorecard implements the ScoreCard evaluation lifecycle:
//
//	pending -> in_progress -> completed -> validated -> published
//	pending | in_progress | completed -> disqualified
//
// Every operation validates before it mutates, so a failed call leaves the
// card untouched. Persisting the result atomically is the store's job.
package scorecard

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scoring"
)

// Default lifecycle configuration constants.
const (
	DefaultMinReasonLength = 5
)

// transitions lists the statuses reachable from each status.
var transitions = map[model.Status][]model.Status{
	model.StatusPending:    {model.StatusInProgress, model.StatusDisqualified},
	model.StatusInProgress: {model.StatusCompleted, model.StatusDisqualified},
	model.StatusCompleted:  {model.StatusValidated, model.StatusDisqualified},
	model.StatusValidated:  {model.StatusPublished},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Editable reports whether raw input may still change in status s.
func Editable(s model.Status) bool {
	return s == model.StatusPending || s == model.StatusInProgress
}

// Params holds the identity of a new scorecard.
type Params struct {
	ID                 string
	ParticipantID      string
	JudgeID            string
	JudgePosition      string
	CompetitionID      string
	CategoryID         string
	TemplateID         string
	TemplateVersion    int
	AllowedTimeSeconds float64
}

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithMinReasonLength sets the minimum disqualification reason length in runes.
func WithMinReasonLength(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.minReasonLength = n
		}
	}
}

// WithClock overrides the clock used for lifecycle timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Machine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// Machine applies lifecycle operations to scorecards.
type Machine struct {
	minReasonLength int
	now             func() time.Time
}

// NewMachine creates a Machine with configuration options.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		minReasonLength: DefaultMinReasonLength,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MinReasonLength returns the configured minimum reason length.
func (m *Machine) MinReasonLength() int { return m.minReasonLength }

// New creates a pending scorecard scored by rule.
func (m *Machine) New(p Params, rule scoring.Rule) (*model.ScoreCard, error) {
	const op = "scorecard.new"
	for _, f := range []struct{ name, value string }{
		{"id", p.ID},
		{"participant_id", p.ParticipantID},
		{"judge_id", p.JudgeID},
		{"competition_id", p.CompetitionID},
		{"category_id", p.CategoryID},
	} {
		if strings.TrimSpace(f.value) == "" {
			return nil, model.Invalid(op, f.name, "required", "non-empty", "")
		}
	}
	if rule == nil {
		return nil, model.Invalid(op, "rules", "required", "scoring rule", "nil")
	}
	if p.AllowedTimeSeconds < 0 {
		return nil, model.Invalid(op, "allowed_time_seconds", "min", "0", strconv.FormatFloat(p.AllowedTimeSeconds, 'f', -1, 64))
	}
	c := &model.ScoreCard{
		ID:                 p.ID,
		ParticipantID:      p.ParticipantID,
		JudgeID:            p.JudgeID,
		JudgePosition:      strings.ToUpper(strings.TrimSpace(p.JudgePosition)),
		CompetitionID:      p.CompetitionID,
		CategoryID:         p.CategoryID,
		Discipline:         rule.Discipline(),
		TemplateID:         p.TemplateID,
		TemplateVersion:    p.TemplateVersion,
		Status:             model.StatusPending,
		Marks:              map[model.MarkID]float64{},
		AllowedTimeSeconds: p.AllowedTimeSeconds,
		CreatedAt:          m.now().UTC(),
	}
	recompute(c, rule)
	return c, nil
}

// RecordMark enters or replaces one mark.
func (m *Machine) RecordMark(c *model.ScoreCard, rule scoring.Rule, id model.MarkID, value float64) error {
	const op = "scorecard.record_mark"
	if err := checkEditable(op, c); err != nil {
		return err
	}
	id = id.Canonical()
	if err := rule.CheckMark(id, value); err != nil {
		return err
	}
	if c.Marks == nil {
		c.Marks = map[model.MarkID]float64{}
	}
	c.Marks[id] = value
	recompute(c, rule)
	return nil
}

// ClearMark returns a mark to the not-entered state.
func (m *Machine) ClearMark(c *model.ScoreCard, rule scoring.Rule, id model.MarkID) error {
	const op = "scorecard.clear_mark"
	if err := checkEditable(op, c); err != nil {
		return err
	}
	id = id.Canonical()
	if _, ok := c.Marks[id]; !ok {
		return model.NotFound(op, "mark", string(id))
	}
	delete(c.Marks, id)
	recompute(c, rule)
	return nil
}

// RecordFault appends a jumping fault. Manual time faults are only
// accepted on untimed rounds.
func (m *Machine) RecordFault(c *model.ScoreCard, rule scoring.Rule, f model.FaultEntry) error {
	const op = "scorecard.record_fault"
	if err := checkEditable(op, c); err != nil {
		return err
	}
	if err := rule.CheckFault(f); err != nil {
		return err
	}
	// A timed round derives its time faults from the elapsed time.
	if f.Type == model.FaultTime && c.AllowedTimeSeconds > 0 {
		return model.Invalid(op, "fault_type", "derived", "knockdown refusal other", string(f.Type))
	}
	c.Faults = append(c.Faults, f)
	recompute(c, rule)
	return nil
}

// RecordTime sets the elapsed round time.
func (m *Machine) RecordTime(c *model.ScoreCard, rule scoring.Rule, seconds float64) error {
	const op = "scorecard.record_time"
	if err := checkEditable(op, c); err != nil {
		return err
	}
	if err := rule.CheckElapsed(seconds); err != nil {
		return err
	}
	c.ElapsedSeconds = &seconds
	recompute(c, rule)
	return nil
}

// Start moves a pending card to in_progress.
func (m *Machine) Start(c *model.ScoreCard) error {
	if err := m.transition("scorecard.start", c, model.StatusInProgress); err != nil {
		return err
	}
	now := m.now().UTC()
	c.StartedAt = &now
	return nil
}

// Complete recomputes the totals one final time and freezes the card. It
// fails if any required input is still absent.
func (m *Machine) Complete(c *model.ScoreCard, rule scoring.Rule) error {
	const op = "scorecard.complete"
	if !CanTransition(c.Status, model.StatusCompleted) {
		return model.Transition(op, c.Status, model.StatusCompleted)
	}
	sheet := scoring.SheetOf(c)
	if missing := rule.MissingRequired(sheet); len(missing) > 0 {
		e := model.NewError(op, model.ErrIncompleteRequiredMarks)
		e.Missing = missing
		return e
	}
	rule.Compute(sheet).Apply(c)
	c.Status = model.StatusCompleted
	now := m.now().UTC()
	c.CompletedAt = &now
	return nil
}

// Validate confirms a completed card. No recomputation happens here.
func (m *Machine) Validate(c *model.ScoreCard) error {
	if err := m.transition("scorecard.validate", c, model.StatusValidated); err != nil {
		return err
	}
	now := m.now().UTC()
	c.ValidatedAt = &now
	return nil
}

// Publish exposes a validated card. Published is terminal.
func (m *Machine) Publish(c *model.ScoreCard) error {
	if err := m.transition("scorecard.publish", c, model.StatusPublished); err != nil {
		return err
	}
	now := m.now().UTC()
	c.PublishedAt = &now
	return nil
}

// Disqualify excludes the card from ranking. Totals are kept for audit.
func (m *Machine) Disqualify(c *model.ScoreCard, reason string) error {
	const op = "scorecard.disqualify"
	if !CanTransition(c.Status, model.StatusDisqualified) {
		return model.Transition(op, c.Status, model.StatusDisqualified)
	}
	reason = strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(reason); n < m.minReasonLength {
		return model.NewError(op, model.ErrMissingReason).
			WithField("reason", "min_length", strconv.Itoa(m.minReasonLength), strconv.Itoa(n))
	}
	c.Status = model.StatusDisqualified
	now := m.now().UTC()
	c.IsDisqualified = true
	c.DisqualificationReason = reason
	c.DisqualifiedAt = &now
	return nil
}

func (m *Machine) transition(op string, c *model.ScoreCard, to model.Status) error {
	if !CanTransition(c.Status, to) {
		return model.Transition(op, c.Status, to)
	}
	c.Status = to
	return nil
}

func checkEditable(op string, c *model.ScoreCard) error {
	if !Editable(c.Status) {
		return model.NewError(op, model.ErrScoreCardLocked).WithField("status", "editable", "pending|in_progress", string(c.Status))
	}
	return nil
}

func recompute(c *model.ScoreCard, rule scoring.Rule) {
	rule.Compute(scoring.SheetOf(c)).Apply(c)
}
