// Package ranking builds ordered, tie-aware category rankings from eligible
// scorecards and governs how a ranking is recalculated and published.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/panel"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/scoring"
)

// TieBreakMode decides whether the tie-break rule can separate positions.
type TieBreakMode string

// Tie-break modes.
const (
	// Informational keeps tied entries on a shared position and only
	// explains the tie-break order in TieBreakInfo.
	Informational TieBreakMode = "informational"
	// Decisive lets the tie-break key separate positions.
	Decisive TieBreakMode = "decisive"
)

// Valid reports whether m is a known mode.
func (m TieBreakMode) Valid() bool { return m == Informational || m == Decisive }

// Keys are compared in fixed point so two percentages that print the same
// are treated as equal.
const keyScale = 10_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := math.Round(x * keyScale)
	if scaled > float64(math.MaxInt64) {
		return scoreFP(math.MaxInt64)
	}
	if scaled < float64(math.MinInt64) {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(scaled)
}

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithPanelPolicy sets how several judges' cards for one ride are combined.
func WithPanelPolicy(p panel.Policy) Option {
	return func(b *Builder) {
		if p.Method != "" {
			b.panel = p
		}
	}
}

// WithTieBreakMode sets the tie-break mode.
func WithTieBreakMode(m TieBreakMode) Option {
	return func(b *Builder) {
		if m.Valid() {
			b.mode = m
		}
	}
}

// Builder produces rankings. It holds no mutable state and is safe for
// concurrent use.
type Builder struct {
	panel panel.Policy
	mode  TieBreakMode
}

// NewBuilder creates a Builder with configuration options.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		panel: panel.DefaultPolicy(),
		mode:  Informational,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mode returns the tie-break mode in use.
func (b *Builder) Mode() TieBreakMode { return b.mode }

// Result is the output of one build.
type Result struct {
	Entries []model.RankingEntry
	// IsFinal is true when every ranked card has been published.
	IsFinal bool
}

// standing is one participant's panel-aggregated result. primary and
// secondary are ordering keys where lower ranks earlier.
type standing struct {
	participantID string
	finalScore    float64
	percentage    float64
	collective    float64
	elapsed       float64
	hasElapsed    bool
	judges        int

	primary   scoreFP
	secondary scoreFP
}

// Build ranks the eligible cards of discipline d. Cards that are not
// eligible, or belong to another discipline, are ignored. It fails with
// model.ErrNoEligibleScoreCards when nothing is left to rank.
func (b *Builder) Build(d model.Discipline, cards []*model.ScoreCard, info map[string]model.ParticipantInfo) (Result, error) {
	const op = "ranking.build"

	byParticipant := make(map[string][]*model.ScoreCard)
	final := true
	for _, c := range cards {
		if !model.Eligible(c) || c.Discipline != d {
			continue
		}
		byParticipant[c.ParticipantID] = append(byParticipant[c.ParticipantID], c)
		if c.Status != model.StatusPublished {
			final = false
		}
	}
	if len(byParticipant) == 0 {
		return Result{}, model.NewError(op, model.ErrNoEligibleScoreCards)
	}

	standings := make([]standing, 0, len(byParticipant))
	for id, group := range byParticipant {
		s, err := b.aggregate(d, id, group)
		if err != nil {
			return Result{}, fmt.Errorf("%s: participant %s: %w", op, id, err)
		}
		standings = append(standings, s)
	}

	sort.Slice(standings, func(i, j int) bool {
		a, c := standings[i], standings[j]
		if a.primary != c.primary {
			return a.primary < c.primary
		}
		if a.secondary != c.secondary {
			return a.secondary < c.secondary
		}
		return a.participantID < c.participantID
	})

	entries := make([]model.RankingEntry, len(standings))
	for i, s := range standings {
		entries[i] = model.RankingEntry{
			ParticipantID:  s.participantID,
			FinalScore:     s.finalScore,
			Percentage:     s.percentage,
			ElapsedSeconds: s.elapsed,
			JudgeCount:     s.judges,
		}
		if p, ok := info[s.participantID]; ok {
			entries[i].RiderName = p.RiderName
			entries[i].HorseName = p.HorseName
			entries[i].Country = p.Country
		}
	}
	b.assignPositions(entries, standings)
	b.describeTies(d, entries, standings)

	return Result{Entries: entries, IsFinal: final}, nil
}

// aggregate folds one participant's cards into a standing.
func (b *Builder) aggregate(d model.Discipline, participantID string, cards []*model.ScoreCard) (standing, error) {
	finals := make([]float64, 0, len(cards))
	pcts := make([]float64, 0, len(cards))
	collectives := make([]float64, 0, len(cards))
	elapsed := make([]float64, 0, len(cards))
	for _, c := range cards {
		finals = append(finals, c.FinalScore)
		pcts = append(pcts, c.Percentage)
		collectives = append(collectives, c.CollectiveSubtotal)
		if c.ElapsedSeconds != nil {
			elapsed = append(elapsed, *c.ElapsedSeconds)
		}
	}

	s := standing{participantID: participantID, judges: len(cards)}
	var err error
	if s.finalScore, err = b.panel.Aggregate(finals); err != nil {
		return s, err
	}
	if s.percentage, err = b.panel.Aggregate(pcts); err != nil {
		return s, err
	}
	if s.collective, err = b.panel.Aggregate(collectives); err != nil {
		return s, err
	}
	if len(elapsed) > 0 {
		if s.elapsed, err = b.panel.Aggregate(elapsed); err != nil {
			return s, err
		}
		s.hasElapsed = true
	}
	s.finalScore = scoring.Round2(s.finalScore)
	s.percentage = scoring.Round2(s.percentage)
	s.collective = scoring.Round2(s.collective)
	s.elapsed = scoring.Round2(s.elapsed)

	switch d {
	case model.Jumping:
		// Fewest penalties first, then fastest time.
		s.primary = toFixedPoint(s.finalScore)
		s.secondary = scoreFP(math.MaxInt64)
		if s.hasElapsed {
			s.secondary = toFixedPoint(s.elapsed)
		}
	default:
		// Highest percentage first, then highest collective marks.
		s.primary = -toFixedPoint(s.percentage)
		s.secondary = -toFixedPoint(s.collective)
	}
	return s, nil
}

// sharesPosition reports whether two adjacent standings occupy one position.
func (b *Builder) sharesPosition(a, c standing) bool {
	if a.primary != c.primary {
		return false
	}
	return b.mode == Informational || a.secondary == c.secondary
}

// assignPositions numbers entries with shared positions for ties; the next
// distinct result resumes at tiedPosition + number of tied entries.
func (b *Builder) assignPositions(entries []model.RankingEntry, standings []standing) {
	for i := range entries {
		if i > 0 && b.sharesPosition(standings[i-1], standings[i]) {
			entries[i].Position = entries[i-1].Position
			entries[i-1].IsTied = true
			entries[i].IsTied = true
			continue
		}
		entries[i].Position = i + 1
	}
}

// describeTies fills TieBreakInfo for every group that is level on the
// primary key.
func (b *Builder) describeTies(d model.Discipline, entries []model.RankingEntry, standings []standing) {
	for start := 0; start < len(standings); {
		end := start + 1
		for end < len(standings) && standings[end].primary == standings[start].primary {
			end++
		}
		if n := end - start; n > 1 {
			for i := start; i < end; i++ {
				// Competition-style rank of the tie-break key inside the group.
				rank := 1
				for j := start; j < end; j++ {
					if standings[j].secondary < standings[i].secondary {
						rank++
					}
				}
				entries[i].TieBreakInfo = b.tieBreakText(d, standings[i], n, rank)
			}
		}
		start = end
	}
}

func (b *Builder) tieBreakText(d model.Discipline, s standing, n, rank int) string {
	var text string
	switch d {
	case model.Jumping:
		t := "no time"
		if s.hasElapsed {
			t = strconv.FormatFloat(s.elapsed, 'f', 2, 64) + "s"
		}
		text = fmt.Sprintf("level on %s penalties with %d other(s); time %s, tie-break %d of %d",
			strconv.FormatFloat(s.finalScore, 'f', -1, 64), n-1, t, rank, n)
	default:
		text = fmt.Sprintf("level on %.2f%% with %d other(s); collective marks %.2f, tie-break %d of %d",
			s.percentage, n-1, s.collective, rank, n)
	}
	return text + " (" + string(b.mode) + ")"
}
