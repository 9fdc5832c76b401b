package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/metrics"
)

type categoryKey struct {
	competitionID string
	categoryID    string
}

type judgeKey struct {
	categoryKey
	participantID string
	judgeID       string
}

// MemoryStore is an in-memory Store. Records are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	cards       map[string]*model.ScoreCard
	judgeCards  map[judgeKey]string
	disciplines map[categoryKey]model.Discipline
	rankings    map[string]*model.Ranking
	byCategory  map[categoryKey]string
	templates   map[string]*model.ScoringTemplate
	assignments map[model.TemplateKey]string
	closed      bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:       make(map[string]*model.ScoreCard),
		judgeCards:  make(map[judgeKey]string),
		disciplines: make(map[categoryKey]model.Discipline),
		rankings:    make(map[string]*model.Ranking),
		byCategory:  make(map[categoryKey]string),
		templates:   make(map[string]*model.ScoringTemplate),
		assignments: make(map[model.TemplateKey]string),
	}
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency("memory", op, time.Since(start).Seconds())
}

func keyOf(c *model.ScoreCard) judgeKey {
	return judgeKey{
		categoryKey:   categoryKey{c.CompetitionID, c.CategoryID},
		participantID: c.ParticipantID,
		judgeID:       c.JudgeID,
	}
}

func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return ErrClosed
	}
	return nil
}

// CreateScoreCard implements ScoreCardStore.
func (s *MemoryStore) CreateScoreCard(ctx context.Context, c *model.ScoreCard) error {
	defer observe("create_scorecard", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.cards[c.ID]; ok {
		return alreadyExists("scorecard", c.ID)
	}
	k := keyOf(c)
	if existing, ok := s.judgeCards[k]; ok {
		return alreadyExists("scorecard for participant and judge", existing)
	}
	if d, ok := s.disciplines[k.categoryKey]; ok && d != c.Discipline {
		return mixedDiscipline(d, c.Discipline)
	}
	s.cards[c.ID] = c.Clone()
	s.judgeCards[k] = c.ID
	s.disciplines[k.categoryKey] = c.Discipline
	return nil
}

// GetScoreCard implements ScoreCardStore.
func (s *MemoryStore) GetScoreCard(ctx context.Context, id string) (*model.ScoreCard, error) {
	defer observe("get_scorecard", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	c, ok := s.cards[id]
	if !ok {
		return nil, notFound("scorecard", id)
	}
	return c.Clone(), nil
}

// UpdateScoreCard implements ScoreCardStore.
func (s *MemoryStore) UpdateScoreCard(ctx context.Context, id string, fn func(*model.ScoreCard) error) (*model.ScoreCard, error) {
	defer observe("update_scorecard", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	stored, ok := s.cards[id]
	if !ok {
		return nil, notFound("scorecard", id)
	}
	c := stored.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	c.ID = stored.ID
	c.Version = stored.Version + 1
	s.cards[id] = c
	return c.Clone(), nil
}

// ListScoreCards implements ScoreCardStore.
func (s *MemoryStore) ListScoreCards(ctx context.Context, f ScoreCardFilter) ([]*model.ScoreCard, error) {
	defer observe("list_scorecards", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]*model.ScoreCard, 0)
	for _, c := range s.cards {
		if f.Match(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListCategories implements ScoreCardStore.
func (s *MemoryStore) ListCategories(ctx context.Context, competitionID string) ([]string, error) {
	defer observe("list_categories", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, c := range s.cards {
		if c.CompetitionID == competitionID {
			seen[c.CategoryID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// CountScoreCards implements ScoreCardStore.
func (s *MemoryStore) CountScoreCards(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return len(s.cards), nil
}

// GetRanking implements RankingStore.
func (s *MemoryStore) GetRanking(ctx context.Context, id string) (*model.Ranking, error) {
	defer observe("get_ranking", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	r, ok := s.rankings[id]
	if !ok {
		return nil, notFound("ranking", id)
	}
	return r.Clone(), nil
}

// FindRanking implements RankingStore.
func (s *MemoryStore) FindRanking(ctx context.Context, competitionID, categoryID string) (*model.Ranking, error) {
	defer observe("find_ranking", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	id, ok := s.byCategory[categoryKey{competitionID, categoryID}]
	if !ok {
		return nil, notFound("ranking", competitionID+"/"+categoryID)
	}
	return s.rankings[id].Clone(), nil
}

// UpdateCategoryRanking implements RankingStore.
func (s *MemoryStore) UpdateCategoryRanking(ctx context.Context, competitionID, categoryID string, fn func(*model.Ranking) error) (*model.Ranking, error) {
	defer observe("update_category_ranking", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	k := categoryKey{competitionID, categoryID}
	var r *model.Ranking
	var version int64
	if id, ok := s.byCategory[k]; ok {
		stored := s.rankings[id]
		r = stored.Clone()
		version = stored.Version
	} else {
		r = &model.Ranking{CompetitionID: competitionID, CategoryID: categoryID}
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, model.Invalid("repository.update_category_ranking", "id", "required", "non-empty", "")
	}
	r.CompetitionID, r.CategoryID = competitionID, categoryID
	r.Version = version + 1
	s.rankings[r.ID] = r
	s.byCategory[k] = r.ID
	return r.Clone(), nil
}

// UpdateRanking implements RankingStore.
func (s *MemoryStore) UpdateRanking(ctx context.Context, id string, fn func(*model.Ranking) error) (*model.Ranking, error) {
	defer observe("update_ranking", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	stored, ok := s.rankings[id]
	if !ok {
		return nil, notFound("ranking", id)
	}
	r := stored.Clone()
	if err := fn(r); err != nil {
		return nil, err
	}
	r.ID, r.CompetitionID, r.CategoryID = stored.ID, stored.CompetitionID, stored.CategoryID
	r.Version = stored.Version + 1
	s.rankings[id] = r
	return r.Clone(), nil
}

// CountRankings implements RankingStore.
func (s *MemoryStore) CountRankings(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return len(s.rankings), nil
}

// CreateTemplate implements TemplateStore.
func (s *MemoryStore) CreateTemplate(ctx context.Context, t *model.ScoringTemplate) error {
	defer observe("create_template", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.templates[t.ID]; ok {
		return alreadyExists("template", t.ID)
	}
	s.templates[t.ID] = t.Clone()
	return nil
}

// PutTemplate implements TemplateStore.
func (s *MemoryStore) PutTemplate(ctx context.Context, t *model.ScoringTemplate) error {
	defer observe("put_template", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.templates[t.ID] = t.Clone()
	return nil
}

// GetTemplate implements TemplateStore.
func (s *MemoryStore) GetTemplate(ctx context.Context, id string) (*model.ScoringTemplate, error) {
	defer observe("get_template", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	t, ok := s.templates[id]
	if !ok {
		return nil, notFound("template", id)
	}
	return t.Clone(), nil
}

// UpdateTemplate implements TemplateStore.
func (s *MemoryStore) UpdateTemplate(ctx context.Context, id string, fn func(*model.ScoringTemplate) error) (*model.ScoringTemplate, error) {
	defer observe("update_template", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	stored, ok := s.templates[id]
	if !ok {
		return nil, notFound("template", id)
	}
	t := stored.Clone()
	if err := fn(t); err != nil {
		return nil, err
	}
	t.ID = stored.ID
	s.templates[id] = t
	return t.Clone(), nil
}

// ListTemplates implements TemplateStore.
func (s *MemoryStore) ListTemplates(ctx context.Context) ([]*model.ScoringTemplate, error) {
	defer observe("list_templates", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]*model.ScoringTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AssignTemplate implements TemplateStore.
func (s *MemoryStore) AssignTemplate(ctx context.Context, key model.TemplateKey, templateID string) error {
	defer observe("assign_template", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.templates[templateID]; !ok {
		return notFound("template", templateID)
	}
	s.assignments[key] = templateID
	return nil
}

// AssignedTemplate implements TemplateStore.
func (s *MemoryStore) AssignedTemplate(ctx context.Context, key model.TemplateKey) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return "", err
	}
	id, ok := s.assignments[key]
	if !ok {
		return "", notFound("template_assignment", key.CompetitionID+"/"+key.CategoryID+"/"+string(key.Discipline))
	}
	return id, nil
}

// Close marks the store closed. Further calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
