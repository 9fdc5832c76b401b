package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/metrics"
)

// Default postgres configuration constants.
const (
	defaultMaxOpenConns = 16
	uniqueViolation     = "23505"
)

// scoreCardRow keeps the indexed columns next to the full card document.
type scoreCardRow struct {
	bun.BaseModel `bun:"table:scorecards,alias:sc"`

	ID            string           `bun:"id,pk"`
	CompetitionID string           `bun:"competition_id,notnull"`
	CategoryID    string           `bun:"category_id,notnull"`
	ParticipantID string           `bun:"participant_id,notnull"`
	JudgeID       string           `bun:"judge_id,notnull"`
	Status        string           `bun:"status,notnull"`
	Version       int64            `bun:"version,notnull"`
	UpdatedAt     time.Time        `bun:"updated_at,notnull"`
	Data          *model.ScoreCard `bun:"data,type:jsonb,notnull"`
}

type rankingRow struct {
	bun.BaseModel `bun:"table:rankings,alias:rk"`

	ID            string         `bun:"id,pk"`
	CompetitionID string         `bun:"competition_id,notnull"`
	CategoryID    string         `bun:"category_id,notnull"`
	Version       int64          `bun:"version,notnull"`
	UpdatedAt     time.Time      `bun:"updated_at,notnull"`
	Data          *model.Ranking `bun:"data,type:jsonb,notnull"`
}

type templateRow struct {
	bun.BaseModel `bun:"table:scoring_templates,alias:st"`

	ID          string                 `bun:"id,pk"`
	SystemOwned bool                   `bun:"system_owned,notnull,default:false"`
	UpdatedAt   time.Time              `bun:"updated_at,notnull"`
	Data        *model.ScoringTemplate `bun:"data,type:jsonb,notnull"`
}

type assignmentRow struct {
	bun.BaseModel `bun:"table:template_assignments,alias:ta"`

	CompetitionID string `bun:"competition_id,pk"`
	CategoryID    string `bun:"category_id,pk"`
	Discipline    string `bun:"discipline,pk"`
	TemplateID    string `bun:"template_id,notnull"`
}

// PostgresStore is a Store backed by PostgreSQL through bun. Updates run in
// a transaction holding a row lock, so concurrent writers to one scorecard
// or category ranking are serialised by the database.
type PostgresStore struct {
	db           *bun.DB
	debug        bool
	maxOpenConns int
	logger       logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, pings the server and creates the schema.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	s := &PostgresStore{
		maxOpenConns: defaultMaxOpenConns,
		logger:       logger.Get().Named("postgres"),
	}
	for _, opt := range opts {
		opt(s)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	sqldb.SetMaxOpenConns(s.maxOpenConns)
	s.db = bun.NewDB(sqldb, pgdialect.New())
	if s.debug {
		s.db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := s.db.PingContext(ctx); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := s.CreateTables(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "postgres store ready", logger.Int("max_open_conns", s.maxOpenConns))
	return s, nil
}

// CreateTables creates the schema if it does not exist.
func (s *PostgresStore) CreateTables(ctx context.Context) error {
	tables := []any{
		(*scoreCardRow)(nil),
		(*rankingRow)(nil),
		(*templateRow)(nil),
		(*assignmentRow)(nil),
	}
	for _, m := range tables {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", m, err)
		}
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS scorecards_judge_uniq ON scorecards (competition_id, category_id, participant_id, judge_id)`,
		`CREATE INDEX IF NOT EXISTS scorecards_category_idx ON scorecards (competition_id, category_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS rankings_category_uniq ON rankings (competition_id, category_id)`,
	}
	for _, stmt := range indexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency("postgres", op, time.Since(start).Seconds())
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}

// CreateScoreCard implements ScoreCardStore.
func (s *PostgresStore) CreateScoreCard(ctx context.Context, c *model.ScoreCard) error {
	defer s.observe("create_scorecard", time.Now())
	row := newScoreCardRow(c.Clone())
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Creates in one category are serialised so the discipline check
		// cannot race another insert.
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?), hashtext(?))",
			c.CompetitionID, c.CategoryID); err != nil {
			return fmt.Errorf("lock category %s/%s: %w", c.CompetitionID, c.CategoryID, err)
		}
		var other string
		err := tx.NewSelect().
			Model((*scoreCardRow)(nil)).
			ColumnExpr("sc.data->>'discipline'").
			Where("sc.competition_id = ?", c.CompetitionID).
			Where("sc.category_id = ?", c.CategoryID).
			Where("sc.data->>'discipline' <> ?", string(c.Discipline)).
			Limit(1).
			Scan(ctx, &other)
		switch {
		case err == nil:
			return mixedDiscipline(model.Discipline(other), c.Discipline)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check category discipline: %w", err)
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return alreadyExists("scorecard", c.ID)
			}
			return fmt.Errorf("insert scorecard %s: %w", c.ID, err)
		}
		return nil
	})
}

func newScoreCardRow(c *model.ScoreCard) *scoreCardRow {
	return &scoreCardRow{
		ID:            c.ID,
		CompetitionID: c.CompetitionID,
		CategoryID:    c.CategoryID,
		ParticipantID: c.ParticipantID,
		JudgeID:       c.JudgeID,
		Status:        string(c.Status),
		Version:       c.Version,
		UpdatedAt:     time.Now().UTC(),
		Data:          c,
	}
}

// GetScoreCard implements ScoreCardStore.
func (s *PostgresStore) GetScoreCard(ctx context.Context, id string) (*model.ScoreCard, error) {
	defer s.observe("get_scorecard", time.Now())
	row := new(scoreCardRow)
	err := s.db.NewSelect().Model(row).Where("sc.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("scorecard", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select scorecard %s: %w", id, err)
	}
	return row.Data, nil
}

// UpdateScoreCard implements ScoreCardStore.
func (s *PostgresStore) UpdateScoreCard(ctx context.Context, id string, fn func(*model.ScoreCard) error) (*model.ScoreCard, error) {
	defer s.observe("update_scorecard", time.Now())
	var out *model.ScoreCard
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(scoreCardRow)
		err := tx.NewSelect().Model(row).Where("sc.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("scorecard", id)
		}
		if err != nil {
			return fmt.Errorf("lock scorecard %s: %w", id, err)
		}
		c := row.Data
		if err := fn(c); err != nil {
			return err
		}
		c.ID = row.ID
		c.Version = row.Version + 1
		next := newScoreCardRow(c)
		if _, err := tx.NewUpdate().Model(next).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update scorecard %s: %w", id, err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListScoreCards implements ScoreCardStore.
func (s *PostgresStore) ListScoreCards(ctx context.Context, f ScoreCardFilter) ([]*model.ScoreCard, error) {
	defer s.observe("list_scorecards", time.Now())
	var rows []scoreCardRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("sc.id ASC")
	if f.CompetitionID != "" {
		q = q.Where("sc.competition_id = ?", f.CompetitionID)
	}
	if f.CategoryID != "" {
		q = q.Where("sc.category_id = ?", f.CategoryID)
	}
	if f.ParticipantID != "" {
		q = q.Where("sc.participant_id = ?", f.ParticipantID)
	}
	if f.JudgeID != "" {
		q = q.Where("sc.judge_id = ?", f.JudgeID)
	}
	if f.Status != "" {
		q = q.Where("sc.status = ?", string(f.Status))
	}
	if f.TemplateID != "" {
		q = q.Where("sc.data->>'template_id' = ?", f.TemplateID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list scorecards: %w", err)
	}
	out := make([]*model.ScoreCard, len(rows))
	for i := range rows {
		out[i] = rows[i].Data
	}
	return out, nil
}

// ListCategories implements ScoreCardStore.
func (s *PostgresStore) ListCategories(ctx context.Context, competitionID string) ([]string, error) {
	defer s.observe("list_categories", time.Now())
	var ids []string
	err := s.db.NewSelect().
		Model((*scoreCardRow)(nil)).
		ColumnExpr("DISTINCT sc.category_id").
		Where("sc.competition_id = ?", competitionID).
		OrderExpr("sc.category_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list categories of %s: %w", competitionID, err)
	}
	return ids, nil
}

// CountScoreCards implements ScoreCardStore.
func (s *PostgresStore) CountScoreCards(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*scoreCardRow)(nil)).Count(ctx)
}

// GetRanking implements RankingStore.
func (s *PostgresStore) GetRanking(ctx context.Context, id string) (*model.Ranking, error) {
	defer s.observe("get_ranking", time.Now())
	row := new(rankingRow)
	err := s.db.NewSelect().Model(row).Where("rk.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("ranking", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select ranking %s: %w", id, err)
	}
	return row.Data, nil
}

// FindRanking implements RankingStore.
func (s *PostgresStore) FindRanking(ctx context.Context, competitionID, categoryID string) (*model.Ranking, error) {
	defer s.observe("find_ranking", time.Now())
	row := new(rankingRow)
	err := s.db.NewSelect().Model(row).
		Where("rk.competition_id = ?", competitionID).
		Where("rk.category_id = ?", categoryID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("ranking", competitionID+"/"+categoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("find ranking %s/%s: %w", competitionID, categoryID, err)
	}
	return row.Data, nil
}

// UpdateCategoryRanking implements RankingStore. A transaction-scoped
// advisory lock on the category serialises creation of the first ranking.
func (s *PostgresStore) UpdateCategoryRanking(ctx context.Context, competitionID, categoryID string, fn func(*model.Ranking) error) (*model.Ranking, error) {
	defer s.observe("update_category_ranking", time.Now())
	var out *model.Ranking
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", "ranking:"+strconv.Itoa(len(competitionID))+":"+competitionID+"/"+categoryID); err != nil {
			return fmt.Errorf("lock category %s/%s: %w", competitionID, categoryID, err)
		}
		row := new(rankingRow)
		err := tx.NewSelect().Model(row).
			Where("rk.competition_id = ?", competitionID).
			Where("rk.category_id = ?", categoryID).
			Scan(ctx)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("select ranking %s/%s: %w", competitionID, categoryID, err)
		}

		r := &model.Ranking{CompetitionID: competitionID, CategoryID: categoryID}
		if exists {
			r = row.Data
		}
		if err := fn(r); err != nil {
			return err
		}
		if r.ID == "" {
			return model.Invalid("repository.update_category_ranking", "id", "required", "non-empty", "")
		}
		r.CompetitionID, r.CategoryID = competitionID, categoryID
		r.Version = row.Version + 1

		next := &rankingRow{
			ID:            r.ID,
			CompetitionID: competitionID,
			CategoryID:    categoryID,
			Version:       r.Version,
			UpdatedAt:     time.Now().UTC(),
			Data:          r,
		}
		if exists {
			_, err = tx.NewUpdate().Model(next).WherePK().Exec(ctx)
		} else {
			_, err = tx.NewInsert().Model(next).Exec(ctx)
		}
		if err != nil {
			return fmt.Errorf("save ranking %s: %w", r.ID, err)
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRanking implements RankingStore.
func (s *PostgresStore) UpdateRanking(ctx context.Context, id string, fn func(*model.Ranking) error) (*model.Ranking, error) {
	defer s.observe("update_ranking", time.Now())
	var out *model.Ranking
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(rankingRow)
		err := tx.NewSelect().Model(row).Where("rk.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("ranking", id)
		}
		if err != nil {
			return fmt.Errorf("lock ranking %s: %w", id, err)
		}
		r := row.Data
		if err := fn(r); err != nil {
			return err
		}
		r.ID, r.CompetitionID, r.CategoryID = row.ID, row.CompetitionID, row.CategoryID
		r.Version = row.Version + 1
		row.Version = r.Version
		row.UpdatedAt = time.Now().UTC()
		row.Data = r
		if _, err := tx.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update ranking %s: %w", id, err)
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountRankings implements RankingStore.
func (s *PostgresStore) CountRankings(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*rankingRow)(nil)).Count(ctx)
}

func newTemplateRow(t *model.ScoringTemplate) *templateRow {
	return &templateRow{
		ID:          t.ID,
		SystemOwned: t.SystemOwned,
		UpdatedAt:   time.Now().UTC(),
		Data:        t,
	}
}

// template returns the stored template; the column is authoritative for
// SystemOwned.
func (r *templateRow) template() *model.ScoringTemplate {
	t := r.Data
	t.SystemOwned = r.SystemOwned
	return t
}

// CreateTemplate implements TemplateStore.
func (s *PostgresStore) CreateTemplate(ctx context.Context, t *model.ScoringTemplate) error {
	defer s.observe("create_template", time.Now())
	if _, err := s.db.NewInsert().Model(newTemplateRow(t.Clone())).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return alreadyExists("template", t.ID)
		}
		return fmt.Errorf("insert template %s: %w", t.ID, err)
	}
	return nil
}

// PutTemplate implements TemplateStore.
func (s *PostgresStore) PutTemplate(ctx context.Context, t *model.ScoringTemplate) error {
	defer s.observe("put_template", time.Now())
	_, err := s.db.NewInsert().Model(newTemplateRow(t.Clone())).
		On("CONFLICT (id) DO UPDATE").
		Set("system_owned = EXCLUDED.system_owned").
		Set("updated_at = EXCLUDED.updated_at").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert template %s: %w", t.ID, err)
	}
	return nil
}

// GetTemplate implements TemplateStore.
func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*model.ScoringTemplate, error) {
	defer s.observe("get_template", time.Now())
	row := new(templateRow)
	err := s.db.NewSelect().Model(row).Where("st.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("template", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select template %s: %w", id, err)
	}
	return row.template(), nil
}

// UpdateTemplate implements TemplateStore.
func (s *PostgresStore) UpdateTemplate(ctx context.Context, id string, fn func(*model.ScoringTemplate) error) (*model.ScoringTemplate, error) {
	defer s.observe("update_template", time.Now())
	var out *model.ScoringTemplate
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(templateRow)
		err := tx.NewSelect().Model(row).Where("st.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("template", id)
		}
		if err != nil {
			return fmt.Errorf("lock template %s: %w", id, err)
		}
		t := row.template()
		if err := fn(t); err != nil {
			return err
		}
		t.ID = row.ID
		if _, err := tx.NewUpdate().Model(newTemplateRow(t)).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update template %s: %w", id, err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListTemplates implements TemplateStore.
func (s *PostgresStore) ListTemplates(ctx context.Context) ([]*model.ScoringTemplate, error) {
	defer s.observe("list_templates", time.Now())
	var rows []templateRow
	if err := s.db.NewSelect().Model(&rows).OrderExpr("st.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]*model.ScoringTemplate, len(rows))
	for i := range rows {
		out[i] = rows[i].template()
	}
	return out, nil
}

// AssignTemplate implements TemplateStore.
func (s *PostgresStore) AssignTemplate(ctx context.Context, key model.TemplateKey, templateID string) error {
	defer s.observe("assign_template", time.Now())
	exists, err := s.db.NewSelect().Model((*templateRow)(nil)).Where("st.id = ?", templateID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check template %s: %w", templateID, err)
	}
	if !exists {
		return notFound("template", templateID)
	}
	row := &assignmentRow{
		CompetitionID: key.CompetitionID,
		CategoryID:    key.CategoryID,
		Discipline:    string(key.Discipline),
		TemplateID:    templateID,
	}
	_, err = s.db.NewInsert().Model(row).
		On("CONFLICT (competition_id, category_id, discipline) DO UPDATE").
		Set("template_id = EXCLUDED.template_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("assign template %s: %w", templateID, err)
	}
	return nil
}

// AssignedTemplate implements TemplateStore.
func (s *PostgresStore) AssignedTemplate(ctx context.Context, key model.TemplateKey) (string, error) {
	row := new(assignmentRow)
	err := s.db.NewSelect().Model(row).
		Where("ta.competition_id = ?", key.CompetitionID).
		Where("ta.category_id = ?", key.CategoryID).
		Where("ta.discipline = ?", string(key.Discipline)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("template_assignment", key.CompetitionID+"/"+key.CategoryID+"/"+string(key.Discipline))
	}
	if err != nil {
		return "", fmt.Errorf("select template assignment: %w", err)
	}
	return row.TemplateID, nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
