// Package store provides SQLite-based persistence for sources, topics,
// content items, summaries and ingestion logs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/storage"
)

// Store provides aggregator data persistence.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens the database at cfg.Path and applies the schema.
func Open(ctx context.Context, cfg storage.Config, logger *slog.Logger) (*Store, error) {
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(db, logger)
	if err := db.Migrate(ctx, Schema); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database. The schema is not applied.
func New(db *storage.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for created/scraped timestamps.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var sourceColumns = []string{
	"id", "name", "display_name", "source_type", "url", "enabled", "weight", "config", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (model.Source, error) {
	var (
		src                  model.Source
		typ, cfg             string
		enabled              int
		createdAt, updatedAt int64
	)
	err := row.Scan(&src.ID, &src.Name, &src.DisplayName, &typ, &src.URL, &enabled, &src.Weight, &cfg, &createdAt, &updatedAt)
	if err != nil {
		return model.Source{}, err
	}
	src.Type = model.ParseSourceType(typ)
	src.Enabled = enabled != 0
	src.Config = model.ParseSourceConfig(cfg)
	src.CreatedAt = fromMillis(createdAt)
	src.UpdatedAt = fromMillis(updatedAt)
	return src, nil
}

var topicColumns = []string{
	"id", "name", "display_name", "description", "enabled", "refresh_hours", "created_at", "updated_at",
}

func scanTopic(row rowScanner) (model.Topic, error) {
	var (
		t                    model.Topic
		enabled              int
		createdAt, updatedAt int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.DisplayName, &t.Description, &enabled, &t.RefreshHours, &createdAt, &updatedAt)
	if err != nil {
		return model.Topic{}, err
	}
	t.Enabled = enabled != 0
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}

// UpsertSource creates the source or updates the existing one with the same
// name, and sets src.ID.
func (s *Store) UpsertSource(ctx context.Context, src *model.Source) error {
	if src.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if src.Type == "" {
		src.Type = model.SourceAPI
	}
	now := millis(s.now())
	query, args, err := sq.Insert("sources").
		Columns("name", "display_name", "source_type", "url", "enabled", "weight", "config", "created_at", "updated_at").
		Values(src.Name, src.DisplayName, string(src.Type), src.URL, boolInt(src.Enabled), src.Weight, src.Config.JSON(), now, now).
		Suffix(`ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			source_type = excluded.source_type,
			url = excluded.url,
			enabled = excluded.enabled,
			weight = excluded.weight,
			config = excluded.config,
			updated_at = excluded.updated_at
			RETURNING id`).
		ToSql()
	if err != nil {
		return err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&src.ID); err != nil {
		return fmt.Errorf("upsert source %s: %w", src.Name, err)
	}
	return nil
}

// UpsertTopic creates the topic or updates the existing one with the same
// name, and sets t.ID.
func (s *Store) UpsertTopic(ctx context.Context, t *model.Topic) error {
	if t.Name == "" {
		return fmt.Errorf("topic name is required")
	}
	if t.RefreshHours <= 0 {
		t.RefreshHours = 4
	}
	now := millis(s.now())
	query, args, err := sq.Insert("topics").
		Columns("name", "display_name", "description", "enabled", "refresh_hours", "created_at", "updated_at").
		Values(t.Name, t.DisplayName, t.Description, boolInt(t.Enabled), t.RefreshHours, now, now).
		Suffix(`ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			enabled = excluded.enabled,
			refresh_hours = excluded.refresh_hours,
			updated_at = excluded.updated_at
			RETURNING id`).
		ToSql()
	if err != nil {
		return err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&t.ID); err != nil {
		return fmt.Errorf("upsert topic %s: %w", t.Name, err)
	}
	return nil
}

// SetTopicSources replaces the set of sources associated with a topic.
func (s *Store) SetTopicSources(ctx context.Context, topicID int64, sourceIDs []int64) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := sq.Delete("source_topics").Where(sq.Eq{"topic_id": topicID}).RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("clear topic sources: %w", err)
		}
		if len(sourceIDs) == 0 {
			return nil
		}
		ins := sq.Insert("source_topics").Options("OR IGNORE").Columns("source_id", "topic_id")
		for _, id := range sourceIDs {
			ins = ins.Values(id, topicID)
		}
		if _, err := ins.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("link topic sources: %w", err)
		}
		return nil
	})
}

// SetSourceTopics replaces the set of topics a source is associated with.
func (s *Store) SetSourceTopics(ctx context.Context, sourceID int64, topicIDs []int64) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := sq.Delete("source_topics").Where(sq.Eq{"source_id": sourceID}).RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("clear source topics: %w", err)
		}
		if len(topicIDs) == 0 {
			return nil
		}
		ins := sq.Insert("source_topics").Options("OR IGNORE").Columns("source_id", "topic_id")
		for _, id := range topicIDs {
			ins = ins.Values(sourceID, id)
		}
		if _, err := ins.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("link source topics: %w", err)
		}
		return nil
	})
}

// GetSource returns the source with id, or nil if it does not exist.
func (s *Store) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	return s.getSource(ctx, sq.Eq{"id": id})
}

// GetSourceByName returns the named source, or nil if it does not exist.
func (s *Store) GetSourceByName(ctx context.Context, name string) (*model.Source, error) {
	return s.getSource(ctx, sq.Eq{"name": name})
}

func (s *Store) getSource(ctx context.Context, where sq.Eq) (*model.Source, error) {
	query, args, err := sq.Select(sourceColumns...).From("sources").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	src, err := scanSource(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return &src, nil
}

// GetTopic returns the topic with id, or nil if it does not exist.
func (s *Store) GetTopic(ctx context.Context, id int64) (*model.Topic, error) {
	return s.getTopic(ctx, sq.Eq{"id": id})
}

// GetTopicByName returns the named topic, or nil if it does not exist.
func (s *Store) GetTopicByName(ctx context.Context, name string) (*model.Topic, error) {
	return s.getTopic(ctx, sq.Eq{"name": name})
}

func (s *Store) getTopic(ctx context.Context, where sq.Eq) (*model.Topic, error) {
	query, args, err := sq.Select(topicColumns...).From("topics").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	t, err := scanTopic(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return &t, nil
}

// ListTopics returns topics ordered by name.
func (s *Store) ListTopics(ctx context.Context, enabledOnly bool) ([]model.Topic, error) {
	q := sq.Select(topicColumns...).From("topics").OrderBy("name")
	if enabledOnly {
		q = q.Where(sq.Eq{"enabled": 1})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []model.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// ListSources returns sources ordered by name.
func (s *Store) ListSources(ctx context.Context, enabledOnly bool) ([]model.Source, error) {
	q := sq.Select(sourceColumns...).From("sources").OrderBy("name")
	if enabledOnly {
		q = q.Where(sq.Eq{"enabled": 1})
	}
	return s.querySources(ctx, q)
}

// SourcesForTopic returns the sources associated with a topic, ordered by id.
func (s *Store) SourcesForTopic(ctx context.Context, topicID int64, enabledOnly bool) ([]model.Source, error) {
	cols := make([]string, len(sourceColumns))
	for i, c := range sourceColumns {
		cols[i] = "s." + c
	}
	q := sq.Select(cols...).From("sources s").
		Join("source_topics st ON st.source_id = s.id").
		Where(sq.Eq{"st.topic_id": topicID}).
		OrderBy("s.id")
	if enabledOnly {
		q = q.Where(sq.Eq{"s.enabled": 1})
	}
	return s.querySources(ctx, q)
}

// TopicSourceNames returns the source names linked to each topic id.
func (s *Store) TopicSourceNames(ctx context.Context) (map[int64][]string, error) {
	query, args, err := sq.Select("st.topic_id", "s.name").From("source_topics st").
		Join("sources s ON s.id = st.source_id").
		OrderBy("st.topic_id", "s.name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("topic sources: %w", err)
	}
	defer rows.Close()

	out := map[int64][]string{}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}

// SourceTopicNames returns the topic names linked to each source id.
func (s *Store) SourceTopicNames(ctx context.Context) (map[int64][]string, error) {
	query, args, err := sq.Select("st.source_id", "t.name").From("source_topics st").
		Join("topics t ON t.id = st.topic_id").
		OrderBy("st.source_id", "t.name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("source topics: %w", err)
	}
	defer rows.Close()

	out := map[int64][]string{}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}

func (s *Store) querySources(ctx context.Context, q sq.SelectBuilder) ([]model.Source, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}
