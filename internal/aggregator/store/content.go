package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
)

// SaveItems persists items for one source/topic pair in a single
// transaction. An item whose dedup key already exists for the source is
// skipped. ScrapedAt is assigned here. It returns the number of new rows.
func (s *Store) SaveItems(ctx context.Context, sourceID, topicID int64, items []model.ContentItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	scrapedAt := millis(s.now())

	saved := 0
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			var key sql.NullString
			if k, ok := it.DedupKey(); ok {
				key = sql.NullString{String: k, Valid: true}
			}
			var published sql.NullInt64
			if it.PublishedAt != nil {
				published = sql.NullInt64{Int64: millis(*it.PublishedAt), Valid: true}
			}
			meta := "{}"
			if len(it.Metadata) > 0 {
				b, err := json.Marshal(it.Metadata)
				if err != nil {
					return fmt.Errorf("encode metadata: %w", err)
				}
				meta = string(b)
			}

			res, err := sq.Insert("content_items").Options("OR IGNORE").
				Columns("source_id", "topic_id", "external_id", "dedup_key", "title", "content", "url", "author", "published_at", "scraped_at", "metadata").
				Values(sourceID, topicID, it.ExternalID, key, it.Title, it.Content, it.URL, it.Author, published, scrapedAt, meta).
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			saved += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

// ItemExists reports whether the source already holds an item with the
// same dedup key. An item without a key never exists.
func (s *Store) ItemExists(ctx context.Context, sourceID int64, it model.ContentItem) (bool, error) {
	key, ok := it.DedupKey()
	if !ok {
		return false, nil
	}
	query, args, err := sq.Select("1").From("content_items").
		Where(sq.Eq{"source_id": sourceID, "dedup_key": key}).Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

var itemColumns = []string{
	"c.id", "c.source_id", "c.topic_id", "c.external_id", "c.title", "c.content", "c.url", "c.author",
	"c.published_at", "c.scraped_at", "c.metadata",
	"s.id", "s.name", "s.display_name", "s.source_type", "s.url", "s.enabled", "s.weight", "s.config", "s.created_at", "s.updated_at",
}

// RecentItems returns a topic's items scraped after since, newest first,
// each joined with its source. Items from sources no longer linked to the
// topic are left out. A limit of zero means no limit.
func (s *Store) RecentItems(ctx context.Context, topicID int64, since time.Time, limit int) ([]model.ContentItem, error) {
	q := sq.Select(itemColumns...).From("content_items c").
		Join("sources s ON s.id = c.source_id").
		Join("source_topics st ON st.source_id = c.source_id AND st.topic_id = c.topic_id").
		Where(sq.Eq{"c.topic_id": topicID}).
		Where(sq.Gt{"c.scraped_at": millis(since)}).
		OrderBy("c.scraped_at DESC", "c.id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.queryItems(ctx, q)
}

// LatestItems returns a topic's newest items regardless of age.
func (s *Store) LatestItems(ctx context.Context, topicID int64, limit int) ([]model.ContentItem, error) {
	q := sq.Select(itemColumns...).From("content_items c").
		Join("sources s ON s.id = c.source_id").
		Where(sq.Eq{"c.topic_id": topicID}).
		OrderBy("c.scraped_at DESC", "c.id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.queryItems(ctx, q)
}

func (s *Store) queryItems(ctx context.Context, q sq.SelectBuilder) ([]model.ContentItem, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []model.ContentItem
	for rows.Next() {
		var (
			it                   model.ContentItem
			src                  model.Source
			published            sql.NullInt64
			scraped              int64
			meta, typ, cfg       string
			enabled              int
			createdAt, updatedAt int64
		)
		err := rows.Scan(
			&it.ID, &it.SourceID, &it.TopicID, &it.ExternalID, &it.Title, &it.Content, &it.URL, &it.Author,
			&published, &scraped, &meta,
			&src.ID, &src.Name, &src.DisplayName, &typ, &src.URL, &enabled, &src.Weight, &cfg, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, err
		}
		if published.Valid {
			t := fromMillis(published.Int64)
			it.PublishedAt = &t
		}
		it.ScrapedAt = fromMillis(scraped)
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &it.Metadata); err != nil {
				s.logger.Warn("bad item metadata", "item_id", it.ID, "error", err)
			}
		}
		src.Type = model.ParseSourceType(typ)
		src.Enabled = enabled != 0
		src.Config = model.ParseSourceConfig(cfg)
		src.CreatedAt = fromMillis(createdAt)
		src.UpdatedAt = fromMillis(updatedAt)
		it.Source = &src
		items = append(items, it)
	}
	return items, rows.Err()
}

// LatestScrapedAt returns when the source's newest item was stored, or nil
// if it has none.
func (s *Store) LatestScrapedAt(ctx context.Context, sourceID int64) (*time.Time, error) {
	query, args, err := sq.Select("MAX(scraped_at)").From("content_items").
		Where(sq.Eq{"source_id": sourceID}).ToSql()
	if err != nil {
		return nil, err
	}
	var ms sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ms); err != nil {
		return nil, fmt.Errorf("latest scrape: %w", err)
	}
	if !ms.Valid {
		return nil, nil
	}
	t := fromMillis(ms.Int64)
	return &t, nil
}

// CountItems returns the number of stored items per topic id.
func (s *Store) CountItems(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT topic_id, COUNT(*) FROM content_items GROUP BY topic_id`)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	out := map[int64]int{}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// DeleteItemsBefore removes items scraped before cutoff.
func (s *Store) DeleteItemsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := sq.Delete("content_items").Where(sq.Lt{"scraped_at": millis(cutoff)}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	return res.RowsAffected()
}

// InsertLog appends an ingestion log entry and sets its ID and CreatedAt.
func (s *Store) InsertLog(ctx context.Context, l *model.IngestionLog) error {
	l.CreatedAt = s.now()
	res, err := sq.Insert("ingestion_logs").
		Columns("source_id", "topic_id", "status", "message", "items_fetched", "created_at").
		Values(l.SourceID, l.TopicID, string(l.Status), l.Message, l.ItemsFetched, millis(l.CreatedAt)).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

// LogStats returns how many of a source's logs since the cutoff were
// successful, and the total.
func (s *Store) LogStats(ctx context.Context, sourceID int64, since time.Time) (success, total int, err error) {
	query, args, err := sq.Select(
		"COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0)",
		"COUNT(*)",
	).From("ingestion_logs").
		Where(sq.Eq{"source_id": sourceID}).
		Where(sq.GtOrEq{"created_at": millis(since)}).ToSql()
	if err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&success, &total); err != nil {
		return 0, 0, fmt.Errorf("log stats: %w", err)
	}
	return success, total, nil
}

// LogCounts returns the number of logs per status since the cutoff.
func (s *Store) LogCounts(ctx context.Context, since time.Time) (map[model.LogStatus]int, error) {
	query, args, err := sq.Select("status", "COUNT(*)").From("ingestion_logs").
		Where(sq.GtOrEq{"created_at": millis(since)}).
		GroupBy("status").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("log counts: %w", err)
	}
	defer rows.Close()

	out := map[model.LogStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.LogStatus(status)] = n
	}
	return out, rows.Err()
}

// ListLogs returns the newest logs for a topic/source pair. Zero ids match
// any topic or source.
func (s *Store) ListLogs(ctx context.Context, sourceID, topicID int64, limit int) ([]model.IngestionLog, error) {
	q := sq.Select("id", "source_id", "topic_id", "status", "message", "items_fetched", "created_at").
		From("ingestion_logs").OrderBy("created_at DESC", "id DESC")
	if sourceID != 0 {
		q = q.Where(sq.Eq{"source_id": sourceID})
	}
	if topicID != 0 {
		q = q.Where(sq.Eq{"topic_id": topicID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var logs []model.IngestionLog
	for rows.Next() {
		var l model.IngestionLog
		var status string
		var created int64
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TopicID, &status, &l.Message, &l.ItemsFetched, &created); err != nil {
			return nil, err
		}
		l.Status = model.LogStatus(status)
		l.CreatedAt = fromMillis(created)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteLogsBefore removes ingestion logs created before cutoff.
func (s *Store) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := sq.Delete("ingestion_logs").Where(sq.Lt{"created_at": millis(cutoff)}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return res.RowsAffected()
}

// InsertSummary appends a summary and sets its ID and CreatedAt.
func (s *Store) InsertSummary(ctx context.Context, sum *model.Summary) error {
	sum.CreatedAt = s.now()
	used := sum.SourcesUsed
	if used == nil {
		used = []string{}
	}
	b, err := json.Marshal(used)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	res, err := sq.Insert("summaries").
		Columns("topic_id", "content", "sources_used", "item_count", "created_at").
		Values(sum.TopicID, sum.Content, string(b), sum.ItemCount, millis(sum.CreatedAt)).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	sum.ID, _ = res.LastInsertId()
	return nil
}

// LatestSummary returns the newest summary for a topic, or nil if none.
func (s *Store) LatestSummary(ctx context.Context, topicID int64) (*model.Summary, error) {
	query, args, err := sq.Select("id", "topic_id", "content", "sources_used", "item_count", "created_at").
		From("summaries").Where(sq.Eq{"topic_id": topicID}).
		OrderBy("created_at DESC", "id DESC").Limit(1).ToSql()
	if err != nil {
		return nil, err
	}

	var (
		sum     model.Summary
		used    string
		created int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&sum.ID, &sum.TopicID, &sum.Content, &used, &sum.ItemCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	if err := json.Unmarshal([]byte(used), &sum.SourcesUsed); err != nil {
		sum.SourcesUsed = []string{}
	}
	sum.CreatedAt = fromMillis(created)
	return &sum, nil
}

// CountSummaries returns the number of stored summaries.
func (s *Store) CountSummaries(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM summaries").Scan(&n)
	return n, err
}
