package store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) (model.Topic, model.Source) {
	t.Helper()
	ctx := context.Background()
	topic := model.Topic{Name: "tech", DisplayName: "Tech", Enabled: true}
	if err := s.UpsertTopic(ctx, &topic); err != nil {
		t.Fatal(err)
	}
	src := model.Source{Name: "blog", DisplayName: "Blog", Type: model.SourceFeed, URL: "https://b", Enabled: true, Weight: 0.8}
	if err := s.UpsertSource(ctx, &src); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTopicSources(ctx, topic.ID, []int64{src.ID}); err != nil {
		t.Fatal(err)
	}
	return topic, src
}

func TestUpsert_UpdatesByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src := model.Source{Name: "hn", Type: model.SourceAPI, Enabled: true, Weight: 1, Config: model.SourceConfig{"items_path": "hits"}}
	if err := s.UpsertSource(ctx, &src); err != nil {
		t.Fatal(err)
	}
	firstID := src.ID

	again := model.Source{Name: "hn", DisplayName: "Hacker News", Type: model.SourceFeed, Enabled: false, Weight: 0.5}
	if err := s.UpsertSource(ctx, &again); err != nil {
		t.Fatal(err)
	}
	if again.ID != firstID {
		t.Fatalf("expected same id %d, got %d", firstID, again.ID)
	}

	got, err := s.GetSource(ctx, firstID)
	if err != nil || got == nil {
		t.Fatalf("GetSource: %v, %v", got, err)
	}
	if got.DisplayName != "Hacker News" || got.Type != model.SourceFeed || got.Enabled || got.Weight != 0.5 {
		t.Fatalf("expected updated source, got %+v", got)
	}

	missing, err := s.GetSource(ctx, 999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing source, got %v, %v", missing, err)
	}
}

func TestSourcesForTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	topic, blog := seed(t, s)

	off := model.Source{Name: "off", Enabled: false, Weight: 1}
	s.UpsertSource(ctx, &off)
	other := model.Source{Name: "other", Enabled: true, Weight: 1}
	s.UpsertSource(ctx, &other)

	if err := s.SetTopicSources(ctx, topic.ID, []int64{blog.ID, off.ID}); err != nil {
		t.Fatal(err)
	}

	all, err := s.SourcesForTopic(ctx, topic.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 linked sources, got %d", len(all))
	}
	enabled, _ := s.SourcesForTopic(ctx, topic.ID, true)
	if len(enabled) != 1 || enabled[0].Name != "blog" {
		t.Fatalf("expected only blog, got %+v", enabled)
	}

	names, err := s.TopicSourceNames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names[topic.ID]) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}

func TestSaveItems_Dedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	topic, src := seed(t, s)

	items := []model.ContentItem{
		{ExternalID: "a", Title: "A", URL: "https://b/a"},
		{URL: "https://b/b", Title: "B"},
		{Title: "no key"},
	}

	n, err := s.SaveItems(ctx, src.ID, topic.ID, items)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 saved, got %d", n)
	}

	n, err = s.SaveItems(ctx, src.ID, topic.ID, items)
	if err != nil {
		t.Fatal(err)
	}
	// only the keyless item is new again
	if n != 1 {
		t.Fatalf("expected 1 saved on second pass, got %d", n)
	}

	exists, err := s.ItemExists(ctx, src.ID, model.ContentItem{URL: "https://b/b"})
	if err != nil || !exists {
		t.Fatalf("expected url key to exist, got %v, %v", exists, err)
	}
	exists, _ = s.ItemExists(ctx, src.ID, model.ContentItem{URL: "https://b/a"})
	if exists {
		t.Fatal("external id takes precedence over url as key")
	}
	exists, _ = s.ItemExists(ctx, src.ID, model.ContentItem{Title: "no key"})
	if exists {
		t.Fatal("an item without a key never exists")
	}
}

func TestSaveItems_IDAndURLKeysAreSeparate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	topic, src := seed(t, s)

	if n, err := s.SaveItems(ctx, src.ID, topic.ID, []model.ContentItem{{ExternalID: "https://b/x", Title: "by id"}}); err != nil || n != 1 {
		t.Fatalf("expected first item saved, got %d, %v", n, err)
	}
	n, err := s.SaveItems(ctx, src.ID, topic.ID, []model.ContentItem{{URL: "https://b/x", Title: "by url"}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("a url key must not collide with an equal external id, saved %d", n)
	}
}

func TestSaveItems_ConcurrentWritersInsertOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	topic, src := seed(t, s)

	const writers = 8
	item := []model.ContentItem{{ExternalID: "shared", Title: "shared"}}
	var wg sync.WaitGroup
	var total atomic.Int64
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.SaveItems(ctx, src.ID, topic.ID, item)
			if err != nil {
				errs <- err
				return
			}
			total.Add(int64(n))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if total.Load() != 1 {
		t.Fatalf("expected exactly one writer to insert, got %d", total.Load())
	}
	counts, err := s.CountItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[topic.ID] != 1 {
		t.Fatalf("expected one stored row, got %d", counts[topic.ID])
	}
}

func TestRecentItems_OnlyLinkedSources(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	topic, src := seed(t, s)
	other := model.Source{Name: "other", Type: model.SourceFeed, Enabled: true, Weight: 1}
	if err := s.UpsertSource(ctx, &other); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTopicSources(ctx, topic.ID, []int64{src.ID, other.ID}); err != nil {
		t.Fatal(err)
	}
	s.SaveItems(ctx, src.ID, topic.ID, []model.ContentItem{{ExternalID: "a", Title: "a"}})
	s.SaveItems(ctx, other.ID, topic.ID, []model.ContentItem{{ExternalID: "b", Title: "b"}})

	if err := s.SetTopicSources(ctx, topic.ID, []int64{src.ID}); err != nil {
		t.Fatal(err)
	}
	items, err := s.RecentItems(ctx, topic.ID, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].SourceID != src.ID {
		t.Fatalf("expected only the linked source's item, got %+v", items)
	}
}

func TestRecentItems_JoinsSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	topic, src := seed(t, s)

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	s.SaveItems(ctx, src.ID, topic.ID, []model.ContentItem{{ExternalID: "old", Title: "old"}})

	s.SetClock(func() time.Time { return base.Add(time.Hour) })
	pub := base.Add(-time.Hour)
	s.SaveItems(ctx, src.ID, topic.ID, []model.ContentItem{{
		ExternalID:  "new",
		Title:       "new",
		PublishedAt: &pub,
		Metadata:    map[string]any{"score": 120},
	}})

	items, err := s.RecentItems(ctx, topic.ID, base.Add(-time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ExternalID != "new" {
		t.Fatalf("expected newest first, got %+v", items)
	}
	if items[0].Source == nil || items[0].Source.Label() != "Blog" || items[0].Source.Weight != 0.8 {
		t.Fatalf("expected joined source, got %+v", items[0].Source)
	}
	if items[0].Metadata["score"] != float64(120) {
		t.Fatalf("unexpected metadata %v", items[0].Metadata)
	}
	if items[0].PublishedAt == nil || !items[0].PublishedAt.Equal(pub) {
		t.Fatalf("unexpected published time %v", items[0].PublishedAt)
	}

	recent, _ := s.RecentItems(ctx, topic.ID, base, 10)
	if len(recent) != 1 {
		t.Fatalf("expected only the item after cutoff, got %d", len(recent))
	}
}

func TestLogStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	topic, src := seed(t, s)

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now.AddDate(0, 0, -10) })
	s.InsertLog(ctx, &model.IngestionLog{SourceID: src.ID, TopicID: topic.ID, Status: model.StatusError})

	s.SetClock(func() time.Time { return now })
	for _, st := range []model.LogStatus{model.StatusSuccess, model.StatusSuccess, model.StatusError} {
		if err := s.InsertLog(ctx, &model.IngestionLog{SourceID: src.ID, TopicID: topic.ID, Status: st}); err != nil {
			t.Fatal(err)
		}
	}

	success, total, err := s.LogStats(ctx, src.ID, now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatal(err)
	}
	if success != 2 || total != 3 {
		t.Fatalf("expected 2/3, got %d/%d", success, total)
	}

	counts, err := s.LogCounts(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if counts[model.StatusSuccess] != 2 || counts[model.StatusError] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	deleted, err := s.DeleteLogsBefore(ctx, now.AddDate(0, 0, -7))
	if err != nil || deleted != 1 {
		t.Fatalf("expected 1 deleted log, got %d, %v", deleted, err)
	}
}

func TestLatestScrapedAtAndRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	topic, src := seed(t, s)

	got, err := s.LatestScrapedAt(ctx, src.ID)
	if err != nil || got != nil {
		t.Fatalf("expected nil for no items, got %v, %v", got, err)
	}

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return old })
	s.SaveItems(ctx, src.ID, topic.ID, []model.ContentItem{{ExternalID: "1"}})
	fresh := old.AddDate(0, 0, 8)
	s.SetClock(func() time.Time { return fresh })
	s.SaveItems(ctx, src.ID, topic.ID, []model.ContentItem{{ExternalID: "2"}})

	got, _ = s.LatestScrapedAt(ctx, src.ID)
	if got == nil || !got.Equal(fresh) {
		t.Fatalf("expected %v, got %v", fresh, got)
	}

	n, err := s.DeleteItemsBefore(ctx, fresh.AddDate(0, 0, -7))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged item, got %d, %v", n, err)
	}
	counts, _ := s.CountItems(ctx)
	if counts[topic.ID] != 1 {
		t.Fatalf("expected 1 remaining item, got %v", counts)
	}
}

func TestSummaries_NewestWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	topic, _ := seed(t, s)

	none, err := s.LatestSummary(ctx, topic.ID)
	if err != nil || none != nil {
		t.Fatalf("expected no summary, got %v, %v", none, err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	s.InsertSummary(ctx, &model.Summary{TopicID: topic.ID, Content: "first", SourcesUsed: []string{"blog"}, ItemCount: 1})
	s.SetClock(func() time.Time { return base.Add(time.Minute) })
	s.InsertSummary(ctx, &model.Summary{TopicID: topic.ID, Content: "second", ItemCount: 2})

	latest, err := s.LatestSummary(ctx, topic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Content != "second" || latest.ItemCount != 2 || len(latest.SourcesUsed) != 0 {
		t.Fatalf("unexpected latest summary %+v", latest)
	}
	if n, _ := s.CountSummaries(ctx); n != 2 {
		t.Fatalf("expected 2 summaries, got %d", n)
	}
}
