package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/adapter"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/ingest"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/store"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/summarizer"
	"github.com/RobinCoderZhao/topicdigest/pkg/scraper"
	"github.com/RobinCoderZhao/topicdigest/pkg/storage"
)

const feedA = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>A</title>
<item><title>Go 1.30 released with new generics features</title><link>https://a.example/1</link><guid>a-1</guid><description>Release notes for the new version.</description></item>
<item><title>Profiling services in production</title><link>https://a.example/2</link><guid>a-2</guid></item>
<item><title>Why the scheduler matters</title><link>https://a.example/3</link><guid>a-3</guid></item>
</channel></rss>`

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), storage.Config{Path: filepath.Join(t.TempDir(), "pipeline.db")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addTopic(t *testing.T, s *store.Store, name string, sources ...*model.Source) model.Topic {
	t.Helper()
	ctx := context.Background()
	topic := model.Topic{Name: name, Enabled: true}
	if err := s.UpsertTopic(ctx, &topic); err != nil {
		t.Fatal(err)
	}
	ids := []int64{}
	for _, src := range sources {
		if err := s.UpsertSource(ctx, src); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, src.ID)
	}
	if err := s.SetTopicSources(ctx, topic.ID, ids); err != nil {
		t.Fatal(err)
	}
	return topic
}

func TestRefreshTopic_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			w.Write([]byte(feedA))
		default:
			http.Error(w, "down", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	st := newStore(t)
	a := &model.Source{Name: "A", Type: model.SourceFeed, URL: srv.URL + "/a.xml", Weight: 0.9, Enabled: true}
	b := &model.Source{Name: "B", Type: model.SourceAPI, URL: srv.URL + "/b", Weight: 0.5, Enabled: true}
	topic := addTopic(t, st, "tech", a, b)

	reg := adapter.NewRegistry(scraper.New(scraper.Options{Timeout: 5 * time.Second}, nil), adapter.Options{MaxItems: 10}, nil)
	p := New(st, ingest.NewRunner(reg, st, 10, nil), summarizer.New(nil, nil), Options{}, nil)

	res, err := p.RefreshTopic(ctx, topic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Saved != 3 || !res.Summarized {
		t.Fatalf("unexpected result %+v", res)
	}

	items, err := st.LatestItems(ctx, topic.ID, 0)
	if err != nil || len(items) != 3 {
		t.Fatalf("expected 3 stored items, got %d (%v)", len(items), err)
	}

	logsA, _ := st.ListLogs(ctx, a.ID, topic.ID, 0)
	logsB, _ := st.ListLogs(ctx, b.ID, topic.ID, 0)
	if len(logsA) != 1 || logsA[0].Status != model.StatusSuccess {
		t.Errorf("expected one success log for A, got %+v", logsA)
	}
	if len(logsB) != 1 || logsB[0].Status != model.StatusError {
		t.Errorf("expected one error log for B, got %+v", logsB)
	}

	sum, err := st.LatestSummary(ctx, topic.ID)
	if err != nil || sum == nil {
		t.Fatalf("expected a summary, got %v, %v", sum, err)
	}
	if !slices.Equal(sum.SourcesUsed, []string{"A"}) || sum.ItemCount != 3 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

type countingIngester struct {
	calls atomic.Int64
	saved int
}

func (c *countingIngester) Run(ctx context.Context, src model.Source, topicID int64) int {
	c.calls.Add(1)
	return c.saved
}

type fakeSummarizer struct {
	panicOn string
	calls   int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, ranked []model.ContentItem, topic model.Topic) (string, bool) {
	f.calls++
	if topic.Name == f.panicOn {
		panic("backend exploded")
	}
	if len(ranked) == 0 {
		return "", false
	}
	return "digest", true
}

func TestScrapeTopic_SkipsMissingAndDisabled(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	topic := addTopic(t, st, "off", &model.Source{Name: "s", Type: model.SourceFeed, Enabled: true, Weight: 1})
	topic.Enabled = false
	if err := st.UpsertTopic(ctx, &topic); err != nil {
		t.Fatal(err)
	}

	ing := &countingIngester{saved: 1}
	p := New(st, ing, &fakeSummarizer{}, Options{}, nil)
	for _, id := range []int64{topic.ID, 999} {
		n, err := p.ScrapeTopic(ctx, id)
		if err != nil || n != 0 {
			t.Fatalf("topic %d: got %d, %v", id, n, err)
		}
	}
	if ing.calls.Load() != 0 {
		t.Fatal("ingester must not run for skipped topics")
	}
}

func TestScrapeTopic_SumsAcrossSources(t *testing.T) {
	st := newStore(t)
	var sources []*model.Source
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		sources = append(sources, &model.Source{Name: name, Type: model.SourceFeed, Enabled: true, Weight: 1})
	}
	topic := addTopic(t, st, "many", sources...)

	ing := &countingIngester{saved: 2}
	p := New(st, ing, &fakeSummarizer{}, Options{Workers: 2}, nil)
	n, err := p.ScrapeTopic(context.Background(), topic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 12 || ing.calls.Load() != 6 {
		t.Fatalf("expected 12 saved over 6 runs, got %d over %d", n, ing.calls.Load())
	}
}

func TestSummarizeTopic_NoContent(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	topic := addTopic(t, st, "empty")
	sum := &fakeSummarizer{}
	p := New(st, &countingIngester{}, sum, Options{}, nil)

	got, err := p.SummarizeTopic(ctx, topic.ID)
	if err != nil || got != nil {
		t.Fatalf("expected no summary, got %v, %v", got, err)
	}
	if sum.calls != 0 {
		t.Fatal("summarizer must not run without items")
	}
	if n, _ := st.CountSummaries(ctx); n != 0 {
		t.Fatalf("expected no stored summaries, got %d", n)
	}
}

func saveItem(t *testing.T, st *store.Store, topic model.Topic, src *model.Source, id string) {
	t.Helper()
	_, err := st.SaveItems(context.Background(), src.ID, topic.ID, []model.ContentItem{{ExternalID: id, Title: id}})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSummarizeAll_IsolatesTopicFailures(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	s1 := &model.Source{Name: "s1", Type: model.SourceFeed, Enabled: true, Weight: 1}
	s2 := &model.Source{Name: "s2", Type: model.SourceFeed, Enabled: true, Weight: 1}
	bad := addTopic(t, st, "bad", s1)
	good := addTopic(t, st, "good", s2)
	saveItem(t, st, bad, s1, "x")
	saveItem(t, st, good, s2, "y")

	p := New(st, &countingIngester{}, &fakeSummarizer{panicOn: "bad"}, Options{}, nil)
	results, err := p.SummarizeAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}

	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Topic] = r
	}
	if byName["bad"].Error == "" || byName["bad"].Summarized {
		t.Errorf("expected bad topic to fail, got %+v", byName["bad"])
	}
	if !byName["good"].Summarized {
		t.Errorf("expected good topic to be summarized, got %+v", byName["good"])
	}
	if sum, _ := st.LatestSummary(ctx, good.ID); sum == nil || sum.Content != "digest" {
		t.Errorf("expected stored summary for good topic, got %+v", sum)
	}
}

func TestSummarizeTopic_IgnoresUnlinkedSources(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	a := &model.Source{Name: "A", Type: model.SourceFeed, Enabled: true, Weight: 1}
	b := &model.Source{Name: "B", Type: model.SourceAPI, Enabled: true, Weight: 1}
	tech := addTopic(t, st, "tech", a, b)
	saveItem(t, st, tech, a, "a-1")
	saveItem(t, st, tech, b, "b-1")

	if err := st.SetTopicSources(ctx, tech.ID, []int64{a.ID}); err != nil {
		t.Fatal(err)
	}

	p := New(st, &countingIngester{}, &fakeSummarizer{}, Options{}, nil)
	sum, err := p.SummarizeTopic(ctx, tech.ID)
	if err != nil || sum == nil {
		t.Fatalf("expected a summary, got %v, %v", sum, err)
	}
	if !slices.Equal(sum.SourcesUsed, []string{"A"}) || sum.ItemCount != 1 {
		t.Fatalf("expected only the linked source, got sources=%v items=%d", sum.SourcesUsed, sum.ItemCount)
	}
}

type fakePublisher struct {
	err    error
	topics []string
}

func (f *fakePublisher) Publish(ctx context.Context, topic model.Topic, sum *model.Summary) error {
	f.topics = append(f.topics, topic.Name)
	return f.err
}

func TestSummarizeTopic_Publishes(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	src := &model.Source{Name: "s", Type: model.SourceFeed, Enabled: true, Weight: 1}
	topic := addTopic(t, st, "tech", src)
	saveItem(t, st, topic, src, "x")

	pub := &fakePublisher{err: errors.New("webhook down")}
	p := New(st, &countingIngester{}, &fakeSummarizer{}, Options{}, nil)
	p.SetPublisher(pub)

	sum, err := p.SummarizeTopic(ctx, topic.ID)
	if err != nil || sum == nil {
		t.Fatalf("publish failure must not fail the summary: %v, %v", sum, err)
	}
	if !slices.Equal(pub.topics, []string{"tech"}) {
		t.Fatalf("expected one publish for tech, got %v", pub.topics)
	}
	if n, _ := st.CountSummaries(ctx); n != 1 {
		t.Fatalf("expected stored summary, got %d", n)
	}
}

func TestBootstrap_RunsOnlyWithoutSummaries(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	src := &model.Source{Name: "s", Type: model.SourceFeed, Enabled: true, Weight: 1}
	topic := addTopic(t, st, "tech", src)
	saveItem(t, st, topic, src, "x")

	ing := &countingIngester{}
	p := New(st, ing, &fakeSummarizer{}, Options{}, nil)

	ran, err := p.Bootstrap(ctx)
	if err != nil || !ran {
		t.Fatalf("expected initial refresh, got %v, %v", ran, err)
	}
	if ing.calls.Load() != 1 {
		t.Fatalf("expected one ingestion, got %d", ing.calls.Load())
	}
	ran, err = p.Bootstrap(ctx)
	if err != nil || ran {
		t.Fatalf("expected no refresh once a summary exists, got %v, %v", ran, err)
	}
}

func TestCleanupAndStatus(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	src := &model.Source{Name: "s", Type: model.SourceFeed, Enabled: true, Weight: 1}
	topic := addTopic(t, st, "tech", src)

	now := time.Now().UTC()
	st.SetClock(func() time.Time { return now.Add(-10 * 24 * time.Hour) })
	saveItem(t, st, topic, src, "old")
	st.SetClock(func() time.Time { return now })
	saveItem(t, st, topic, src, "new")
	if err := st.InsertLog(ctx, &model.IngestionLog{SourceID: src.ID, TopicID: topic.ID, Status: model.StatusError}); err != nil {
		t.Fatal(err)
	}

	p := New(st, &countingIngester{}, &fakeSummarizer{}, Options{}, nil)
	p.SetClock(func() time.Time { return now })

	res, err := p.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Items != 1 || res.Logs != 0 {
		t.Fatalf("unexpected cleanup %+v", res)
	}

	status, err := p.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Topics != 1 || status.Sources != 1 || status.Errors24h != 1 || status.Success24h != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}
