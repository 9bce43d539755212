package catalog

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/store"
	"github.com/RobinCoderZhao/topicdigest/pkg/storage"
)

const topicsYAML = `topics:
  - name: tech
    display_name: Tech News
    description: Technology headlines
  - name: quotes
    enabled: false
    refresh_hours: 12
`

const sourcesYAML = `sources:
  - name: hackernews
    display_name: Hacker News
    type: api
    url: https://hacker-news.firebaseio.com/v0
    weight: 0.9
    topics: [tech, missing]
  - name: lobsters
    type: rss
    url: https://lobste.rs/rss
    topics: [tech]
    config:
      items_path: data.items
      headers:
        Accept: application/rss+xml
`

func writeCatalog(t *testing.T) Paths {
	t.Helper()
	dir := t.TempDir()
	p := Paths{Topics: filepath.Join(dir, "topics.yaml"), Sources: filepath.Join(dir, "sources.yaml")}
	if err := os.WriteFile(p.Topics, []byte(topicsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p.Sources, []byte(sourcesYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), storage.Config{Path: filepath.Join(t.TempDir(), "catalog.db")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoad_MissingFilesAreEmpty(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(Paths{Topics: filepath.Join(dir, "a.yaml"), Sources: filepath.Join(dir, "b.yaml")})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Topics) != 0 || len(c.Sources) != 0 {
		t.Fatalf("expected empty catalog, got %+v", c)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	p := writeCatalog(t)
	if err := os.WriteFile(p.Sources, []byte("sources: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSync_AppliesDefaultsAndLinks(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	c, err := Load(writeCatalog(t))
	if err != nil {
		t.Fatal(err)
	}

	res, err := Sync(ctx, st, c, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Topics != 2 || res.Sources != 2 || res.Links != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	quotes, _ := st.GetTopicByName(ctx, "quotes")
	if quotes == nil || quotes.Enabled || quotes.RefreshHours != 12 || quotes.DisplayName != "quotes" {
		t.Fatalf("unexpected quotes topic %+v", quotes)
	}

	lobsters, _ := st.GetSourceByName(ctx, "lobsters")
	if lobsters == nil || !lobsters.Enabled || lobsters.Weight != 1.0 || lobsters.DisplayName != "lobsters" {
		t.Fatalf("unexpected defaults %+v", lobsters)
	}
	if lobsters.Config.ItemsPath() != "data.items" || lobsters.Config.StringMap("headers")["Accept"] != "application/rss+xml" {
		t.Fatalf("config not carried through: %+v", lobsters.Config)
	}

	tech, _ := st.GetTopicByName(ctx, "tech")
	sources, err := st.SourcesForTopic(ctx, tech.ID, false)
	if err != nil || len(sources) != 2 {
		t.Fatalf("expected both sources linked to tech, got %v, %v", sources, err)
	}
}

func TestSync_ReplacesAssociations(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	c, _ := Load(writeCatalog(t))
	if _, err := Sync(ctx, st, c, nil); err != nil {
		t.Fatal(err)
	}

	c.Sources[1].Topics = []string{"quotes"}
	w := 0.3
	c.Sources[1].Weight = &w
	if _, err := Sync(ctx, st, c, nil); err != nil {
		t.Fatal(err)
	}

	names, err := st.SourceTopicNames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	lobsters, _ := st.GetSourceByName(ctx, "lobsters")
	if !slices.Equal(names[lobsters.ID], []string{"quotes"}) {
		t.Fatalf("expected lobsters moved to quotes, got %v", names[lobsters.ID])
	}
	if lobsters.Weight != 0.3 {
		t.Fatalf("expected weight update, got %v", lobsters.Weight)
	}
}

func TestExport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	c, _ := Load(writeCatalog(t))
	if _, err := Sync(ctx, st, c, nil); err != nil {
		t.Fatal(err)
	}

	exported, err := Export(ctx, st)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	out := Paths{Topics: filepath.Join(dir, "nested", "topics.yaml"), Sources: filepath.Join(dir, "nested", "sources.yaml")}
	if err := Save(out, exported); err != nil {
		t.Fatal(err)
	}

	again, err := Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Topics) != 2 || len(again.Sources) != 2 {
		t.Fatalf("unexpected reloaded catalog %+v", again)
	}
	for _, s := range again.Sources {
		if s.Name == "hackernews" {
			if !slices.Equal(s.Topics, []string{"tech"}) || s.Weight == nil || *s.Weight != 0.9 {
				t.Fatalf("unexpected exported source %+v", s)
			}
		}
	}

	// the exported files seed a fresh store
	st2 := newStore(t)
	if _, err := Sync(ctx, st2, again, nil); err != nil {
		t.Fatal(err)
	}
	src, _ := st2.GetSourceByName(ctx, "lobsters")
	if src == nil || model.ParseSourceType(string(src.Type)) != model.SourceFeed {
		t.Fatalf("unexpected source after round trip %+v", src)
	}
}
