package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/llm"
)

type stubClient struct {
	content string
	err     error
	prompts []string
}

func (s *stubClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.prompts = append(s.prompts, req.Messages[0].Content)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content, Model: "stub"}, nil
}

func (s *stubClient) Provider() llm.Provider { return "stub" }

type failingProvider struct{}

func (failingProvider) Get() (llm.Client, error) { return nil, llm.ErrNotConfigured }

var topic = model.Topic{Name: "tech", DisplayName: "Tech News"}

func items() []model.ContentItem {
	a := &model.Source{Name: "a", DisplayName: "Alpha"}
	b := &model.Source{Name: "b"}
	return []model.ContentItem{
		{Title: "First", URL: "https://a/1", Source: a},
		{Title: "Second", Source: b},
		{Title: "", URL: "https://a/3", Source: a},
		{Title: "Orphan"},
	}
}

func TestSummarize_UsesBackend(t *testing.T) {
	client := &stubClient{content: "  A narrative.  "}
	s := New(llm.Ready(client), nil)

	text, ok := s.Summarize(context.Background(), items(), topic)
	if !ok || text != "A narrative." {
		t.Fatalf("got %q, %v", text, ok)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("expected one backend call, got %d", len(client.prompts))
	}
	p := client.prompts[0]
	if !strings.Contains(p, "[1] Source: Alpha\nTitle: First\n") {
		t.Errorf("prompt missing first item block:\n%s", p)
	}
	if !strings.Contains(p, "\n---\n[2] Source: b\nTitle: Second\n") {
		t.Errorf("prompt missing separator and second item:\n%s", p)
	}
}

func TestSummarize_FallbackOnFailure(t *testing.T) {
	want := Fallback(items(), topic)
	cases := map[string]ClientProvider{
		"nil backend":    nil,
		"not configured": failingProvider{},
		"generate error": llm.Ready(&stubClient{err: errors.New("quota")}),
		"blank response": llm.Ready(&stubClient{content: " \n "}),
	}
	for name, backend := range cases {
		t.Run(name, func(t *testing.T) {
			text, ok := New(backend, nil).Summarize(context.Background(), items(), topic)
			if !ok {
				t.Fatal("expected ok for non-empty input")
			}
			if text != want {
				t.Fatalf("got %q, want fallback %q", text, want)
			}
		})
	}
}

func TestSummarize_EmptyInput(t *testing.T) {
	client := &stubClient{content: "never"}
	text, ok := New(llm.Ready(client), nil).Summarize(context.Background(), nil, topic)
	if ok || text != "" {
		t.Fatalf("expected empty result, got %q, %v", text, ok)
	}
	if len(client.prompts) != 0 {
		t.Fatal("backend must not be called for empty input")
	}
}

func TestFallback_Format(t *testing.T) {
	got := Fallback(items(), topic)
	want := strings.Join([]string{
		"## Tech News\n",
		"*4 items collected*\n",
		"\n**From Alpha:**",
		"- [First](https://a/1)",
		"- [Untitled](https://a/3)",
		"\n**From b:**",
		"- Second",
		"\n**From Unknown:**",
		"- Orphan",
	}, "\n")
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if again := Fallback(items(), topic); again != got {
		t.Fatal("fallback is not deterministic")
	}
}

func TestFallback_CapsPerSource(t *testing.T) {
	src := &model.Source{Name: "busy"}
	var in []model.ContentItem
	for i := range 8 {
		in = append(in, model.ContentItem{Title: fmt.Sprintf("t%d", i), Source: src})
	}
	got := Fallback(in, model.Topic{Name: "x"})
	if n := strings.Count(got, "\n- "); n != 5 {
		t.Fatalf("expected 5 listed items, got %d:\n%s", n, got)
	}
	if !strings.Contains(got, "*8 items collected*") {
		t.Fatalf("count should reflect all items:\n%s", got)
	}
}

func TestPrompt_LimitsItemsAndContent(t *testing.T) {
	var in []model.ContentItem
	for i := range 20 {
		in = append(in, model.ContentItem{Title: fmt.Sprintf("t%d", i), Content: strings.Repeat("é", 600)})
	}
	p := Prompt(in, topic)
	if strings.Contains(p, "[16]") || !strings.Contains(p, "[15]") {
		t.Fatal("expected exactly 15 items in prompt")
	}
	if !strings.Contains(p, "Content: "+strings.Repeat("é", 500)+"...\n") {
		t.Fatal("expected content truncated to 500 characters")
	}
	if !strings.Contains(p, `"Tech News"`) {
		t.Fatal("expected topic display name")
	}
}
