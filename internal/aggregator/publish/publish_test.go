package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/notify"
)

type recordingSender struct {
	channels []notify.Channel
	sent     []notify.Message
	err      error
}

func (r *recordingSender) Channels() []notify.Channel { return r.channels }

func (r *recordingSender) SendAll(ctx context.Context, msg notify.Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestMessage(t *testing.T) {
	topic := model.Topic{Name: "tech news", DisplayName: "Tech"}
	sum := &model.Summary{Content: "## Tech\nbody"}

	msg := Message(topic, sum, "https://digest.example.com")
	if msg.Title != "Tech digest" || msg.Body != sum.Content || msg.Format != "markdown" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.URL != "https://digest.example.com/api/content/tech%20news" {
		t.Fatalf("unexpected url %q", msg.URL)
	}

	msg = Message(model.Topic{Name: "quotes"}, sum, "")
	if msg.Title != "quotes digest" || msg.URL != "" {
		t.Fatalf("unexpected message without display name %+v", msg)
	}
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	topic := model.Topic{Name: "tech"}
	sum := &model.Summary{Content: "x"}

	idle := &recordingSender{}
	if err := New(idle, "", nil).Publish(ctx, topic, sum); err != nil || len(idle.sent) != 0 {
		t.Fatalf("expected no send without channels, got %v %v", idle.sent, err)
	}

	s := &recordingSender{channels: []notify.Channel{notify.ChannelWebhook}}
	p := New(s, "http://localhost:8080/", nil)
	if !p.Enabled() {
		t.Fatal("expected publisher enabled")
	}
	if err := p.Publish(ctx, topic, sum); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 1 || s.sent[0].URL != "http://localhost:8080/api/content/tech" {
		t.Fatalf("unexpected sends %+v", s.sent)
	}

	s.err = errors.New("down")
	if err := p.Publish(ctx, topic, sum); err == nil {
		t.Fatal("expected send error to surface")
	}
	if err := New(nil, "", nil).Publish(ctx, topic, sum); err != nil {
		t.Fatal(err)
	}
}
