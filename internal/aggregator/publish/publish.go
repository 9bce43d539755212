// Package publish announces freshly generated summaries on the configured
// notification channels.
package publish

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
	"github.com/RobinCoderZhao/topicdigest/pkg/notify"
)

// Sender is the subset of notify.Dispatcher the publisher uses.
type Sender interface {
	Channels() []notify.Channel
	SendAll(ctx context.Context, msg notify.Message) error
}

// Publisher turns summaries into notification messages.
type Publisher struct {
	sender   Sender
	linkBase string
	logger   *slog.Logger
}

// New creates a publisher. linkBase is the public address of the API; when
// set, messages link to the topic's content endpoint.
func New(sender Sender, linkBase string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		sender:   sender,
		linkBase: strings.TrimRight(linkBase, "/"),
		logger:   logger.With("component", "publish"),
	}
}

// Enabled reports whether any channel is registered.
func (p *Publisher) Enabled() bool {
	return p.sender != nil && len(p.sender.Channels()) > 0
}

// Publish sends the summary to every channel. Delivery is best effort.
func (p *Publisher) Publish(ctx context.Context, topic model.Topic, sum *model.Summary) error {
	if !p.Enabled() || sum == nil {
		return nil
	}
	msg := Message(topic, sum, p.linkBase)
	if err := p.sender.SendAll(ctx, msg); err != nil {
		p.logger.Warn("publish summary failed", "topic", topic.Name, "error", err)
		return err
	}
	return nil
}

// Message builds the notification for one summary.
func Message(topic model.Topic, sum *model.Summary, linkBase string) notify.Message {
	title := topic.DisplayName
	if title == "" {
		title = topic.Name
	}
	msg := notify.Message{
		Title:  title + " digest",
		Body:   sum.Content,
		Format: "markdown",
	}
	if linkBase != "" {
		msg.URL = linkBase + "/api/content/" + url.PathEscape(topic.Name)
	}
	return msg
}
