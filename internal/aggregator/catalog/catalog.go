// Package catalog keeps the topic and source definitions in YAML files and
// syncs them with the store.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/RobinCoderZhao/topicdigest/internal/aggregator/model"
)

// Topic is one entry of the topics file.
type Topic struct {
	Name         string `yaml:"name"`
	DisplayName  string `yaml:"display_name,omitempty"`
	Description  string `yaml:"description,omitempty"`
	Enabled      *bool  `yaml:"enabled,omitempty"`
	RefreshHours int    `yaml:"refresh_hours,omitempty"`
}

// Source is one entry of the sources file.
type Source struct {
	Name        string         `yaml:"name"`
	DisplayName string         `yaml:"display_name,omitempty"`
	Type        string         `yaml:"type,omitempty"`
	URL         string         `yaml:"url,omitempty"`
	Enabled     *bool          `yaml:"enabled,omitempty"`
	Weight      *float64       `yaml:"weight,omitempty"`
	Topics      []string       `yaml:"topics,omitempty"`
	Config      map[string]any `yaml:"config,omitempty"`
}

// Catalog is the full set of definitions.
type Catalog struct {
	Topics  []Topic
	Sources []Source
}

type topicsFile struct {
	Topics []Topic `yaml:"topics"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// Paths locates the catalog files.
type Paths struct {
	Topics  string `yaml:"topics" env:"TOPICS_CONFIG"`
	Sources string `yaml:"sources" env:"SOURCES_CONFIG"`
}

// DefaultPaths returns the conventional file locations.
func DefaultPaths() Paths {
	return Paths{Topics: "config/topics.yaml", Sources: "config/sources.yaml"}
}

// Load reads both files. A missing file yields no entries.
func Load(p Paths) (*Catalog, error) {
	var tf topicsFile
	if err := readYAML(p.Topics, &tf); err != nil {
		return nil, err
	}
	var sf sourcesFile
	if err := readYAML(p.Sources, &sf); err != nil {
		return nil, err
	}
	return &Catalog{Topics: tf.Topics, Sources: sf.Sources}, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return nil
}

// Save writes both files, creating parent directories as needed.
func Save(p Paths, c *Catalog) error {
	if err := writeYAML(p.Topics, topicsFile{Topics: c.Topics}); err != nil {
		return err
	}
	return writeYAML(p.Sources, sourcesFile{Sources: c.Sources})
}

func writeYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode catalog %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode catalog %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}
	return nil
}

// Store is the persistence the catalog syncs with.
type Store interface {
	UpsertTopic(ctx context.Context, t *model.Topic) error
	UpsertSource(ctx context.Context, src *model.Source) error
	GetTopicByName(ctx context.Context, name string) (*model.Topic, error)
	SetSourceTopics(ctx context.Context, sourceID int64, topicIDs []int64) error
	ListTopics(ctx context.Context, enabledOnly bool) ([]model.Topic, error)
	ListSources(ctx context.Context, enabledOnly bool) ([]model.Source, error)
	SourceTopicNames(ctx context.Context) (map[int64][]string, error)
}

// SyncResult counts what Sync wrote.
type SyncResult struct {
	Topics  int `json:"topics"`
	Sources int `json:"sources"`
	Links   int `json:"links"`
}

// Sync creates missing topics and sources, updates existing ones by name
// and replaces each listed source's topic associations. Topics are synced
// first so sources can reference them.
func Sync(ctx context.Context, st Store, c *Catalog, logger *slog.Logger) (SyncResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "catalog")

	var res SyncResult
	for _, entry := range c.Topics {
		if entry.Name == "" {
			logger.Warn("skipping topic without name")
			continue
		}
		t := entry.model()
		if err := st.UpsertTopic(ctx, &t); err != nil {
			return res, err
		}
		res.Topics++
	}

	for _, entry := range c.Sources {
		if entry.Name == "" {
			logger.Warn("skipping source without name")
			continue
		}
		src := entry.model()
		if err := st.UpsertSource(ctx, &src); err != nil {
			return res, err
		}
		res.Sources++

		var ids []int64
		for _, name := range entry.Topics {
			t, err := st.GetTopicByName(ctx, name)
			if err != nil {
				return res, err
			}
			if t == nil {
				logger.Warn("source references unknown topic", "source", src.Name, "topic", name)
				continue
			}
			ids = append(ids, t.ID)
		}
		if err := st.SetSourceTopics(ctx, src.ID, ids); err != nil {
			return res, err
		}
		res.Links += len(ids)
	}

	logger.Info("catalog synced", "topics", res.Topics, "sources", res.Sources, "links", res.Links)
	return res, nil
}

func (e Topic) model() model.Topic {
	t := model.Topic{
		Name:         e.Name,
		DisplayName:  e.DisplayName,
		Description:  e.Description,
		Enabled:      e.Enabled == nil || *e.Enabled,
		RefreshHours: e.RefreshHours,
	}
	if t.DisplayName == "" {
		t.DisplayName = e.Name
	}
	return t
}

func (e Source) model() model.Source {
	src := model.Source{
		Name:        e.Name,
		DisplayName: e.DisplayName,
		Type:        model.SourceType(e.Type),
		URL:         e.URL,
		Enabled:     e.Enabled == nil || *e.Enabled,
		Weight:      1.0,
		Config:      model.SourceConfig(e.Config),
	}
	if src.DisplayName == "" {
		src.DisplayName = e.Name
	}
	if src.Type == "" {
		src.Type = model.SourceAPI
	}
	if e.Weight != nil {
		src.Weight = *e.Weight
	}
	return src
}

// Export reads every topic and source from the store.
func Export(ctx context.Context, st Store) (*Catalog, error) {
	topics, err := st.ListTopics(ctx, false)
	if err != nil {
		return nil, err
	}
	sources, err := st.ListSources(ctx, false)
	if err != nil {
		return nil, err
	}
	links, err := st.SourceTopicNames(ctx)
	if err != nil {
		return nil, err
	}

	c := &Catalog{}
	for _, t := range topics {
		c.Topics = append(c.Topics, Topic{
			Name:         t.Name,
			DisplayName:  t.DisplayName,
			Description:  t.Description,
			Enabled:      &t.Enabled,
			RefreshHours: t.RefreshHours,
		})
	}
	for _, s := range sources {
		c.Sources = append(c.Sources, Source{
			Name:        s.Name,
			DisplayName: s.DisplayName,
			Type:        string(s.Type),
			URL:         s.URL,
			Enabled:     &s.Enabled,
			Weight:      &s.Weight,
			Topics:      links[s.ID],
			Config:      map[string]any(s.Config),
		})
	}
	return c, nil
}
