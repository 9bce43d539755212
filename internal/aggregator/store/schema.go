package store

// Schema is the SQLite schema. Timestamps are unix milliseconds (UTC).
// A NULL dedup_key never conflicts, so items without a key are always new.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT NOT NULL UNIQUE,
    display_name  TEXT NOT NULL DEFAULT '',
    source_type   TEXT NOT NULL DEFAULT 'api',
    url           TEXT NOT NULL DEFAULT '',
    enabled       INTEGER NOT NULL DEFAULT 1,
    weight        REAL NOT NULL DEFAULT 1.0,
    config        TEXT NOT NULL DEFAULT '{}',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS topics (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    name           TEXT NOT NULL UNIQUE,
    display_name   TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    enabled        INTEGER NOT NULL DEFAULT 1,
    refresh_hours  INTEGER NOT NULL DEFAULT 4,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS source_topics (
    source_id  INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    topic_id   INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    PRIMARY KEY (source_id, topic_id)
);

CREATE TABLE IF NOT EXISTS content_items (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id     INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    topic_id      INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    external_id   TEXT NOT NULL DEFAULT '',
    dedup_key     TEXT,
    title         TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    author        TEXT NOT NULL DEFAULT '',
    published_at  INTEGER,
    scraped_at    INTEGER NOT NULL,
    metadata      TEXT NOT NULL DEFAULT '{}'
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_content_dedup ON content_items(source_id, dedup_key);
CREATE INDEX IF NOT EXISTS idx_content_topic_scraped ON content_items(topic_id, scraped_at);
CREATE INDEX IF NOT EXISTS idx_content_source_scraped ON content_items(source_id, scraped_at);

CREATE TABLE IF NOT EXISTS summaries (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id      INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    content       TEXT NOT NULL,
    sources_used  TEXT NOT NULL DEFAULT '[]',
    item_count    INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_summaries_topic_created ON summaries(topic_id, created_at);

CREATE TABLE IF NOT EXISTS ingestion_logs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id      INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    topic_id       INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    status         TEXT NOT NULL,
    message        TEXT NOT NULL DEFAULT '',
    items_fetched  INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_source_created ON ingestion_logs(source_id, created_at);
CREATE INDEX IF NOT EXISTS idx_logs_created ON ingestion_logs(created_at);
`
