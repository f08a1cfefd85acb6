package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/target/quill/internal/domain/article"
)

// SyncConfig controls the article sync core and its change feed.
type SyncConfig struct {
	// DefaultSort is the list order used when a command does not pass one.
	DefaultSort string `env:"SYNC_DEFAULT_SORT" envDefault:"created_desc"`
	// Table is the table whose changes are subscribed to.
	Table string `env:"SYNC_TABLE" envDefault:"articles"`
	// NotifyChannel is the Postgres NOTIFY channel written by the change trigger.
	NotifyChannel string `env:"SYNC_NOTIFY_CHANNEL" envDefault:"quill_changes"`
	// Kinds restricts delivered change kinds (inserted, updated, deleted); empty means all.
	Kinds []string `env:"SYNC_FEED_KINDS" envSeparator:","`
	// FeedWhere is an optional JMESPath row filter, e.g. "author_id == 'u1'".
	FeedWhere string `env:"SYNC_FEED_WHERE"`
	// RequestTimeout bounds each store call made by a command.
	RequestTimeout time.Duration `env:"SYNC_REQUEST_TIMEOUT" envDefault:"15s"`
}

// Sanitize falls back to defaults for unknown or empty values.
func (c *SyncConfig) Sanitize() {
	if _, err := article.ParseSortKey(c.DefaultSort); err != nil {
		c.DefaultSort = string(article.DefaultSort)
	}
	if c.Table = strings.TrimSpace(c.Table); c.Table == "" {
		c.Table = "articles"
	}
	if c.NotifyChannel = strings.TrimSpace(c.NotifyChannel); c.NotifyChannel == "" {
		c.NotifyChannel = "quill_changes"
	}
	c.FeedWhere = strings.TrimSpace(c.FeedWhere)
	c.Kinds = trimAll(c.Kinds)
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

// Sort returns the parsed default sort key.
func (c *SyncConfig) Sort() article.SortKey {
	k, err := article.ParseSortKey(c.DefaultSort)
	if err != nil {
		return article.DefaultSort
	}
	return k
}

// FeedKinds parses the configured change kinds.
func (c *SyncConfig) FeedKinds() ([]article.ChangeKind, error) {
	kinds := make([]article.ChangeKind, 0, len(c.Kinds))
	for _, raw := range c.Kinds {
		k, err := article.ParseChangeKind(raw)
		if err != nil {
			return nil, fmt.Errorf("SYNC_FEED_KINDS: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
