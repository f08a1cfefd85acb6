package ports

import (
	"context"

	"github.com/target/quill/internal/domain/article"
)

// NewArticle is the row inserted for a create.
type NewArticle struct {
	Title    string
	Content  string
	Author   string
	AuthorID string
}

// ArticlePatch holds the editable fields of an update.
type ArticlePatch struct {
	Title   string
	Content string
}

// ArticleStore is the remote relational store holding articles.
type ArticleStore interface {
	// List returns every article ordered by sort.
	List(ctx context.Context, sort article.SortKey) ([]article.Article, error)
	Get(ctx context.Context, id string) (*article.Article, error)
	Insert(ctx context.Context, in NewArticle) (*article.Article, error)
	Update(ctx context.Context, id string, patch ArticlePatch) (*article.Article, error)
	Delete(ctx context.Context, id string) error
}

// FeedFilter selects which changes a subscription receives.
type FeedFilter struct {
	Table string
	// Kinds restricts delivered change kinds; empty means all.
	Kinds []article.ChangeKind
	// Where is an optional JMESPath expression evaluated against the row.
	Where string
}

// Subscription is a live change-feed handle. Events and Status are closed after Close.
type Subscription interface {
	Events() <-chan article.Change
	Status() <-chan article.FeedStatus
	Close() error
}

// ChangeFeed opens push subscriptions to row-level changes.
type ChangeFeed interface {
	Subscribe(ctx context.Context, filter FeedFilter) (Subscription, error)
}
