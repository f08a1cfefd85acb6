// Package articles contains in-memory doubles for the article store and change feed.
// Mutations through MemoryStore are echoed to MemoryFeed subscribers, the way
// the database trigger echoes writes to LISTEN clients.
package articles

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/target/quill/internal/domain/article"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/ports"
)

var (
	_ ports.ArticleStore = (*MemoryStore)(nil)
	_ ports.ChangeFeed   = (*MemoryFeed)(nil)
	_ ports.Subscription = (*MemorySubscription)(nil)
)

// MemoryStore is an in-memory ArticleStore.
type MemoryStore struct {
	// Feed, when set, receives a change for every successful write.
	Feed *MemoryFeed
	// Now supplies timestamps; defaults to a clock that advances one second per write.
	Now func() time.Time
	// ListErr, when set, fails List.
	ListErr error

	mu     sync.Mutex
	rows   map[string]article.Article
	nextID int
	clock  time.Time
}

// NewMemoryStore creates a store seeded with rows.
func NewMemoryStore(rows ...article.Article) *MemoryStore {
	s := &MemoryStore{
		rows:  make(map[string]article.Article, len(rows)),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *MemoryStore) List(_ context.Context, sort article.SortKey) ([]article.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]article.Article, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	slices.SortFunc(out, sort.Compare)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*article.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, apperrors.NotFoundf("article %s not found", id)
	}
	return &r, nil
}

func (s *MemoryStore) Insert(_ context.Context, in ports.NewArticle) (*article.Article, error) {
	s.mu.Lock()
	s.nextID++
	now := s.now()
	r := article.Article{
		ID:        fmt.Sprintf("a%d", s.nextID),
		Title:     in.Title,
		Content:   in.Content,
		Author:    in.Author,
		AuthorID:  in.AuthorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.rows[r.ID] = r
	s.mu.Unlock()

	s.echo(article.Change{Kind: article.Inserted, New: &r})
	return &r, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, patch ports.ArticlePatch) (*article.Article, error) {
	s.mu.Lock()
	r, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return nil, apperrors.NotFoundf("article %s not found", id)
	}
	r.Title, r.Content, r.UpdatedAt = patch.Title, patch.Content, s.now()
	s.rows[id] = r
	s.mu.Unlock()

	s.echo(article.Change{Kind: article.Updated, New: &r})
	return &r, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	r, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFoundf("article %s not found", id)
	}
	delete(s.rows, id)
	s.mu.Unlock()

	s.echo(article.Change{Kind: article.Deleted, Old: &r})
	return nil
}

func (s *MemoryStore) echo(c article.Change) {
	if s.Feed != nil {
		s.Feed.Emit(c)
	}
}

// MemoryFeed is an in-memory ChangeFeed. Subscriptions report subscribed immediately.
type MemoryFeed struct {
	// SubscribeErr, when set, fails Subscribe.
	SubscribeErr error

	mu   sync.Mutex
	subs []*MemorySubscription
}

// NewMemoryFeed creates a feed with no subscribers.
func NewMemoryFeed() *MemoryFeed { return &MemoryFeed{} }

func (f *MemoryFeed) Subscribe(_ context.Context, filter ports.FeedFilter) (ports.Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	sub := &MemorySubscription{
		filter: filter,
		events: make(chan article.Change, 64),
		status: make(chan article.FeedStatus, 4),
		feed:   f,
	}
	sub.status <- article.FeedSubscribed

	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub, nil
}

// Emit delivers c to every live subscription whose filter accepts it.
func (f *MemoryFeed) Emit(c article.Change) {
	f.mu.Lock()
	subs := slices.Clone(f.subs)
	f.mu.Unlock()
	for _, s := range subs {
		s.deliver(c)
	}
}

// Fail reports an error status on every live subscription.
func (f *MemoryFeed) Fail() {
	f.mu.Lock()
	subs := slices.Clone(f.subs)
	f.mu.Unlock()
	for _, s := range subs {
		s.report(article.FeedError)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *MemoryFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *MemoryFeed) remove(sub *MemorySubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = slices.DeleteFunc(f.subs, func(s *MemorySubscription) bool { return s == sub })
}

// MemorySubscription is a live MemoryFeed subscription.
type MemorySubscription struct {
	filter ports.FeedFilter
	events chan article.Change
	status chan article.FeedStatus
	feed   *MemoryFeed

	mu     sync.Mutex
	closed bool
}

func (s *MemorySubscription) Events() <-chan article.Change     { return s.events }
func (s *MemorySubscription) Status() <-chan article.FeedStatus { return s.status }

// Filter returns the filter the subscription was opened with.
func (s *MemorySubscription) Filter() ports.FeedFilter { return s.filter }

func (s *MemorySubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.feed.remove(s)
	close(s.events)
	close(s.status)
	return nil
}

func (s *MemorySubscription) deliver(c article.Change) {
	if len(s.filter.Kinds) > 0 && !slices.Contains(s.filter.Kinds, c.Kind) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- c
}

func (s *MemorySubscription) report(st article.FeedStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.status <- st:
	default:
	}
}
