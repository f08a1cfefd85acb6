package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/quill/internal/domain/article"
	domainauth "github.com/target/quill/internal/domain/auth"
	"github.com/target/quill/internal/domain/notify"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/observability/metrics"
	"github.com/target/quill/internal/observability/statsd"
	"github.com/target/quill/internal/ports"
)

// ArticlesTable is the store table the sync core reads and subscribes to.
const ArticlesTable = "articles"

// ErrSyncClosed is returned by operations on a closed ArticleSync.
var ErrSyncClosed = errors.New("article sync closed")

// ErrAlreadySubscribed is returned by Subscribe while a feed subscription is live.
var ErrAlreadySubscribed = errors.New("change feed already subscribed")

// SessionSource exposes the current session. *SessionService implements it.
type SessionSource interface {
	Current() *domainauth.Session
}

// ArticleBackends groups the external collaborators of ArticleSync.
type ArticleBackends struct {
	Store    ports.ArticleStore
	Feed     ports.ChangeFeed
	Sessions SessionSource
}

// ArticleSyncConfig tunes the sync core.
type ArticleSyncConfig struct {
	Sort    article.SortKey
	Filter  ports.FeedFilter
	Metrics statsd.Sink
}

// ArticleSyncOptions groups dependencies for ArticleSync.
type ArticleSyncOptions struct {
	Backends ArticleBackends
	Config   ArticleSyncConfig
	Logger   *slog.Logger
}

// Snapshot is an immutable view of the canonical list.
type Snapshot struct {
	Version  uint64
	Sort     article.SortKey
	Articles []article.Article
}

// Status reports load and subscription health, separately from list data.
type Status struct {
	Feed    article.FeedStatus
	FeedErr error
	Loading bool
	Loaded  bool
	LoadErr error
}

// ArticleSync keeps the canonical article list consistent with the remote store.
//
// A single loop goroutine owns the list. Bulk reload results, feed events, local
// write results and sort changes are messages applied one at a time, so readers
// never observe a partially applied mutation.
type ArticleSync struct {
	store    ports.ArticleStore
	feed     ports.ChangeFeed
	sessions SessionSource
	filter   ports.FeedFilter
	sink     statsd.Sink
	logger   *slog.Logger

	inbox    chan message
	quit     chan struct{}
	loopDone chan struct{}
	once     sync.Once

	reloadGen atomic.Uint64
	snapshot  atomic.Pointer[Snapshot]
	status    atomic.Pointer[Status]

	subMu sync.Mutex
	sub   ports.Subscription

	changes  *notify.Broadcaster[Snapshot]
	statuses *notify.Broadcaster[Status]

	// Loop-owned state.
	list         *article.List
	version      uint64
	latestReload uint64
	inFlight     bool
	journal      []article.Change
	st           Status
}

// NewArticleSync constructs the sync core and starts its loop. Call Close to release it.
func NewArticleSync(opts ArticleSyncOptions) *ArticleSync {
	if opts.Backends.Store == nil {
		panic("ArticleStore is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	filter := opts.Config.Filter
	if filter.Table == "" {
		filter.Table = ArticlesTable
	}
	sortKey := opts.Config.Sort
	if sortKey == "" {
		sortKey = article.DefaultSort
	}

	s := &ArticleSync{
		store:    opts.Backends.Store,
		feed:     opts.Backends.Feed,
		sessions: opts.Backends.Sessions,
		filter:   filter,
		sink:     opts.Config.Metrics,
		logger:   logger.With("component", "article_sync"),
		inbox:    make(chan message, 64),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		changes:  notify.NewBroadcaster[Snapshot](),
		statuses: notify.NewBroadcaster[Status](),
		list:     article.NewList(sortKey),
		st:       Status{Feed: article.FeedIdle},
	}
	s.snapshot.Store(&Snapshot{Sort: sortKey, Articles: []article.Article{}})
	st := s.st
	s.status.Store(&st)

	go s.loop()
	return s
}

// Snapshot returns the current canonical list.
func (s *ArticleSync) Snapshot() Snapshot { return *s.snapshot.Load() }

// Articles returns the current ordered articles.
func (s *ArticleSync) Articles() []article.Article { return s.Snapshot().Articles }

// Status returns the current load and feed status.
func (s *ArticleSync) Status() Status { return *s.status.Load() }

// Changes subscribes to list snapshots. A slow reader always receives the newest one.
func (s *ArticleSync) Changes() (func(), <-chan Snapshot) { return s.changes.Subscribe() }

// StatusChanges subscribes to status transitions.
func (s *ArticleSync) StatusChanges() (func(), <-chan Status) { return s.statuses.Subscribe() }

// Reload fetches the full remote set ordered by key and replaces the list.
// An empty key follows the current ordering, including a SetSort made while the
// load is in flight. A result is applied only if no newer
// Reload was started meanwhile; superseded results are discarded and return nil.
// On failure the list keeps its last good value and Status().LoadErr is set.
func (s *ArticleSync) Reload(ctx context.Context, key article.SortKey) error {
	keepSort := key == ""
	if keepSort {
		key = s.Snapshot().Sort
	}
	gen := s.reloadGen.Add(1)
	if err := s.send(reloadStarted{gen: gen}); err != nil {
		return err
	}

	started := time.Now()
	records, err := s.store.List(ctx, key)
	if err != nil {
		err = fmt.Errorf("load articles: %w", err)
	}

	done := make(chan error, 1)
	if sendErr := s.send(reloadFinished{
		gen: gen, sort: key, keepSort: keepSort, records: records, err: err, started: started, done: done,
	}); sendErr != nil {
		return sendErr
	}
	return s.wait(done)
}

// ApplyRemoteEvent merges a feed event into the list. Inserts of known IDs act as
// updates, updates of unknown IDs act as inserts and deletes of unknown IDs are no-ops.
func (s *ArticleSync) ApplyRemoteEvent(kind article.ChangeKind, rec article.Article) error {
	c := article.Change{Kind: kind, Origin: article.OriginRemote}
	if kind == article.Deleted {
		c.Old = &rec
	} else {
		c.New = &rec
	}
	return s.apply(c)
}

// SetSort changes the active ordering. An empty key selects DefaultSort.
func (s *ArticleSync) SetSort(key article.SortKey) error {
	k, err := article.ParseSortKey(string(key))
	if err != nil {
		return apperrors.ValidationField("sort", err)
	}
	done := make(chan error, 1)
	if err := s.send(sortChanged{key: k, done: done}); err != nil {
		return err
	}
	return s.wait(done)
}

// Get returns one article, from the cache when present, otherwise from the store.
func (s *ArticleSync) Get(ctx context.Context, id string) (*article.Article, error) {
	if a, ok := s.cached(id); ok {
		return &a, nil
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	return a, nil
}

// Create validates and inserts a new article authored by the current session,
// then applies it locally without waiting for the feed echo.
func (s *ArticleSync) Create(ctx context.Context, d article.Draft) (*article.Article, error) {
	sess, err := s.authorize(domainauth.CapEdit)
	if err != nil {
		s.emit(metrics.SyncMetric{Op: "create", Origin: string(article.OriginLocal), Result: metrics.ResultRejected, Err: err})
		return nil, err
	}
	if err := validateDraft(d); err != nil {
		return nil, err
	}
	d = d.Normalized()

	started := time.Now()
	created, err := s.store.Insert(ctx, ports.NewArticle{
		Title:    d.Title,
		Content:  d.Content,
		Author:   sess.Name,
		AuthorID: sess.UserID,
	})
	s.emitWrite("create", started, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "create article failed", "error", err)
		return nil, fmt.Errorf("create article: %w", err)
	}

	if err := s.apply(article.Change{Kind: article.Inserted, New: created, Origin: article.OriginLocal}); err != nil {
		return created, err
	}
	s.logger.InfoContext(ctx, "article created", "article_id", created.ID, "user_id", sess.UserID)
	return created, nil
}

// Update edits an article. The session needs the edit capability and must either
// own the article or hold the admin capability.
func (s *ArticleSync) Update(ctx context.Context, id string, d article.Draft) (*article.Article, error) {
	sess, err := s.authorize(domainauth.CapEdit)
	if err != nil {
		s.emit(metrics.SyncMetric{Op: "update", Origin: string(article.OriginLocal), Result: metrics.ResultRejected, Err: err})
		return nil, err
	}
	if err := validateDraft(d); err != nil {
		return nil, err
	}
	target, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(sess, target, "edit"); err != nil {
		s.emit(metrics.SyncMetric{Op: "update", Origin: string(article.OriginLocal), Result: metrics.ResultRejected, Err: err})
		return nil, err
	}
	d = d.Normalized()

	started := time.Now()
	updated, err := s.store.Update(ctx, id, ports.ArticlePatch{Title: d.Title, Content: d.Content})
	s.emitWrite("update", started, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "update article failed", "article_id", id, "error", err)
		return nil, fmt.Errorf("update article: %w", err)
	}

	if err := s.apply(article.Change{Kind: article.Updated, New: updated, Origin: article.OriginLocal}); err != nil {
		return updated, err
	}
	s.logger.InfoContext(ctx, "article updated", "article_id", id, "user_id", sess.UserID)
	return updated, nil
}

// Delete irreversibly removes an article. Confirmation is the caller's job; this
// only checks authorization (edit plus ownership or admin) and executes.
func (s *ArticleSync) Delete(ctx context.Context, id string) error {
	sess, err := s.authorize(domainauth.CapEdit)
	if err != nil {
		s.emit(metrics.SyncMetric{Op: "delete", Origin: string(article.OriginLocal), Result: metrics.ResultRejected, Err: err})
		return err
	}
	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authorizeOwner(sess, target, "delete"); err != nil {
		s.emit(metrics.SyncMetric{Op: "delete", Origin: string(article.OriginLocal), Result: metrics.ResultRejected, Err: err})
		return err
	}

	started := time.Now()
	err = s.store.Delete(ctx, id)
	s.emitWrite("delete", started, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "delete article failed", "article_id", id, "error", err)
		return fmt.Errorf("delete article: %w", err)
	}

	if err := s.apply(article.Change{Kind: article.Deleted, Old: target, Origin: article.OriginLocal}); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "article deleted", "article_id", id, "user_id", sess.UserID)
	return nil
}

// Subscribe opens the change feed. Status transitions are published through
// StatusChanges; there is no automatic resubscribe, callers may call Subscribe
// again once the feed reports closed or error.
func (s *ArticleSync) Subscribe(ctx context.Context) error {
	if s.feed == nil {
		return errors.New("change feed not configured")
	}
	select {
	case <-s.quit:
		return ErrSyncClosed
	default:
	}

	s.subMu.Lock()
	if s.sub != nil {
		s.subMu.Unlock()
		return ErrAlreadySubscribed
	}
	sub, err := s.feed.Subscribe(ctx, s.filter)
	if err == nil {
		s.sub = sub
		go s.pump(sub)
	}
	s.subMu.Unlock()

	if err != nil {
		s.logger.ErrorContext(ctx, "subscribe to change feed failed", "error", err)
		if sendErr := s.send(feedStatusChanged{status: article.FeedError, err: err}); sendErr != nil {
			return sendErr
		}
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Close releases the feed subscription, stops the loop and ends all signal
// subscriptions. It is safe to call more than once.
func (s *ArticleSync) Close() error {
	var err error
	s.once.Do(func() {
		close(s.quit)
		<-s.loopDone

		s.subMu.Lock()
		if s.sub != nil {
			err = s.sub.Close()
			s.sub = nil
		}
		s.subMu.Unlock()

		s.changes.StopAll()
		s.statuses.StopAll()
	})
	return err
}

func (s *ArticleSync) authorize(c domainauth.Capability) (*domainauth.Session, error) {
	var sess *domainauth.Session
	if s.sessions != nil {
		sess = s.sessions.Current()
	}
	if sess == nil {
		return nil, apperrors.Unauthenticated("sign in required")
	}
	if !sess.Can(c) {
		return nil, apperrors.Forbidden(fmt.Sprintf("role %s lacks the %s capability", sess.Role, c))
	}
	return sess, nil
}

func authorizeOwner(sess *domainauth.Session, target *article.Article, action string) error {
	if sess.Owns(target.AuthorID) || sess.Can(domainauth.CapAdmin) {
		return nil
	}
	return apperrors.Forbidden(fmt.Sprintf("only the author or an admin may %s this article", action))
}

func validateDraft(d article.Draft) error {
	err := d.Validate()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, article.ErrContentEmpty):
		return apperrors.ValidationField("content", err)
	default:
		return apperrors.ValidationField("title", err)
	}
}

func (s *ArticleSync) cached(id string) (article.Article, bool) {
	for _, a := range s.Snapshot().Articles {
		if a.ID == id {
			return a, true
		}
	}
	return article.Article{}, false
}

func (s *ArticleSync) apply(c article.Change) error {
	done := make(chan error, 1)
	if err := s.send(changeReceived{change: c, done: done}); err != nil {
		return err
	}
	return s.wait(done)
}

func (s *ArticleSync) send(m message) error {
	select {
	case <-s.quit:
		return ErrSyncClosed
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.quit:
		return ErrSyncClosed
	}
}

func (s *ArticleSync) wait(done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-s.quit:
		return ErrSyncClosed
	}
}

// pump forwards feed events and status into the loop until the subscription ends.
func (s *ArticleSync) pump(sub ports.Subscription) {
	events, statuses := sub.Events(), sub.Status()
	for events != nil || statuses != nil {
		select {
		case <-s.quit:
			return
		case c, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.Origin = article.OriginRemote
			if s.send(changeReceived{change: c}) != nil {
				return
			}
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			if s.send(feedStatusChanged{sub: sub, status: st}) != nil {
				return
			}
		}
	}
	_ = s.send(feedStatusChanged{sub: sub, status: article.FeedClosed})
}

func (s *ArticleSync) emit(m metrics.SyncMetric) {
	metrics.EmitSync(s.sink, m)
}

func (s *ArticleSync) emitWrite(op string, started time.Time, err error) {
	m := metrics.SyncMetric{Op: op, Origin: string(article.OriginLocal), Result: metrics.ResultSuccess, Duration: time.Since(started)}
	if err != nil {
		m.Result = metrics.ResultError
		m.Err = err
	}
	s.emit(m)
}
