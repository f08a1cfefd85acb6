package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/quill/internal/data/pgxutil"
	"github.com/target/quill/internal/domain/article"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/ports"
)

// DefaultChangeChannel is the NOTIFY channel written by the quill_notify_change trigger.
const DefaultChangeChannel = "quill_changes"

const feedEventBuffer = 64

// ChangeFeedOptions configures a ChangeFeed.
type ChangeFeedOptions struct {
	Channel string
	// Store refetches rows whose notification payload was truncated. When nil,
	// truncated inserts and updates are dropped with a warning.
	Store  ports.ArticleStore
	Logger *slog.Logger
}

// ChangeFeed delivers row-level changes from Postgres LISTEN/NOTIFY. Each
// subscription holds one pooled connection for its lifetime.
type ChangeFeed struct {
	DB      *sql.DB
	channel string
	store   ports.ArticleStore
	logger  *slog.Logger
}

var _ ports.ChangeFeed = (*ChangeFeed)(nil)

// NewChangeFeed creates a ChangeFeed on db.
func NewChangeFeed(db *sql.DB, opts ChangeFeedOptions) *ChangeFeed {
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChangeChannel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeFeed{
		DB:      db,
		channel: channel,
		store:   opts.Store,
		logger:  logger.With("component", "change_feed", "channel", channel),
	}
}

// Subscribe starts listening and returns once LISTEN has succeeded. ctx bounds
// only the subscribe call; the subscription lives until Close.
func (f *ChangeFeed) Subscribe(ctx context.Context, filter ports.FeedFilter) (ports.Subscription, error) {
	rf, err := NewRowFilter(filter)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &pgSubscription{
		events: make(chan article.Change, feedEventBuffer),
		status: make(chan article.FeedStatus, 4),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	ready := make(chan error, 1)
	go f.run(subCtx, sub, rf, ready)

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-sub.done
			return nil, fmt.Errorf("subscribe %s: %w", f.channel, apperrors.MapDBError(err))
		}
		return sub, nil
	case <-ctx.Done():
		cancel()
		<-sub.done
		return nil, ctx.Err()
	}
}

func (f *ChangeFeed) run(ctx context.Context, sub *pgSubscription, rf *RowFilter, ready chan<- error) {
	defer close(sub.done)
	defer close(sub.status)
	defer close(sub.events)

	listening := false
	err := pgxutil.WithListener(ctx, f.DB, f.channel, func(conn *pgx.Conn) error {
		listening = true
		ready <- nil
		sub.sendStatus(ctx, article.FeedSubscribed)
		f.logger.Info("listening for changes", "table", rf.table)

		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			f.handle(ctx, sub, rf, []byte(n.Payload))
		}
	}, func(err error) {
		f.logger.Warn("unlisten failed, discarding connection", "error", err)
	})

	if !listening {
		if err == nil {
			err = errors.New("listen did not complete")
		}
		ready <- err
		return
	}
	if err != nil && ctx.Err() == nil {
		f.logger.Error("change feed failed", "error", err)
		sub.sendStatus(ctx, article.FeedError)
		return
	}
	sub.sendStatus(ctx, article.FeedClosed)
}

func (f *ChangeFeed) handle(ctx context.Context, sub *pgSubscription, rf *RowFilter, payload []byte) {
	n, err := DecodeNotification(payload)
	if err != nil {
		f.logger.Warn("dropping malformed change notification", "error", err)
		return
	}
	if n.Truncated {
		if err := f.refetch(ctx, &n); err != nil {
			f.logger.Warn("dropping truncated change notification", "error", err, "type", n.Kind)
			return
		}
	}
	c, ok, err := rf.Match(n)
	if err != nil {
		f.logger.Warn("row filter evaluation failed", "error", err)
		return
	}
	if !ok {
		return
	}
	select {
	case sub.events <- c:
	case <-ctx.Done():
	}
}

// refetch replaces the key-only record of a truncated notification with the stored row.
func (f *ChangeFeed) refetch(ctx context.Context, n *Notification) error {
	if n.Kind == article.Deleted {
		return nil
	}
	if f.store == nil || n.New == nil {
		return errors.New("no store to refetch truncated row")
	}
	a, err := f.store.Get(ctx, n.New.ID)
	if err != nil {
		return err
	}
	n.New = a
	n.newRow = nil
	return nil
}

// Notification is a decoded quill_notify_change payload.
type Notification struct {
	Kind      article.ChangeKind
	Table     string
	New       *article.Article
	Old       *article.Article
	Truncated bool

	newRow map[string]any
	oldRow map[string]any
}

type notificationWire struct {
	Type      string          `json:"type"`
	Table     string          `json:"table"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
	Truncated bool            `json:"truncated"`
}

// DecodeNotification parses a change notification payload.
func DecodeNotification(payload []byte) (Notification, error) {
	var w notificationWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	kind, err := article.ParseChangeKind(w.Type)
	if err != nil {
		return Notification{}, err
	}
	n := Notification{Kind: kind, Table: w.Table, Truncated: w.Truncated}
	if n.New, n.newRow, err = decodeRow(w.Record); err != nil {
		return Notification{}, fmt.Errorf("decode record: %w", err)
	}
	if n.Old, n.oldRow, err = decodeRow(w.OldRecord); err != nil {
		return Notification{}, fmt.Errorf("decode old_record: %w", err)
	}

	switch {
	case kind == article.Deleted && n.Old == nil:
		return Notification{}, errors.New("delete notification without old_record")
	case kind != article.Deleted && n.New == nil:
		return Notification{}, fmt.Errorf("%s notification without record", kind)
	}
	return n, nil
}

func decodeRow(raw json.RawMessage) (*article.Article, map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil, nil
	}
	var a article.Article
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, nil, err
	}
	if a.ID == "" {
		return nil, nil, errors.New("row without id")
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, nil, err
	}
	return &a, row, nil
}

// RowFilter applies a FeedFilter to decoded notifications.
type RowFilter struct {
	table string
	kinds []article.ChangeKind
	where jmespathQuery
}

type jmespathQuery interface {
	Search(data any) (any, error)
}

// NewRowFilter compiles filter. An invalid Where expression is a validation error.
func NewRowFilter(filter ports.FeedFilter) (*RowFilter, error) {
	rf := &RowFilter{table: filter.Table, kinds: filter.Kinds}
	if expr := strings.TrimSpace(filter.Where); expr != "" {
		q, err := jmespath.Compile(expr)
		if err != nil {
			return nil, apperrors.ValidationField("where", err)
		}
		rf.where = q
	}
	return rf, nil
}

// Match reports whether n passes the filter and returns the change to deliver.
// With a row filter, an update that moves a row into the filtered set is
// delivered as an insert and one that moves it out as a delete.
func (rf *RowFilter) Match(n Notification) (article.Change, bool, error) {
	if rf.table != "" && n.Table != rf.table {
		return article.Change{}, false, nil
	}
	c := article.Change{Kind: n.Kind, New: n.New, Old: n.Old, Origin: article.OriginRemote}

	if rf.where != nil {
		newIn, err := rf.rowMatches(n.New, n.newRow)
		if err != nil {
			return article.Change{}, false, err
		}
		oldIn, err := rf.rowMatches(n.Old, n.oldRow)
		if err != nil {
			return article.Change{}, false, err
		}
		switch n.Kind {
		case article.Inserted:
			if !newIn {
				return article.Change{}, false, nil
			}
		case article.Deleted:
			// Key-only rows from truncated payloads cannot be evaluated; a delete of
			// an unknown ID is harmless downstream.
			if !oldIn && !n.Truncated {
				return article.Change{}, false, nil
			}
		case article.Updated:
			switch {
			case newIn && !oldIn && n.Old != nil:
				c.Kind = article.Inserted
			case !newIn && oldIn:
				c = article.Change{Kind: article.Deleted, Old: n.Old, Origin: article.OriginRemote}
			case !newIn:
				return article.Change{}, false, nil
			}
		}
	}

	if len(rf.kinds) > 0 && !slices.Contains(rf.kinds, c.Kind) {
		return article.Change{}, false, nil
	}
	return c, true, nil
}

func (rf *RowFilter) rowMatches(a *article.Article, row map[string]any) (bool, error) {
	if a == nil {
		return false, nil
	}
	if row == nil {
		raw, err := json.Marshal(a)
		if err != nil {
			return false, err
		}
		if err := json.Unmarshal(raw, &row); err != nil {
			return false, err
		}
	}
	v, err := rf.where.Search(row)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// truthy follows JMESPath truthiness: false, null and empty values are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

type pgSubscription struct {
	events chan article.Change
	status chan article.FeedStatus
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (s *pgSubscription) Events() <-chan article.Change     { return s.events }
func (s *pgSubscription) Status() <-chan article.FeedStatus { return s.status }

// Close stops listening and waits until both channels are closed.
func (s *pgSubscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// sendStatus delivers st unless the subscription is being closed. The final
// closed status is best-effort since nobody may be reading any more.
func (s *pgSubscription) sendStatus(ctx context.Context, st article.FeedStatus) {
	select {
	case s.status <- st:
		return
	default:
	}
	select {
	case s.status <- st:
	case <-ctx.Done():
	}
}
