package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"time"

	"github.com/target/quill/internal/domain/article"
	domainauth "github.com/target/quill/internal/domain/auth"
	"github.com/target/quill/internal/service"
	"golang.org/x/sync/errgroup"
)

type watchOptions struct {
	Sort  article.SortKey
	Retry time.Duration
}

func parseWatchFlags(args []string, fallback article.SortKey) (watchOptions, error) {
	opts := watchOptions{}
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	raw := fs.String("sort", string(fallback), "ordering: created_desc, created_asc, updated_desc, title_asc")
	fs.DurationVar(&opts.Retry, "retry", 5*time.Second, "delay before resubscribing after the feed ends (0 disables)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	key, err := article.ParseSortKey(*raw)
	if err != nil {
		return opts, err
	}
	if opts.Retry < 0 {
		return opts, errors.New("-retry must not be negative")
	}
	opts.Sort = key
	return opts, nil
}

// runWatch subscribes to the change feed, reloads the list and prints every new
// snapshot until interrupted. When the feed ends it resubscribes and reloads
// after the retry delay.
func runWatch(cmdCtx *commandContext, args []string) error {
	opts, err := parseWatchFlags(args, cmdCtx.Config.Sync.Sort())
	if err != nil {
		return err
	}
	a, err := openArticles(cmdCtx)
	if err != nil {
		return err
	}
	defer a.close(cmdCtx)

	stopSnaps, snaps := a.sync.Changes()
	defer stopSnaps()
	stopStatus, statuses := a.sync.StatusChanges()
	defer stopStatus()
	stopAuth, authEvents := a.svc.Sessions.AuthEvents()
	defer stopAuth()

	g, ctx := errgroup.WithContext(cmdCtx.Ctx)
	g.Go(func() error {
		return a.svc.Sessions.Watch(ctx)
	})

	w := &watcher{sync: a.sync, out: cmdCtx.Stdout, opts: opts, timeout: cmdCtx.Config.Sync.RequestTimeout}
	g.Go(func() error {
		if err := w.connect(ctx); err != nil {
			return err
		}
		var retry <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				if err := w.render(snap); err != nil {
					return err
				}
			case st, ok := <-statuses:
				if !ok {
					return nil
				}
				if w.feedEnded(st) && opts.Retry > 0 {
					retry = time.After(opts.Retry)
				}
			case ev, ok := <-authEvents:
				if !ok {
					authEvents = nil
					continue
				}
				if ev.Event == domainauth.SignedOut {
					_ = writeln(w.out, "session ended; writes are disabled until you sign in again")
				}
			case <-retry:
				retry = nil
				if err := w.connect(ctx); err != nil {
					cmdCtx.Logger.WarnContext(ctx, "resubscribe failed", "error", err)
					retry = time.After(opts.Retry)
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// feedSyncer is the part of the sync core the watcher drives on (re)connect.
type feedSyncer interface {
	Reload(ctx context.Context, key article.SortKey) error
	Subscribe(ctx context.Context) error
}

type watcher struct {
	sync    feedSyncer
	out     io.Writer
	opts    watchOptions
	timeout time.Duration

	lastFeed article.FeedStatus
	lastLoad error
}

// connect opens the feed and then performs a full reload. Subscribing first
// means a write landing between the two is either in the loaded set or
// delivered by the feed, never neither.
func (w *watcher) connect(ctx context.Context) error {
	if err := w.sync.Subscribe(ctx); err != nil && !errors.Is(err, service.ErrAlreadySubscribed) {
		return err
	}
	reloadCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.sync.Reload(reloadCtx, w.opts.Sort)
}

func (w *watcher) render(snap service.Snapshot) error {
	if err := writef(w.out, "\n-- %d articles (%s) --\n", len(snap.Articles), snap.Sort); err != nil {
		return err
	}
	return printArticles(w.out, snap.Articles)
}

// feedEnded prints feed transitions and new load failures, and reports whether
// the feed just ended and needs a resubscribe.
func (w *watcher) feedEnded(st service.Status) bool {
	if st.LoadErr != nil && st.LoadErr != w.lastLoad { //nolint:errorlint // identity check, not matching
		_ = writef(w.out, "-- reload failed: %s --\n", service.FriendlyMessage(st.LoadErr))
	}
	w.lastLoad = st.LoadErr

	if st.Feed == w.lastFeed {
		return false
	}
	w.lastFeed = st.Feed
	switch st.Feed {
	case article.FeedSubscribed:
		_ = writeln(w.out, "-- live --")
	case article.FeedClosed:
		_ = writeln(w.out, "-- feed closed --")
		return true
	case article.FeedError:
		_ = writef(w.out, "-- feed error: %s --\n", service.FriendlyMessage(st.FeedErr))
		return true
	}
	return false
}
