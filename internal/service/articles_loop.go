package service

import (
	"time"

	"github.com/target/quill/internal/domain/article"
	"github.com/target/quill/internal/observability/metrics"
	"github.com/target/quill/internal/ports"
)

// message is anything the sync loop applies.
type message interface{ isMessage() }

type reloadStarted struct{ gen uint64 }

type reloadFinished struct {
	gen  uint64
	sort article.SortKey
	// keepSort leaves the list's current key in place; records are re-sorted.
	keepSort bool
	records  []article.Article
	err      error
	started  time.Time
	done     chan<- error
}

type changeReceived struct {
	change article.Change
	done   chan<- error
}

type sortChanged struct {
	key  article.SortKey
	done chan<- error
}

type feedStatusChanged struct {
	sub    ports.Subscription // nil when the subscribe call itself failed
	status article.FeedStatus
	err    error
}

func (reloadStarted) isMessage()     {}
func (reloadFinished) isMessage()    {}
func (changeReceived) isMessage()    {}
func (sortChanged) isMessage()       {}
func (feedStatusChanged) isMessage() {}

func (s *ArticleSync) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.quit:
			return
		case m := <-s.inbox:
			s.handle(m)
		}
	}
}

func (s *ArticleSync) handle(m message) {
	switch m := m.(type) {
	case reloadStarted:
		if m.gen > s.latestReload {
			s.latestReload = m.gen
			s.inFlight = true
			s.journal = s.journal[:0]
			s.st.Loading = true
			s.publishStatus()
		}
	case reloadFinished:
		m.done <- s.finishReload(m)
	case changeReceived:
		s.applyChange(m.change)
		if m.done != nil {
			m.done <- nil
		}
	case sortChanged:
		if s.list.SetSort(m.key) {
			s.publishList()
		}
		m.done <- nil
	case feedStatusChanged:
		s.setFeedStatus(m)
	}
}

// finishReload applies a bulk load result unless a newer reload has been started.
// Changes delivered while the reload was in flight are replayed on top of the
// result, so a response read before an event cannot erase that event.
func (s *ArticleSync) finishReload(m reloadFinished) error {
	if m.gen != s.latestReload {
		s.logger.Debug("discarding superseded reload", "gen", m.gen, "latest", s.latestReload)
		s.emit(metrics.SyncMetric{Op: "reload", Result: metrics.ResultDiscarded})
		return nil
	}

	journal := s.journal
	s.inFlight = false
	s.journal = nil
	s.st.Loading = false

	if m.err != nil {
		s.logger.Error("reload failed, keeping last known list", "error", m.err)
		s.st.LoadErr = m.err
		s.publishStatus()
		s.emit(metrics.SyncMetric{Op: "reload", Result: metrics.ResultError, Duration: time.Since(m.started), Err: m.err})
		return m.err
	}

	if !m.keepSort {
		s.list.SetSort(m.sort)
	}
	s.list.Replace(m.records)
	for _, c := range journal {
		s.list.Apply(c)
	}
	s.st.Loaded = true
	s.st.LoadErr = nil
	s.publishList()
	s.publishStatus()
	s.emit(metrics.SyncMetric{Op: "reload", Result: metrics.ResultSuccess, Duration: time.Since(m.started)})
	s.logger.Debug("reload applied", "gen", m.gen, "count", s.list.Len(), "replayed", len(journal))
	return nil
}

func (s *ArticleSync) applyChange(c article.Change) {
	if s.inFlight {
		s.journal = append(s.journal, c)
	}
	result := metrics.ResultNoop
	if s.list.Apply(c) {
		result = metrics.ResultSuccess
		s.publishList()
	}
	s.emit(metrics.SyncMetric{Op: "apply", Origin: string(c.Origin), Result: result})
}

func (s *ArticleSync) setFeedStatus(m feedStatusChanged) {
	s.subMu.Lock()
	current := s.sub
	if m.sub != nil && m.sub != current {
		s.subMu.Unlock()
		return // a previous subscription reporting late
	}
	ended := m.status == article.FeedClosed || m.status == article.FeedError
	if ended && current != nil {
		if err := current.Close(); err != nil {
			s.logger.Warn("close change feed subscription failed", "error", err)
		}
		s.sub = nil
	}
	s.subMu.Unlock()

	if s.st.Feed == m.status && m.err == nil {
		return
	}
	s.st.Feed = m.status
	s.st.FeedErr = m.err
	s.logger.Info("change feed status", "status", m.status)
	s.emit(metrics.SyncMetric{Op: "feed", Result: string(m.status), Err: m.err})
	s.publishStatus()
}

func (s *ArticleSync) publishList() {
	s.version++
	snap := Snapshot{Version: s.version, Sort: s.list.Sort(), Articles: s.list.Items()}
	s.snapshot.Store(&snap)
	s.changes.Publish(snap)
	metrics.EmitListSize(s.sink, len(snap.Articles))
}

func (s *ArticleSync) publishStatus() {
	st := s.st
	s.status.Store(&st)
	s.statuses.Publish(st)
}
