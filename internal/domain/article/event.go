package article

import (
	"fmt"
	"strings"
)

// ChangeKind is the kind of row-level change delivered by the feed.
type ChangeKind string

const (
	Inserted ChangeKind = "inserted"
	Updated  ChangeKind = "updated"
	Deleted  ChangeKind = "deleted"
)

// ParseChangeKind accepts both the feed's wire names (INSERT/UPDATE/DELETE) and the kind names.
func ParseChangeKind(raw string) (ChangeKind, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "INSERT", "INSERTED":
		return Inserted, nil
	case "UPDATE", "UPDATED":
		return Updated, nil
	case "DELETE", "DELETED":
		return Deleted, nil
	}
	return "", fmt.Errorf("unknown change kind %q", raw)
}

// Origin records where a change came from.
type Origin string

const (
	OriginRemote Origin = "remote"
	OriginLocal  Origin = "local"
)

// Change is a single mutation to merge into the list.
// For deletes only Old (or New) needs an ID.
type Change struct {
	Kind   ChangeKind
	New    *Article
	Old    *Article
	Origin Origin
}

// Record returns the article the change refers to.
func (c Change) Record() *Article {
	if c.New != nil {
		return c.New
	}
	return c.Old
}

// FeedStatus is the state of the change-feed subscription.
type FeedStatus string

const (
	FeedIdle       FeedStatus = "idle"
	FeedSubscribed FeedStatus = "subscribed"
	FeedClosed     FeedStatus = "closed"
	FeedError      FeedStatus = "error"
)
