package article

import (
	"slices"
)

// List is the canonical ordered article cache. It holds at most one record per ID
// and is kept sorted by its SortKey after every mutation.
// List is not safe for concurrent use; the sync loop owns it.
type List struct {
	sort  SortKey
	items []Article
}

// NewList returns an empty list ordered by key.
func NewList(key SortKey) *List {
	if key == "" {
		key = DefaultSort
	}
	return &List{sort: key}
}

// Sort returns the active sort key.
func (l *List) Sort() SortKey { return l.sort }

// Len returns the number of records.
func (l *List) Len() int { return len(l.items) }

// Items returns a copy of the ordered records.
func (l *List) Items() []Article { return slices.Clone(l.items) }

// Get returns the record with id.
func (l *List) Get(id string) (Article, bool) {
	if i := l.indexOf(id); i >= 0 {
		return l.items[i], true
	}
	return Article{}, false
}

// Replace swaps the whole content for records. Duplicate IDs keep the last occurrence.
func (l *List) Replace(records []Article) {
	seen := make(map[string]int, len(records))
	items := make([]Article, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if i, ok := seen[r.ID]; ok {
			items[i] = r
			continue
		}
		seen[r.ID] = len(items)
		items = append(items, r)
	}
	slices.SortFunc(items, l.sort.Compare)
	l.items = items
}

// SetSort changes the ordering and re-sorts. It reports whether the key changed.
func (l *List) SetSort(key SortKey) bool {
	if key == "" || key == l.sort {
		return false
	}
	l.sort = key
	slices.SortFunc(l.items, l.sort.Compare)
	return true
}

// Apply merges a change into the list and reports whether the list changed.
//
// Inserts of a known ID behave as updates, updates of an unknown ID behave as
// inserts and deletes of an unknown ID are no-ops, which makes every change
// idempotent under duplicate or reordered delivery.
func (l *List) Apply(c Change) bool {
	rec := c.Record()
	if rec == nil || rec.ID == "" {
		return false
	}
	switch c.Kind {
	case Deleted:
		return l.remove(rec.ID)
	case Inserted, Updated:
		if c.New == nil {
			return false
		}
		return l.upsert(*c.New)
	default:
		return false
	}
}

func (l *List) upsert(a Article) bool {
	if i := l.indexOf(a.ID); i >= 0 {
		if sameArticle(l.items[i], a) {
			return false
		}
		l.items = slices.Delete(l.items, i, i+1)
	}
	pos, _ := slices.BinarySearchFunc(l.items, a, l.sort.Compare)
	l.items = slices.Insert(l.items, pos, a)
	return true
}

func (l *List) remove(id string) bool {
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	return true
}

func (l *List) indexOf(id string) int {
	return slices.IndexFunc(l.items, func(a Article) bool { return a.ID == id })
}

func sameArticle(a, b Article) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Content == b.Content &&
		a.Author == b.Author &&
		a.AuthorID == b.AuthorID &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}
