package article

import (
	"fmt"
	"strings"
)

// SortKey selects the ordering of the canonical list.
type SortKey string

const (
	SortCreatedDesc SortKey = "created_desc"
	SortCreatedAsc  SortKey = "created_asc"
	SortUpdatedDesc SortKey = "updated_desc"
	SortTitleAsc    SortKey = "title_asc"
)

// DefaultSort is newest first, matching the remote default.
const DefaultSort = SortCreatedDesc

// SortKeys lists every supported key.
func SortKeys() []SortKey {
	return []SortKey{SortCreatedDesc, SortCreatedAsc, SortUpdatedDesc, SortTitleAsc}
}

// ParseSortKey validates a raw sort key. An empty string yields DefaultSort.
func ParseSortKey(raw string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(raw)))
	if k == "" {
		return DefaultSort, nil
	}
	for _, known := range SortKeys() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", raw)
}

// Column returns the store column and direction for the key.
func (k SortKey) Column() (column string, ascending bool) {
	switch k {
	case SortCreatedAsc:
		return "created_at", true
	case SortUpdatedDesc:
		return "updated_at", false
	case SortTitleAsc:
		return "title", true
	default:
		return "created_at", false
	}
}

// Compare orders a before b under key k. Ties fall back to ID so the order is total.
func (k SortKey) Compare(a, b Article) int {
	var c int
	switch k {
	case SortCreatedAsc:
		c = a.CreatedAt.Compare(b.CreatedAt)
	case SortUpdatedDesc:
		c = b.UpdatedAt.Compare(a.UpdatedAt)
	case SortTitleAsc:
		c = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		if c == 0 {
			c = strings.Compare(a.Title, b.Title)
		}
	default:
		c = b.CreatedAt.Compare(a.CreatedAt)
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
