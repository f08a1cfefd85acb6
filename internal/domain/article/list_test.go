package article

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func rec(id string, createdOffset time.Duration) Article {
	ts := t0.Add(createdOffset)
	return Article{ID: id, Title: "title " + id, Content: "body", AuthorID: "u1", CreatedAt: ts, UpdatedAt: ts}
}

func ids(items []Article) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}

func insert(a Article) Change { return Change{Kind: Inserted, New: &a, Origin: OriginRemote} }
func update(a Article) Change { return Change{Kind: Updated, New: &a, Origin: OriginRemote} }
func del(id string) Change    { return Change{Kind: Deleted, Old: &Article{ID: id}, Origin: OriginRemote} }

func TestList_ReloadThenDeleteScenario(t *testing.T) {
	l := NewList(SortCreatedDesc)
	l.Replace([]Article{rec("1", 0), rec("2", time.Minute)})
	assert.Equal(t, []string{"2", "1"}, ids(l.Items()))

	assert.True(t, l.Apply(del("1")))
	assert.Equal(t, []string{"2"}, ids(l.Items()))

	assert.False(t, l.Apply(del("1")), "duplicate delete must be a no-op")
	assert.Equal(t, []string{"2"}, ids(l.Items()))
}

func TestList_InsertAtSortPosition(t *testing.T) {
	l := NewList(SortCreatedDesc)
	l.Replace([]Article{rec("a", 0), rec("c", 2*time.Minute)})

	require.True(t, l.Apply(insert(rec("b", time.Minute))))
	assert.Equal(t, []string{"c", "b", "a"}, ids(l.Items()))
}

func TestList_ApplyIsIdempotent(t *testing.T) {
	l := NewList(SortCreatedDesc)
	l.Replace([]Article{rec("1", 0)})

	ins := insert(rec("2", time.Minute))
	assert.True(t, l.Apply(ins))
	once := l.Items()
	assert.False(t, l.Apply(ins))
	assert.Equal(t, once, l.Items())

	edited := rec("1", 0)
	edited.Title = "edited"
	edited.UpdatedAt = t0.Add(time.Hour)
	up := update(edited)
	assert.True(t, l.Apply(up))
	once = l.Items()
	assert.False(t, l.Apply(up))
	assert.Equal(t, once, l.Items())
}

func TestList_DuplicateInsertActsAsUpdate(t *testing.T) {
	l := NewList(SortCreatedDesc)
	l.Replace([]Article{rec("1", 0)})

	changed := rec("1", 0)
	changed.Title = "new title"
	assert.True(t, l.Apply(insert(changed)))

	got, ok := l.Get("1")
	require.True(t, ok)
	assert.Equal(t, "new title", got.Title)
	assert.Equal(t, 1, l.Len())
}

func TestList_UpdateOfUnknownIDInserts(t *testing.T) {
	l := NewList(SortCreatedDesc)
	assert.True(t, l.Apply(update(rec("9", 0))))
	assert.Equal(t, []string{"9"}, ids(l.Items()))
}

func TestList_UpdateRepositionsUnderUpdatedSort(t *testing.T) {
	l := NewList(SortUpdatedDesc)
	l.Replace([]Article{rec("a", 0), rec("b", time.Minute)})
	assert.Equal(t, []string{"b", "a"}, ids(l.Items()))

	a := rec("a", 0)
	a.UpdatedAt = t0.Add(time.Hour)
	l.Apply(update(a))
	assert.Equal(t, []string{"a", "b"}, ids(l.Items()))
}

func TestList_ReplaceDropsDuplicatesAndEmptyIDs(t *testing.T) {
	l := NewList(SortCreatedAsc)
	first := rec("1", 0)
	second := rec("1", 0)
	second.Title = "later"
	l.Replace([]Article{first, {ID: ""}, second, rec("2", time.Minute)})

	assert.Equal(t, []string{"1", "2"}, ids(l.Items()))
	got, _ := l.Get("1")
	assert.Equal(t, "later", got.Title)
}

func TestList_SetSort(t *testing.T) {
	l := NewList(SortCreatedDesc)
	b := rec("b", 0)
	b.Title = "Banana"
	a := rec("a", time.Minute)
	a.Title = "apple"
	l.Replace([]Article{a, b})

	assert.False(t, l.SetSort(SortCreatedDesc))
	assert.True(t, l.SetSort(SortTitleAsc))
	assert.Equal(t, []string{"a", "b"}, ids(l.Items()))
	assert.True(t, l.SetSort(SortCreatedAsc))
	assert.Equal(t, []string{"b", "a"}, ids(l.Items()))
}

func TestList_ApplyIgnoresMalformedChanges(t *testing.T) {
	l := NewList(SortCreatedDesc)
	assert.False(t, l.Apply(Change{Kind: Inserted}))
	assert.False(t, l.Apply(Change{Kind: Inserted, New: &Article{}}))
	assert.False(t, l.Apply(Change{Kind: Inserted, Old: &Article{ID: "x"}}))
	assert.False(t, l.Apply(Change{Kind: "truncated", New: &Article{ID: "x"}}))
	assert.Equal(t, 0, l.Len())
}

// TestList_RandomSequencesKeepInvariants applies random event sequences under every
// sort key and checks ordering and uniqueness after each step.
func TestList_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, key := range SortKeys() {
		t.Run(string(key), func(t *testing.T) {
			l := NewList(key)
			for step := 0; step < 500; step++ {
				id := fmt.Sprintf("%d", rng.Intn(20))
				a := rec(id, time.Duration(rng.Intn(50))*time.Minute)
				a.Title = fmt.Sprintf("t%02d", rng.Intn(30))
				a.UpdatedAt = a.CreatedAt.Add(time.Duration(rng.Intn(50)) * time.Minute)

				switch rng.Intn(4) {
				case 0:
					l.Apply(insert(a))
				case 1:
					l.Apply(update(a))
				case 2:
					l.Apply(del(id))
				default:
					l.SetSort(SortKeys()[rng.Intn(len(SortKeys()))])
				}

				items := l.Items()
				require.True(t, slices.IsSortedFunc(items, l.Sort().Compare), "step %d not sorted", step)
				seen := map[string]bool{}
				for _, it := range items {
					require.False(t, seen[it.ID], "step %d duplicate id %s", step, it.ID)
					seen[it.ID] = true
				}
			}
		})
	}
}
