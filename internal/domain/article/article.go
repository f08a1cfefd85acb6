// Package article contains the article record, its ordering rules and the
// canonical in-memory list that remote events and local writes are merged into.
package article

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength is the maximum title length in characters.
const MaxTitleLength = 100

// Article is a single article row as stored remotely.
type Article struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Edited reports whether the article was updated after creation.
func (a Article) Edited() bool { return !a.UpdatedAt.Equal(a.CreatedAt) }

// Preview returns the first n characters of the content, suffixed with "..." when truncated.
func (a Article) Preview(n int) string {
	if n <= 0 || utf8.RuneCountInString(a.Content) <= n {
		return a.Content
	}
	runes := []rune(a.Content)
	return string(runes[:n]) + "..."
}

// Draft carries the user-editable fields for a create or update.
type Draft struct {
	Title   string
	Content string
}

// Validation errors returned by Draft.Validate.
var (
	ErrTitleRequired = errors.New("title is required")
	ErrTitleTooLong  = errors.New("title exceeds 100 characters")
	ErrContentEmpty  = errors.New("content is required")
)

// Validate checks the draft before any remote call is made.
func (d Draft) Validate() error {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if strings.TrimSpace(d.Content) == "" {
		return ErrContentEmpty
	}
	return nil
}

// Normalized returns the draft with the title trimmed.
func (d Draft) Normalized() Draft {
	return Draft{Title: strings.TrimSpace(d.Title), Content: d.Content}
}
