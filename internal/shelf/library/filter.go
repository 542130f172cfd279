// Package library holds the pure book operations the CLI runs on data
// fetched for the signed-in user.
package library

import (
	"strings"

	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// Filter keeps books matching every non-empty field. Text fields match
// case-insensitively; Query searches title and author.
type Filter struct {
	Status shelfsdk.BookStatus
	Genre  string
	Author string
	Query  string
	Tag    string
}

// IsZero reports whether f matches every book.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match reports whether b satisfies every set field of f.
func (f Filter) Match(b shelfsdk.Book) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Genre != "" && !strings.EqualFold(b.Genre, f.Genre) {
		return false
	}
	if f.Author != "" && !containsFold(b.Author, f.Author) {
		return false
	}
	if f.Query != "" && !containsFold(b.Title, f.Query) && !containsFold(b.Author, f.Query) {
		return false
	}
	if f.Tag != "" && !hasTag(b.Tags, f.Tag) {
		return false
	}
	return true
}

// Apply returns the matching books in their original order.
func Apply(books []shelfsdk.Book, f Filter) []shelfsdk.Book {
	out := make([]shelfsdk.Book, 0, len(books))
	for _, b := range books {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
