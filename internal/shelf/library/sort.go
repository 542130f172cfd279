package library

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

// SortKey names the field books are ordered by.
type SortKey string

const (
	SortTitle    SortKey = "title"
	SortAuthor   SortKey = "author"
	SortRating   SortKey = "rating"
	SortPages    SortKey = "pages"
	SortAdded    SortKey = "added"
	SortFinished SortKey = "finished"
)

// ParseSortKey maps a flag value to a SortKey. Empty means SortAdded.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortTitle, SortAuthor, SortRating, SortPages, SortAdded, SortFinished:
		return k, nil
	case "":
		return SortAdded, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// Sort returns a sorted copy. Ties keep their input order. Books that were
// never finished sort after finished ones in both directions.
func Sort(books []shelfsdk.Book, key SortKey, desc bool) []shelfsdk.Book {
	out := slices.Clone(books)
	compare := comparator(key)
	slices.SortStableFunc(out, func(a, b shelfsdk.Book) int {
		if key == SortFinished {
			switch {
			case a.FinishedAt == nil && b.FinishedAt == nil:
				return 0
			case a.FinishedAt == nil:
				return 1
			case b.FinishedAt == nil:
				return -1
			}
		}
		c := compare(a, b)
		if desc {
			return -c
		}
		return c
	})
	return out
}

func comparator(key SortKey) func(a, b shelfsdk.Book) int {
	switch key {
	case SortTitle:
		return func(a, b shelfsdk.Book) int { return cmpFold(a.Title, b.Title) }
	case SortAuthor:
		return func(a, b shelfsdk.Book) int { return cmpFold(a.Author, b.Author) }
	case SortRating:
		return func(a, b shelfsdk.Book) int { return cmp.Compare(a.Rating, b.Rating) }
	case SortPages:
		return func(a, b shelfsdk.Book) int { return cmp.Compare(a.Pages, b.Pages) }
	case SortFinished:
		return func(a, b shelfsdk.Book) int { return a.FinishedAt.Compare(*b.FinishedAt) }
	default:
		return func(a, b shelfsdk.Book) int { return a.CreatedAt.Compare(b.CreatedAt) }
	}
}

func cmpFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
