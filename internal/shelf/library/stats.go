package library

import (
	"cmp"
	"slices"
	"time"

	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

const topAuthors = 5

// AuthorCount is the number of books by one author.
type AuthorCount struct {
	Author string `json:"author"`
	Books  int    `json:"books"`
}

// Stats summarises a library.
type Stats struct {
	Total            int                         `json:"total"`
	ByStatus         map[shelfsdk.BookStatus]int `json:"byStatus"`
	ByGenre          map[string]int              `json:"byGenre"`
	PagesRead        int                         `json:"pagesRead"`
	AverageRating    float64                     `json:"averageRating"`
	FinishedThisYear int                         `json:"finishedThisYear"`
	CurrentlyReading []shelfsdk.Book             `json:"currentlyReading"`
	TopAuthors       []AuthorCount               `json:"topAuthors"`
}

// ComputeStats summarises a collection. Pages read counts whole books that
// are read plus progress on books being read. Unrated books do not affect
// the average.
func ComputeStats(books []shelfsdk.Book, now time.Time) Stats {
	st := Stats{
		Total:            len(books),
		ByStatus:         map[shelfsdk.BookStatus]int{},
		ByGenre:          map[string]int{},
		CurrentlyReading: []shelfsdk.Book{},
	}

	var ratingSum, rated int
	authors := map[string]int{}
	for _, b := range books {
		st.ByStatus[b.Status]++
		if b.Genre != "" {
			st.ByGenre[b.Genre]++
		}
		if b.Author != "" {
			authors[b.Author]++
		}
		if b.Rating > 0 {
			ratingSum += b.Rating
			rated++
		}

		switch b.Status {
		case shelfsdk.StatusRead:
			st.PagesRead += b.Pages
			if b.FinishedAt != nil && b.FinishedAt.In(now.Location()).Year() == now.Year() {
				st.FinishedThisYear++
			}
		case shelfsdk.StatusReading:
			progress := max(b.CurrentPage, 0)
			if b.Pages > 0 {
				progress = min(progress, b.Pages)
			}
			st.PagesRead += progress
			st.CurrentlyReading = append(st.CurrentlyReading, b)
		}
	}
	if rated > 0 {
		st.AverageRating = float64(ratingSum) / float64(rated)
	}

	st.TopAuthors = make([]AuthorCount, 0, len(authors))
	for a, n := range authors {
		st.TopAuthors = append(st.TopAuthors, AuthorCount{Author: a, Books: n})
	}
	slices.SortFunc(st.TopAuthors, func(a, b AuthorCount) int {
		if c := cmp.Compare(b.Books, a.Books); c != 0 {
			return c
		}
		return cmp.Compare(a.Author, b.Author)
	})
	if len(st.TopAuthors) > topAuthors {
		st.TopAuthors = st.TopAuthors[:topAuthors]
	}
	return st
}
