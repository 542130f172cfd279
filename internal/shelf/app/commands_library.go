package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/juanclpzq/digital-library/internal/shelf/guard"
	"github.com/juanclpzq/digital-library/internal/shelf/library"
	"github.com/juanclpzq/digital-library/internal/shelf/session"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

func (a *Application) booksCmd(args []string) (action, error) {
	fs := a.flags("books")
	var f library.Filter
	status := fs.String("status", "", "to-read, reading or read")
	fs.StringVar(&f.Genre, "genre", "", "exact genre")
	fs.StringVar(&f.Author, "author", "", "author contains")
	fs.StringVar(&f.Query, "q", "", "title or author contains")
	fs.StringVar(&f.Tag, "tag", "", "has tag")
	sortBy := fs.String("sort", "added", "title, author, rating, pages, added or finished")
	desc := fs.Bool("desc", false, "reverse the order")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	key, err := library.ParseSortKey(*sortBy)
	if err != nil {
		return nil, err
	}
	if f.Status, err = parseStatus(*status); err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		books, err := a.fetchBooks(ctx)
		if err != nil {
			return err
		}
		books = library.Sort(library.Apply(books, f), key, *desc)

		if *asJSON {
			return a.printJSON(books)
		}
		if len(books) == 0 {
			fmt.Fprintln(a.out, "No books found")
			return nil
		}

		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TITLE\tAUTHOR\tSTATUS\tRATING\tPROGRESS")
		for _, b := range books {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.Title, b.Author, b.Status, stars(b.Rating), progress(b))
		}
		return tw.Flush()
	}, nil
}

// statsCmd fetches the books and the profile concurrently; the profile
// only decorates the header.
func (a *Application) statsCmd(args []string) (action, error) {
	fs := a.flags("stats")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		token, err := guard.MustAccess(ctx).GetValidToken(ctx)
		if err != nil {
			return err
		}

		var (
			books []shelfsdk.Book
			user  *shelfsdk.User
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			books, err = a.client.ListBooks(gctx, token)
			return err
		})
		g.Go(func() error {
			var err error
			user, err = a.client.GetProfile(gctx, token)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		st := library.ComputeStats(books, time.Now())
		if *asJSON {
			return a.printJSON(st)
		}

		fmt.Fprintf(a.out, "Library of %s\n\n", user.DisplayName())
		fmt.Fprintf(a.out, "Books:              %d\n", st.Total)
		for _, s := range []shelfsdk.BookStatus{shelfsdk.StatusToRead, shelfsdk.StatusReading, shelfsdk.StatusRead} {
			fmt.Fprintf(a.out, "  %-17s %d\n", s+":", st.ByStatus[s])
		}
		fmt.Fprintf(a.out, "Pages read:         %d\n", st.PagesRead)
		fmt.Fprintf(a.out, "Average rating:     %.1f\n", st.AverageRating)
		fmt.Fprintf(a.out, "Finished this year: %d\n", st.FinishedThisYear)
		if len(st.TopAuthors) > 0 {
			fmt.Fprintln(a.out, "Top authors:")
			for _, ac := range st.TopAuthors {
				fmt.Fprintf(a.out, "  %s (%d)\n", ac.Author, ac.Books)
			}
		}
		for _, b := range st.CurrentlyReading {
			fmt.Fprintf(a.out, "Reading: %s, %s\n", b.Title, progress(b))
		}
		return nil
	}, nil
}

func (a *Application) profileCmd(args []string) (action, error) {
	fs := a.flags("profile")
	first := fs.String("first", "", "new first name")
	last := fs.String("last", "", "new last name")
	avatar := fs.String("avatar", "", "new avatar URL")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	set := setFlags(fs)

	return func(ctx context.Context) error {
		var update shelfsdk.ProfileUpdate
		if set["first"] {
			update.FirstName = first
		}
		if set["last"] {
			update.LastName = last
		}
		if set["avatar"] {
			update.Avatar = avatar
		}

		if len(set) > 0 && !a.session.UpdateProfile(ctx, update) {
			return errors.New(a.session.Error())
		}
		user, err := signedInUser(ctx)
		if err != nil {
			return err
		}
		return a.printJSON(user)
	}, nil
}

func (a *Application) prefsCmd(args []string) (action, error) {
	fs := a.flags("prefs")
	theme := fs.String("theme", "", "light or dark")
	pageSize := fs.Int("page-size", 0, "books per page")
	emailN := fs.Bool("email-notifications", false, "receive email notifications")
	reminders := fs.Bool("reminders", false, "receive reading reminders")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	set := setFlags(fs)
	if set["page-size"] && *pageSize <= 0 {
		return nil, fmt.Errorf("%w: -page-size must be positive", errUsage)
	}

	return func(ctx context.Context) error {
		var update session.PreferencesUpdate
		if set["theme"] {
			update.Theme = theme
		}
		if set["page-size"] {
			update.PageSize = pageSize
		}
		if set["email-notifications"] {
			update.EmailNotifications = emailN
		}
		if set["reminders"] {
			update.Reminders = reminders
		}

		if len(set) > 0 && !a.session.UpdatePreferences(ctx, update) {
			return errors.New(a.session.Error())
		}

		user, err := signedInUser(ctx)
		if err != nil {
			return err
		}
		prefs := user.Preferences
		if prefs == nil {
			prefs = &shelfsdk.Preferences{}
		}
		return a.printJSON(prefs)
	}, nil
}

func (a *Application) fetchBooks(ctx context.Context) ([]shelfsdk.Book, error) {
	token, err := guard.MustAccess(ctx).GetValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return a.client.ListBooks(ctx, token)
}

func (a *Application) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseStatus(s string) (shelfsdk.BookStatus, error) {
	switch st := shelfsdk.BookStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "", shelfsdk.StatusToRead, shelfsdk.StatusReading, shelfsdk.StatusRead:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

func stars(rating int) string {
	if rating <= 0 {
		return "-"
	}
	return strings.Repeat("*", min(rating, 5))
}

func progress(b shelfsdk.Book) string {
	switch {
	case b.Status == shelfsdk.StatusRead:
		return "done"
	case b.Pages > 0 && b.CurrentPage > 0:
		return strconv.Itoa(b.CurrentPage*100/b.Pages) + "%"
	default:
		return "-"
	}
}
