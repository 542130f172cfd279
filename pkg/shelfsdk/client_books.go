package shelfsdk

import (
	"context"
	"net/http"
)

// ListBooks returns the signed-in user's collection.
func (c *Client) ListBooks(ctx context.Context, accessToken string) ([]Book, error) {
	books, err := call[[]Book](ctx, c, opListBooks, http.MethodGet, "/api/books", accessToken, nil)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []Book{}
	}
	return books, nil
}
