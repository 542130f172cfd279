/*
Package shelfsdk is a client for the digital library REST backend.

# Overview

The Client is stateless: it performs one request per call, translates the
`{success, data, message}` envelope into typed results and never retries.
Session policy (storing tokens, refreshing, logging out on failure) lives in
the caller.

	client := shelfsdk.NewClient("http://localhost:3000")

	res, err := client.Login(ctx, shelfsdk.Credentials{Email: "a@b.com", Password: "x"})
	if err != nil {
		fmt.Println(err) // server message, or "Login failed"
	}

	books, err := client.ListBooks(ctx, res.Tokens.AccessToken)

# Token expiry

The backend returns bare tokens. ExpiresAt is taken from the access token's
exp claim when present, then from an expiresIn field, and falls back to the
client's DefaultTokenTTL.

# Errors

Every failure is an *APIError whose Error() is the user-facing message.
Check for rejected credentials with:

	if errors.Is(err, shelfsdk.ErrUnauthorized) { ... }

Logout never fails: the server call is best-effort and problems are logged.
*/
package shelfsdk
