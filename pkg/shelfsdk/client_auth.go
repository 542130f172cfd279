package shelfsdk

import (
	"context"
	"io"
	"net/http"
)

// Login exchanges credentials for a user and a token pair.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	return c.authenticate(ctx, opLogin, "/auth/login", creds)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResult, error) {
	return c.authenticate(ctx, opRegister, "/auth/register", reg)
}

func (c *Client) authenticate(ctx context.Context, op operation, path string, body any) (*AuthResult, error) {
	payload, err := call[authPayload](ctx, c, op, http.MethodPost, path, "", body)
	if err != nil {
		return nil, err
	}
	if payload.User == nil || payload.Token == "" {
		return nil, op.fail(http.StatusOK, "", errMalformedResponse)
	}

	return &AuthResult{
		User:   payload.User,
		Tokens: c.tokens(payload.tokenPayload, ""),
	}, nil
}

// Refresh trades a refresh token for a new pair. When the server does not
// rotate the refresh token, the one passed in is kept.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	body := map[string]string{"refreshToken": refreshToken}

	payload, err := call[tokenPayload](ctx, c, opRefresh, http.MethodPost, "/auth/refresh", "", body)
	if err != nil {
		return nil, err
	}
	if payload.Token == "" {
		return nil, opRefresh.fail(http.StatusOK, "", errMalformedResponse)
	}

	return c.tokens(payload, refreshToken), nil
}

// GetProfile returns the user that accessToken belongs to.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (*User, error) {
	user, err := call[*User](ctx, c, opGetProfile, http.MethodGet, "/auth/me", accessToken, nil)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, opGetProfile.fail(http.StatusOK, "", errMalformedResponse)
	}
	return user, nil
}

// UpdateProfile sends the changed fields and returns the server's copy of
// the user.
func (c *Client) UpdateProfile(ctx context.Context, accessToken string, update ProfileUpdate) (*User, error) {
	user, err := call[*User](ctx, c, opUpdateProfile, http.MethodPatch, "/auth/profile", accessToken, update)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, opUpdateProfile.fail(http.StatusOK, "", errMalformedResponse)
	}
	return user, nil
}

// Logout tells the server to revoke the session. It is best-effort: every
// failure is logged and swallowed.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) {
	body := map[string]string{"refreshToken": refreshToken}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/logout", accessToken, body)
	if err != nil {
		c.Logger.Warn("server logout failed", "err", opLogout.fail(0, "", err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.Logger.Warn("server logout rejected", "status", resp.StatusCode)
	}
}
