package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/juanclpzq/digital-library/pkg/cryptox"
	"github.com/juanclpzq/digital-library/pkg/jwtx"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
)

var errRevoked = errors.New("fakeapi: token revoked")

// failure is an error the client is meant to see: its message goes into the
// response envelope as is.
type failure struct {
	status  int
	message string
}

func (f *failure) Error() string { return f.message }

var (
	errEmailTaken   = &failure{http.StatusConflict, "Email already registered"}
	errBadLogin     = &failure{http.StatusUnauthorized, "Invalid email or password"}
	errBadRefresh   = &failure{http.StatusUnauthorized, "Invalid refresh token"}
	errUnknownUser  = &failure{http.StatusNotFound, "User not found"}
	errMissingField = &failure{http.StatusBadRequest, "Email and password are required"}
	errBadBody      = &failure{http.StatusBadRequest, "Invalid request body"}
)

type tokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type authResponse struct {
	User *shelfsdk.User `json:"user"`
	tokenPair
}

// SeedUser creates an account directly, bypassing /auth/register.
func (s *Server) SeedUser(reg shelfsdk.Registration) (shelfsdk.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.createLocked(reg)
	if err != nil {
		return shelfsdk.User{}, err
	}
	return acc.user, nil
}

// SeedBooks appends books to a user's collection, assigning ids where
// missing.
func (s *Server) SeedBooks(userID string, books ...shelfsdk.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range books {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = s.now().UTC()
		}
		s.books[userID] = append(s.books[userID], b)
	}
}

// RevokeSessions invalidates every access and refresh token of a user, as
// an administrator or a password change would.
func (s *Server) RevokeSessions(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeLocked(userID)
}

// DeleteUser removes the account. Outstanding tokens stop working.
func (s *Server) DeleteUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return
	}
	s.revokeLocked(userID)
	delete(s.byEmail, normalizeEmail(acc.user.Email))
	delete(s.accounts, userID)
	delete(s.books, userID)
}

func (s *Server) revokeLocked(userID string) {
	for _, jti := range s.issued[userID] {
		s.revoked[jti] = struct{}{}
	}
	delete(s.issued, userID)
	for fp, rec := range s.refresh {
		if rec.userID == userID {
			delete(s.refresh, fp)
		}
	}
}

func (s *Server) createLocked(reg shelfsdk.Registration) (*account, error) {
	email := normalizeEmail(reg.Email)
	if email == "" || reg.Password == "" {
		return nil, errMissingField
	}
	if _, taken := s.byEmail[email]; taken {
		return nil, errEmailTaken
	}

	hash, err := cryptox.HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	acc := &account{
		user: shelfsdk.User{
			ID:        uuid.NewString(),
			Email:     email,
			FirstName: strings.TrimSpace(reg.FirstName),
			LastName:  strings.TrimSpace(reg.LastName),
			Preferences: &shelfsdk.Preferences{
				Theme:         "light",
				PageSize:      20,
				Notifications: shelfsdk.NotificationPrefs{Email: true},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		passwordHash: hash,
	}
	s.accounts[acc.user.ID] = acc
	s.byEmail[email] = acc.user.ID
	return acc, nil
}

func (s *Server) authenticateLocked(creds shelfsdk.Credentials) (*account, error) {
	id, ok := s.byEmail[normalizeEmail(creds.Email)]
	if !ok {
		return nil, errBadLogin
	}
	acc := s.accounts[id]
	if err := cryptox.VerifyPassword(creds.Password, acc.passwordHash); err != nil {
		return nil, errBadLogin
	}
	return acc, nil
}

// issueLocked mints an access token and, when withRefresh is set, a new
// refresh token.
func (s *Server) issueLocked(acc *account, withRefresh bool) (tokenPair, error) {
	claims := jwtx.NewAccessClaims(acc.user.ID, acc.user.Email, issuer, s.accessTTL, s.now())
	access, err := s.signer.Sign(claims)
	if err != nil {
		return tokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	s.issued[acc.user.ID] = append(s.issued[acc.user.ID], claims.ID)

	pair := tokenPair{Token: access, ExpiresIn: int64(s.accessTTL.Seconds())}
	if withRefresh {
		refresh, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return tokenPair{}, err
		}
		s.refresh[cryptox.FingerprintToken(refresh)] = refreshRecord{
			userID:    acc.user.ID,
			expiresAt: s.now().Add(s.refreshTTL),
		}
		pair.RefreshToken = refresh
	}
	return pair, nil
}

// redeemLocked validates a refresh token and, when rotating, consumes it.
func (s *Server) redeemLocked(token string) (*account, error) {
	fp := cryptox.FingerprintToken(token)
	rec, ok := s.refresh[fp]
	if !ok || !s.now().Before(rec.expiresAt) {
		delete(s.refresh, fp)
		return nil, errBadRefresh
	}
	acc, ok := s.accounts[rec.userID]
	if !ok {
		delete(s.refresh, fp)
		return nil, errBadRefresh
	}
	if s.rotate {
		delete(s.refresh, fp)
	}
	return acc, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
