package fakeapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/juanclpzq/digital-library/pkg/cryptox"
	"github.com/juanclpzq/digital-library/pkg/httpx"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
	"github.com/juanclpzq/digital-library/pkg/slogx"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds shelfsdk.Credentials
	if err := httpx.DecodeJSON(r, &creds); err != nil {
		s.fail(w, r, errBadBody)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.authenticateLocked(creds)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeAuthLocked(w, r, http.StatusOK, acc)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg shelfsdk.Registration
	if err := httpx.DecodeJSON(r, &reg); err != nil {
		s.fail(w, r, errBadBody)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.createLocked(reg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeAuthLocked(w, r, http.StatusCreated, acc)
}

func (s *Server) writeAuthLocked(w http.ResponseWriter, r *http.Request, status int, acc *account) {
	pair, err := s.issueLocked(acc, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user := acc.user
	httpx.WriteData(w, status, authResponse{User: &user, tokenPair: pair})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil || body.RefreshToken == "" {
		s.fail(w, r, errBadRefresh)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.redeemLocked(body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.issueLocked(acc, s.rotate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, pair)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.currentLocked(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, acc.user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update shelfsdk.ProfileUpdate
	if err := httpx.DecodeJSON(r, &update); err != nil {
		s.fail(w, r, errBadBody)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.currentLocked(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if update.FirstName != nil {
		acc.user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		acc.user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Avatar != nil {
		avatar := *update.Avatar
		acc.user.Avatar = &avatar
	}
	if update.Preferences != nil {
		prefs := *update.Preferences
		acc.user.Preferences = &prefs
	}
	acc.user.UpdatedAt = s.now().UTC()

	httpx.WriteData(w, http.StatusOK, acc.user)
}

// handleLogout revokes the presented access token and the refresh token in
// the body, if any.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = httpx.DecodeJSON(r, &body)

	s.mu.Lock()
	defer s.mu.Unlock()

	if claims, ok := httpx.ClaimsFromContext(r.Context()); ok {
		s.revoked[claims.ID] = struct{}{}
	}
	if body.RefreshToken != "" {
		delete(s.refresh, cryptox.FingerprintToken(body.RefreshToken))
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{Success: true, Message: "Logged out"})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.currentLocked(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	books := append([]shelfsdk.Book{}, s.books[acc.user.ID]...)
	httpx.WriteData(w, http.StatusOK, books)
}

func (s *Server) currentLocked(r *http.Request) (*account, error) {
	id, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		return nil, errUnknownUser
	}
	acc, ok := s.accounts[id]
	if !ok {
		return nil, errUnknownUser
	}
	return acc, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var f *failure
	if errors.As(err, &f) {
		httpx.WriteError(w, f.status, f.message)
		return
	}
	slogx.FromContext(r.Context()).Error("request failed", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
}
