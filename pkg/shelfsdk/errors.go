package shelfsdk

import (
	"errors"
	"log/slog"
	"net/http"
)

// ErrUnauthorized matches any *APIError caused by a 401 response.
var ErrUnauthorized = errors.New("shelfsdk: unauthorized")

var errMalformedResponse = errors.New("malformed response")

// APIError is returned by every failing Client call. Error() yields Message,
// which is safe to show to a user.
type APIError struct {
	// Op names the client operation, e.g. "login".
	Op string

	// StatusCode is 0 when the request never got a response.
	StatusCode int

	Message string

	// ServerMessage is the backend's message, if it sent one.
	ServerMessage string

	Err error
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// LogValue keeps the cause in structured logs without leaking it to users.
func (e *APIError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("op", e.Op),
		slog.Int("status", e.StatusCode),
		slog.String("message", e.Message),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("cause", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

// operation describes how one endpoint reports failures.
type operation struct {
	name     string
	fallback string
	// passthrough surfaces the server's message instead of the fallback.
	passthrough bool
}

var (
	opLogin         = operation{name: "login", fallback: "Login failed", passthrough: true}
	opRegister      = operation{name: "register", fallback: "Registration failed", passthrough: true}
	opRefresh       = operation{name: "refresh", fallback: "Token refresh failed"}
	opGetProfile    = operation{name: "get_profile", fallback: "Failed to get profile"}
	opUpdateProfile = operation{name: "update_profile", fallback: "Failed to update profile", passthrough: true}
	opLogout        = operation{name: "logout", fallback: "Logout failed"}
	opListBooks     = operation{name: "list_books", fallback: "Failed to fetch books", passthrough: true}
)

func (op operation) fail(status int, serverMessage string, cause error) *APIError {
	msg := op.fallback
	if op.passthrough && serverMessage != "" {
		msg = serverMessage
	}
	return &APIError{
		Op:            op.name,
		StatusCode:    status,
		Message:       msg,
		ServerMessage: serverMessage,
		Err:           cause,
	}
}
