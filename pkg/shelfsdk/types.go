package shelfsdk

import (
	"errors"
	"strings"
	"time"
)

// User is an account as returned by the API.
type User struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	Avatar      *string      `json:"avatar,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// DisplayName joins the first and last name, falling back to the email.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Validate rejects records that cannot identify a user.
func (u *User) Validate() error {
	if u == nil {
		return errors.New("user is null")
	}
	if u.ID == "" {
		return errors.New("user id is required")
	}
	return nil
}

// Preferences are per-user display and notification settings.
type Preferences struct {
	Theme         string            `json:"theme,omitempty"`
	PageSize      int               `json:"pageSize,omitempty"`
	Notifications NotificationPrefs `json:"notifications"`
}

// NotificationPrefs toggles notification channels.
type NotificationPrefs struct {
	Email     bool `json:"email"`
	Reminders bool `json:"reminders"`
}

// Tokens is replaced as a whole; fields are never updated one by one.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether now is at or past ExpiresAt. Nil tokens are expired.
func (t *Tokens) Expired(now time.Time) bool {
	return t == nil || !now.Before(t.ExpiresAt)
}

// Validate rejects a pair with no access token or no expiry.
func (t *Tokens) Validate() error {
	if t == nil {
		return errors.New("tokens are null")
	}
	if t.AccessToken == "" {
		return errors.New("access token is required")
	}
	if t.ExpiresAt.IsZero() {
		return errors.New("expiresAt is required")
	}
	return nil
}

// Credentials sign in an existing account.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration creates a new account.
type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// AuthResult is the outcome of Login and Register.
type AuthResult struct {
	User   *User
	Tokens *Tokens
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	FirstName   *string      `json:"firstName,omitempty"`
	LastName    *string      `json:"lastName,omitempty"`
	Avatar      *string      `json:"avatar,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// BookStatus is where a book sits on the reading shelf.
type BookStatus string

const (
	StatusToRead  BookStatus = "to-read"
	StatusReading BookStatus = "reading"
	StatusRead    BookStatus = "read"
)

// Book is one entry of a user's library.
type Book struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Genre       string     `json:"genre,omitempty"`
	Status      BookStatus `json:"status"`
	Rating      int        `json:"rating,omitempty"`
	Pages       int        `json:"pages,omitempty"`
	CurrentPage int        `json:"currentPage,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// envelope is the backend's response wrapper. Success is a pointer so a
// body without the field is not mistaken for a failure.
type envelope[T any] struct {
	Success *bool  `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

type tokenPayload struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
}

type authPayload struct {
	User *User `json:"user"`
	tokenPayload
}
