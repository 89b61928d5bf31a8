package snippets

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/snippets/internal/auth"
)

var (
	ErrNotFound    = errors.New("Snippet not found")
	ErrTagNotFound = errors.New("Tag not found")
	// ErrForbidden matches every ownership failure
	ErrForbidden = errors.New("forbidden")

	errEditForbidden   = &forbiddenError{msg: "You can only edit your own snippets"}
	errDeleteForbidden = &forbiddenError{msg: "You can only delete your own snippets"}
)

type forbiddenError struct {
	msg string
}

func (e *forbiddenError) Error() string { return e.msg }

func (e *forbiddenError) Is(target error) bool { return target == ErrForbidden }

// Tag types
const (
	TagTypeLanguage = "language"
	TagTypeTopic    = "topic"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Snippet is a stored piece of code
type Snippet struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Title          string    `json:"title" db:"title"`
	Description    string    `json:"description" db:"description"`
	Code           string    `json:"code" db:"code"`
	Language       string    `json:"language" db:"language"`
	AuthorID       uuid.UUID `json:"authorId" db:"author_id"`
	IsPublic       bool      `json:"isPublic" db:"is_public"`
	TimeComplexity string    `json:"timeComplexity,omitempty" db:"time_complexity"`
	Tags           []string  `json:"tags" db:"-"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Author is the public part of a snippet's author
type Author struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Username string    `json:"username"`
}

// SnippetWithAuthor is a snippet as returned to clients
type SnippetWithAuthor struct {
	Snippet
	Author    Author `json:"author"`
	ShareURL  string `json:"shareUrl"`
	LineCount int    `json:"lineCount"`
}

// Tag is a catalog entry used to label snippets
type Tag struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
	Type string `json:"type" db:"type"`
}

// LanguageCount is the number of public snippets in a language
type LanguageCount struct {
	Language string `json:"language" db:"language"`
	Count    int    `json:"count" db:"count"`
	URL      string `json:"url" db:"-"`
}

// CreateRequest creates a snippet. IsPublic defaults to true.
type CreateRequest struct {
	Title          string   `json:"title" validate:"required,min=3,max=100"`
	Description    string   `json:"description" validate:"max=500"`
	Code           string   `json:"code" validate:"required,max=50000"`
	Language       string   `json:"language" validate:"required,max=50"`
	Tags           []string `json:"tags" validate:"max=10,dive,required,max=30"`
	IsPublic       *bool    `json:"isPublic"`
	TimeComplexity string   `json:"timeComplexity" validate:"max=50"`
}

// UpdateRequest changes the fields that are set. A non-nil Tags replaces all tags.
type UpdateRequest struct {
	Title          *string  `json:"title" validate:"omitempty,min=3,max=100"`
	Description    *string  `json:"description" validate:"omitempty,max=500"`
	Code           *string  `json:"code" validate:"omitempty,min=1,max=50000"`
	Language       *string  `json:"language" validate:"omitempty,min=1,max=50"`
	Tags           []string `json:"tags" validate:"omitempty,max=10,dive,required,max=30"`
	IsPublic       *bool    `json:"isPublic"`
	TimeComplexity *string  `json:"timeComplexity" validate:"omitempty,max=50"`
}

// ListOptions filters List. Zero values mean no filter.
type ListOptions struct {
	AuthorID   *uuid.UUID
	PublicOnly bool
	Language   string
	Query      string `validate:"max=100"`
	Tag        string
	Limit      int
	Offset     int
}

// ListResult is one page of snippets
type ListResult struct {
	Snippets []SnippetWithAuthor `json:"snippets"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
}

// Profile is a user's public page
type Profile struct {
	User     auth.PublicUser     `json:"user"`
	Snippets []SnippetWithAuthor `json:"snippets"`
	Stats    ProfileStats        `json:"stats"`
	URL      string              `json:"url"`
}

// ProfileStats summarizes a user's public snippets
type ProfileStats struct {
	TotalSnippets int      `json:"totalSnippets"`
	Languages     []string `json:"languages"`
	LanguageCount int      `json:"languageCount"`
}

// Dashboard is the signed-in user's own snippet overview
type Dashboard struct {
	Snippets []SnippetWithAuthor `json:"snippets"`
	Stats    DashboardStats      `json:"stats"`
}

// DashboardStats counts the viewer's snippets
type DashboardStats struct {
	Total     int      `json:"total"`
	Public    int      `json:"public"`
	Private   int      `json:"private"`
	Languages []string `json:"languages"`
}
