package snippets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Kocoro-lab/snippets/internal/db"
)

const snippetColumns = `s.id, s.title, s.description, s.code, s.language, s.author_id,
	s.is_public, s.time_complexity, s.created_at, s.updated_at,
	u.name AS author_name, u.username AS author_username`

// snippetRow is a snippet joined with its author
type snippetRow struct {
	Snippet
	AuthorName     string `db:"author_name"`
	AuthorUsername string `db:"author_username"`
}

// Store persists snippets and tags
type Store struct {
	db *sqlx.DB
}

// NewStore creates a store over database
func NewStore(database *sqlx.DB) *Store {
	return &Store{db: database}
}

// listFilter is a resolved ListOptions including the viewer's visibility
type listFilter struct {
	ListOptions
	// VisibleTo also admits private snippets by this author
	VisibleTo *uuid.UUID
}

func (f listFilter) where() (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)

	if f.PublicOnly || f.VisibleTo == nil {
		clauses = append(clauses, "s.is_public = ?")
		args = append(args, true)
	} else {
		clauses = append(clauses, "(s.is_public = ? OR s.author_id = ?)")
		args = append(args, true, *f.VisibleTo)
	}
	if f.AuthorID != nil {
		clauses = append(clauses, "s.author_id = ?")
		args = append(args, *f.AuthorID)
	}
	if f.Language != "" {
		clauses = append(clauses, "LOWER(s.language) = ?")
		args = append(args, strings.ToLower(f.Language))
	}
	if f.Query != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Query)) + "%"
		clauses = append(clauses, `(LOWER(s.title) LIKE ? ESCAPE '\' OR LOWER(s.description) LIKE ? ESCAPE '\' OR LOWER(s.code) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if f.Tag != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM snippet_tags t WHERE t.snippet_id = s.id AND LOWER(t.tag) = ?)")
		args = append(args, strings.ToLower(f.Tag))
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns the page selected by f, newest first, and the total match count
func (s *Store) List(ctx context.Context, f listFilter) ([]snippetRow, int, error) {
	where, args := f.where()

	var total int
	countQuery := "SELECT COUNT(*) FROM snippets s WHERE " + where
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(countQuery), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count snippets: %w", err)
	}

	query := "SELECT " + snippetColumns + " FROM snippets s JOIN users u ON u.id = s.author_id WHERE " + where +
		" ORDER BY s.created_at DESC, s.id"
	// a zero limit returns every match
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	var rows []snippetRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list snippets: %w", err)
	}
	if err := s.loadTags(ctx, rows); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Get loads one snippet with its author and tags
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*snippetRow, error) {
	var row snippetRow
	query := "SELECT " + snippetColumns + " FROM snippets s JOIN users u ON u.id = s.author_id WHERE s.id = ?"
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get snippet: %w", err)
	}
	rows := []snippetRow{row}
	if err := s.loadTags(ctx, rows); err != nil {
		return nil, err
	}
	return &rows[0], nil
}

func (s *Store) loadTags(ctx context.Context, rows []snippetRow) error {
	if len(rows) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(rows))
	index := make(map[uuid.UUID]int, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
		index[rows[i].ID] = i
		rows[i].Tags = []string{}
	}

	query, args, err := sqlx.In("SELECT snippet_id, tag FROM snippet_tags WHERE snippet_id IN (?) ORDER BY snippet_id, position", ids)
	if err != nil {
		return fmt.Errorf("failed to build tag query: %w", err)
	}

	var tags []struct {
		SnippetID uuid.UUID `db:"snippet_id"`
		Tag       string    `db:"tag"`
	}
	if err := s.db.SelectContext(ctx, &tags, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	for _, t := range tags {
		if i, ok := index[t.SnippetID]; ok {
			rows[i].Tags = append(rows[i].Tags, t.Tag)
		}
	}
	return nil
}

// Insert stores a new snippet and its tags
func (s *Store) Insert(ctx context.Context, snippet *Snippet) error {
	return db.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO snippets (id, title, description, code, language, author_id, is_public, time_complexity, created_at, updated_at)
			VALUES (:id, :title, :description, :code, :language, :author_id, :is_public, :time_complexity, :created_at, :updated_at)
		`
		if _, err := tx.NamedExecContext(ctx, query, snippet); err != nil {
			return fmt.Errorf("failed to insert snippet: %w", err)
		}
		return replaceTags(ctx, tx, snippet.ID, snippet.Tags)
	})
}

// Update writes every mutable field. Tags are replaced when replaceTagSet is set.
func (s *Store) Update(ctx context.Context, snippet *Snippet, replaceTagSet bool) error {
	return db.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		query := `
			UPDATE snippets SET title = :title, description = :description, code = :code, language = :language,
				is_public = :is_public, time_complexity = :time_complexity, updated_at = :updated_at
			WHERE id = :id
		`
		res, err := tx.NamedExecContext(ctx, query, snippet)
		if err != nil {
			return fmt.Errorf("failed to update snippet: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		if !replaceTagSet {
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM snippet_tags WHERE snippet_id = ?"), snippet.ID); err != nil {
			return fmt.Errorf("failed to clear tags: %w", err)
		}
		return replaceTags(ctx, tx, snippet.ID, snippet.Tags)
	})
}

func replaceTags(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, tags []string) error {
	for i, tag := range tags {
		if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO snippet_tags (snippet_id, tag, position) VALUES (?, ?, ?)"),
			id, tag, i); err != nil {
			return fmt.Errorf("failed to tag snippet: %w", err)
		}
	}
	return nil
}

// Delete removes a snippet and its tags
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM snippet_tags WHERE snippet_id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete tags: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM snippets WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete snippet: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Languages counts public snippets per language, most used first
func (s *Store) Languages(ctx context.Context) ([]LanguageCount, error) {
	var out []LanguageCount
	query := `SELECT language, COUNT(*) AS count FROM snippets WHERE is_public = ?
		GROUP BY language ORDER BY count DESC, language`
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), true); err != nil {
		return nil, fmt.Errorf("failed to count languages: %w", err)
	}
	return out, nil
}

// Tags lists the tag catalog, optionally restricted to one type
func (s *Store) Tags(ctx context.Context, tagType string) ([]Tag, error) {
	query := "SELECT id, name, slug, type FROM tags"
	var args []interface{}
	if tagType != "" {
		query += " WHERE type = ?"
		args = append(args, tagType)
	}
	query += " ORDER BY type, name"

	tags := []Tag{}
	if err := s.db.SelectContext(ctx, &tags, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// TagBySlug loads one catalog tag
func (s *Store) TagBySlug(ctx context.Context, slug string) (*Tag, error) {
	var tag Tag
	if err := s.db.GetContext(ctx, &tag, s.db.Rebind("SELECT id, name, slug, type FROM tags WHERE slug = ?"), slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTagNotFound
		}
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &tag, nil
}
