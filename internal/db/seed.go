package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

//go:embed seed/seed.yaml
var seedYAML []byte

// SeedData is the demo content loaded into an empty database
type SeedData struct {
	Users    []SeedUser    `yaml:"users"`
	Tags     []SeedTag     `yaml:"tags"`
	Snippets []SeedSnippet `yaml:"snippets"`
}

type SeedUser struct {
	Email     string    `yaml:"email"`
	Name      string    `yaml:"name"`
	Username  string    `yaml:"username"`
	Password  string    `yaml:"password"`
	CreatedAt time.Time `yaml:"created_at"`
}

type SeedTag struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
	Type string `yaml:"type"`
}

type SeedSnippet struct {
	Title          string    `yaml:"title"`
	Description    string    `yaml:"description"`
	Code           string    `yaml:"code"`
	Language       string    `yaml:"language"`
	Author         string    `yaml:"author"`
	Public         bool      `yaml:"public"`
	TimeComplexity string    `yaml:"time_complexity"`
	Tags           []string  `yaml:"tags"`
	CreatedAt      time.Time `yaml:"created_at"`
}

// LoadSeedData parses the embedded seed file
func LoadSeedData() (*SeedData, error) {
	var data SeedData
	if err := yaml.Unmarshal(seedYAML, &data); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	return &data, nil
}

// Seed loads the tag catalog and demo content. Tags are always reconciled;
// users and snippets are only inserted into a database without users.
func (c *Client) Seed(ctx context.Context) error {
	data, err := LoadSeedData()
	if err != nil {
		return err
	}

	return c.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := seedTags(ctx, tx, data.Tags); err != nil {
			return err
		}

		var users int
		if err := tx.GetContext(ctx, &users, "SELECT COUNT(*) FROM users"); err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		if users > 0 {
			c.logger.Debug("Skipping demo seed, users already exist", zap.Int("users", users))
			return nil
		}

		userIDs := make(map[string]string, len(data.Users))
		for _, u := range data.Users {
			id, err := seedUser(ctx, tx, u)
			if err != nil {
				return err
			}
			userIDs[u.Username] = id
		}

		for _, s := range data.Snippets {
			authorID, ok := userIDs[s.Author]
			if !ok {
				return fmt.Errorf("seed snippet %q references unknown author %q", s.Title, s.Author)
			}
			if err := seedSnippet(ctx, tx, authorID, s); err != nil {
				return err
			}
		}

		c.logger.Info("Seeded demo data",
			zap.Int("users", len(data.Users)),
			zap.Int("snippets", len(data.Snippets)),
			zap.Int("tags", len(data.Tags)),
		)
		return nil
	})
}

func seedTags(ctx context.Context, tx *sqlx.Tx, tags []SeedTag) error {
	for _, t := range tags {
		var exists int
		if err := tx.GetContext(ctx, &exists, tx.Rebind("SELECT COUNT(*) FROM tags WHERE slug = ?"), t.Slug); err != nil {
			return fmt.Errorf("failed to look up tag %s: %w", t.Slug, err)
		}
		if exists > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO tags (id, name, slug, type) VALUES (?, ?, ?, ?)"),
			uuid.New().String(), t.Name, t.Slug, t.Type); err != nil {
			return fmt.Errorf("failed to insert tag %s: %w", t.Slug, err)
		}
	}
	return nil
}

func seedUser(ctx context.Context, tx *sqlx.Tx, u SeedUser) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash seed password: %w", err)
	}

	id := uuid.New().String()
	created := u.CreatedAt.UTC()
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO users (id, email, name, username, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		id, u.Email, u.Name, u.Username, string(hash), created, created)
	if err != nil {
		return "", fmt.Errorf("failed to insert seed user %s: %w", u.Username, err)
	}
	return id, nil
}

func seedSnippet(ctx context.Context, tx *sqlx.Tx, authorID string, s SeedSnippet) error {
	id := uuid.New().String()
	created := s.CreatedAt.UTC()
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO snippets (id, title, description, code, language, author_id, is_public, time_complexity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, s.Title, s.Description, s.Code, s.Language, authorID, s.Public, s.TimeComplexity, created, created)
	if err != nil {
		return fmt.Errorf("failed to insert seed snippet %q: %w", s.Title, err)
	}

	for i, tag := range s.Tags {
		if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO snippet_tags (snippet_id, tag, position) VALUES (?, ?, ?)"),
			id, tag, i); err != nil {
			return fmt.Errorf("failed to tag seed snippet %q: %w", s.Title, err)
		}
	}
	return nil
}
