package snippets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/snippets/internal/auth"
	"github.com/Kocoro-lab/snippets/internal/complexity"
	"github.com/Kocoro-lab/snippets/internal/db"
	"github.com/Kocoro-lab/snippets/internal/metrics"
	"github.com/Kocoro-lab/snippets/internal/policy"
	"github.com/Kocoro-lab/snippets/internal/tracing"
	"github.com/Kocoro-lab/snippets/internal/util"
	"github.com/Kocoro-lab/snippets/internal/validation"
)

// UserLookup resolves profile owners
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*auth.User, error)
}

// Options configures the Service
type Options struct {
	// AutoSuggest fills in an empty time complexity from analysis
	AutoSuggest bool
	// BaseURL prefixes share links
	BaseURL string
}

// Service implements snippet operations on behalf of a viewer
type Service struct {
	store       *Store
	policy      policy.Engine
	users       UserLookup
	audit       auth.AuditWriter
	logger      *zap.Logger
	baseURL     string
	autoSuggest atomic.Bool
}

// NewService creates a snippet service. audit may be nil.
func NewService(database *sqlx.DB, engine policy.Engine, users UserLookup, audit auth.AuditWriter, opts Options, logger *zap.Logger) *Service {
	s := &Service{
		store:   NewStore(database),
		policy:  engine,
		users:   users,
		audit:   audit,
		logger:  logger,
		baseURL: opts.BaseURL,
	}
	s.autoSuggest.Store(opts.AutoSuggest)
	return s
}

// SetAutoSuggest toggles complexity suggestions at runtime
func (s *Service) SetAutoSuggest(enabled bool) {
	s.autoSuggest.Store(enabled)
}

// Analyze runs the complexity analyzer and records it. source labels the caller.
func (s *Service) Analyze(ctx context.Context, code, language, source string) complexity.Analysis {
	_, span := tracing.StartSpan(ctx, "complexity.analyze",
		attribute.String("language", language),
		attribute.Int("code.bytes", len(code)),
		attribute.String("source", source))
	defer span.End()

	start := time.Now()
	analysis := complexity.Analyze(code, language)
	metrics.RecordAnalysis(analysis.EstimatedComplexity, source, time.Since(start).Seconds())

	span.SetAttributes(
		attribute.String("complexity.estimated", analysis.EstimatedComplexity),
		attribute.Float64("complexity.confidence", analysis.Confidence))
	return analysis
}

// Create stores a new snippet owned by viewer
func (s *Service) Create(ctx context.Context, viewer *auth.UserContext, req *CreateRequest) (*SnippetWithAuthor, error) {
	if viewer == nil {
		return nil, auth.ErrUnauthenticated
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Language = strings.TrimSpace(req.Language)
	req.TimeComplexity = strings.TrimSpace(req.TimeComplexity)
	req.Tags = normalizeTags(req.Tags)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snippet := &Snippet{
		ID:             uuid.New(),
		Title:          req.Title,
		Description:    req.Description,
		Code:           req.Code,
		Language:       req.Language,
		AuthorID:       viewer.UserID,
		IsPublic:       true,
		TimeComplexity: req.TimeComplexity,
		Tags:           req.Tags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.IsPublic != nil {
		snippet.IsPublic = *req.IsPublic
	}
	s.suggestComplexity(ctx, snippet)

	err := s.store.Insert(ctx, snippet)
	metrics.RecordSnippetOperation("create", err)
	if err != nil {
		return nil, err
	}
	metrics.SnippetCodeBytes.Observe(float64(len(snippet.Code)))

	s.logAuditEvent(ctx, "snippet_created", viewer.UserID, snippet.ID, map[string]interface{}{
		"title":    util.TruncateString(snippet.Title, 60, true),
		"language": snippet.Language,
		"public":   snippet.IsPublic,
	})
	s.logger.Info("Snippet created",
		zap.String("snippet_id", snippet.ID.String()),
		zap.String("author_id", viewer.UserID.String()),
		zap.String("language", snippet.Language))

	row, err := s.store.Get(ctx, snippet.ID)
	if err != nil {
		return nil, err
	}
	return s.withAuthor(*row), nil
}

func (s *Service) suggestComplexity(ctx context.Context, snippet *Snippet) {
	if snippet.TimeComplexity != "" || !s.autoSuggest.Load() {
		return
	}
	analysis := s.Analyze(ctx, snippet.Code, snippet.Language, "auto_suggest")
	if len(analysis.Patterns) > 0 {
		snippet.TimeComplexity = analysis.EstimatedComplexity
	}
}

// Get returns a snippet the viewer may read. Private snippets of other
// users are reported as not found. viewer may be nil.
func (s *Service) Get(ctx context.Context, viewer *auth.UserContext, id uuid.UUID) (*SnippetWithAuthor, error) {
	row, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	decision, err := s.authorize(ctx, policy.ActionRead, viewer, &row.Snippet)
	if err != nil {
		return nil, err
	}
	if !decision.Allow {
		return nil, ErrNotFound
	}
	return s.withAuthor(*row), nil
}

// List returns snippets matching opts that the viewer may see, newest first
func (s *Service) List(ctx context.Context, viewer *auth.UserContext, opts ListOptions) (*ListResult, error) {
	opts.Query = strings.TrimSpace(opts.Query)
	if err := validation.Struct(&opts); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Tag != "" {
		if tag, err := s.store.TagBySlug(ctx, strings.ToLower(opts.Tag)); err == nil {
			opts.Tag = tag.Name
		} else if !errors.Is(err, ErrTagNotFound) {
			return nil, err
		}
	}

	filter := listFilter{ListOptions: opts}
	if viewer != nil {
		id := viewer.UserID
		filter.VisibleTo = &id
	}

	rows, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Snippets: s.withAuthors(rows),
		Total:    total,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}, nil
}

// Update applies req to a snippet owned by viewer
func (s *Service) Update(ctx context.Context, viewer *auth.UserContext, id uuid.UUID, req *UpdateRequest) (*SnippetWithAuthor, error) {
	if viewer == nil {
		return nil, auth.ErrUnauthenticated
	}
	if req.Tags != nil {
		req.Tags = normalizeTags(req.Tags)
	}
	trimPtr(req.Title)
	trimPtr(req.Description)
	trimPtr(req.Language)
	trimPtr(req.TimeComplexity)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	row, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, policy.ActionUpdate, viewer, &row.Snippet, errEditForbidden); err != nil {
		return nil, err
	}

	snippet := &row.Snippet
	changed := []string{}
	if req.Title != nil {
		snippet.Title = *req.Title
		changed = append(changed, "title")
	}
	if req.Description != nil {
		snippet.Description = *req.Description
		changed = append(changed, "description")
	}
	if req.Code != nil {
		snippet.Code = *req.Code
		changed = append(changed, "code")
	}
	if req.Language != nil {
		snippet.Language = *req.Language
		changed = append(changed, "language")
	}
	if req.IsPublic != nil {
		snippet.IsPublic = *req.IsPublic
		changed = append(changed, "isPublic")
	}
	if req.TimeComplexity != nil {
		snippet.TimeComplexity = *req.TimeComplexity
		changed = append(changed, "timeComplexity")
	}
	if req.Tags != nil {
		snippet.Tags = req.Tags
		changed = append(changed, "tags")
	}
	snippet.UpdatedAt = time.Now().UTC()
	if req.Code != nil && req.TimeComplexity == nil {
		// a stale estimate is worse than none
		snippet.TimeComplexity = ""
		s.suggestComplexity(ctx, snippet)
	}

	err = s.store.Update(ctx, snippet, req.Tags != nil)
	metrics.RecordSnippetOperation("update", err)
	if err != nil {
		return nil, err
	}

	s.logAuditEvent(ctx, "snippet_updated", viewer.UserID, snippet.ID, map[string]interface{}{"fields": changed})
	s.logger.Info("Snippet updated",
		zap.String("snippet_id", snippet.ID.String()),
		zap.Strings("fields", changed))

	return s.withAuthor(*row), nil
}

// Delete removes a snippet owned by viewer
func (s *Service) Delete(ctx context.Context, viewer *auth.UserContext, id uuid.UUID) error {
	if viewer == nil {
		return auth.ErrUnauthenticated
	}

	row, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, policy.ActionDelete, viewer, &row.Snippet, errDeleteForbidden); err != nil {
		return err
	}

	err = s.store.Delete(ctx, id)
	metrics.RecordSnippetOperation("delete", err)
	if err != nil {
		return err
	}

	s.logAuditEvent(ctx, "snippet_deleted", viewer.UserID, id, map[string]interface{}{"title": row.Title})
	s.logger.Info("Snippet deleted", zap.String("snippet_id", id.String()))
	return nil
}

// Languages lists public snippet counts per language
func (s *Service) Languages(ctx context.Context) ([]LanguageCount, error) {
	langs, err := s.store.Languages(ctx)
	if err != nil {
		return nil, err
	}
	for i := range langs {
		langs[i].URL = util.LanguageURL(s.baseURL, langs[i].Language)
	}
	if langs == nil {
		langs = []LanguageCount{}
	}
	return langs, nil
}

// PublicProfile returns a user's public snippets and stats
func (s *Service) PublicProfile(ctx context.Context, username string) (*Profile, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	id := user.ID
	rows, _, err := s.store.List(ctx, listFilter{ListOptions: ListOptions{
		AuthorID:   &id,
		PublicOnly: true,
	}})
	if err != nil {
		return nil, err
	}

	languages := distinctLanguages(rows)
	return &Profile{
		User:     user.Public(),
		Snippets: s.withAuthors(rows),
		Stats: ProfileStats{
			TotalSnippets: len(rows),
			Languages:     languages,
			LanguageCount: len(languages),
		},
		URL: util.ProfileURL(s.baseURL, user.Username),
	}, nil
}

// Dashboard returns every snippet the viewer owns
func (s *Service) Dashboard(ctx context.Context, viewer *auth.UserContext) (*Dashboard, error) {
	if viewer == nil {
		return nil, auth.ErrUnauthenticated
	}

	id := viewer.UserID
	rows, _, err := s.store.List(ctx, listFilter{
		ListOptions: ListOptions{AuthorID: &id},
		VisibleTo:   &id,
	})
	if err != nil {
		return nil, err
	}

	stats := DashboardStats{Total: len(rows), Languages: distinctLanguages(rows)}
	for _, r := range rows {
		if r.IsPublic {
			stats.Public++
		} else {
			stats.Private++
		}
	}
	return &Dashboard{Snippets: s.withAuthors(rows), Stats: stats}, nil
}

// ListTags returns the tag catalog, optionally of one type
func (s *Service) ListTags(ctx context.Context, tagType string) ([]Tag, error) {
	switch tagType {
	case "", TagTypeLanguage, TagTypeTopic:
	default:
		return nil, &validation.Error{Fields: map[string]string{
			"type": fmt.Sprintf("type must be one of: %s %s", TagTypeLanguage, TagTypeTopic),
		}}
	}
	return s.store.Tags(ctx, tagType)
}

// GetTagBySlug returns one catalog tag
func (s *Service) GetTagBySlug(ctx context.Context, slug string) (*Tag, error) {
	return s.store.TagBySlug(ctx, strings.ToLower(slug))
}

// Helper functions

func (s *Service) authorize(ctx context.Context, action string, viewer *auth.UserContext, snippet *Snippet) (*policy.Decision, error) {
	input := &policy.Input{
		Action:   action,
		OwnerID:  snippet.AuthorID.String(),
		IsPublic: snippet.IsPublic,
	}
	if viewer != nil {
		input.ViewerID = viewer.UserID.String()
	}

	decision, err := s.policy.Evaluate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate access policy: %w", err)
	}
	return decision, nil
}

func (s *Service) requireOwner(ctx context.Context, action string, viewer *auth.UserContext, snippet *Snippet, denied error) error {
	decision, err := s.authorize(ctx, action, viewer, snippet)
	if err != nil {
		return err
	}
	if !decision.Allow {
		s.logger.Info("Snippet access denied",
			zap.String("snippet_id", snippet.ID.String()),
			zap.String("action", action),
			zap.String("reason", decision.Reason))
		return denied
	}
	return nil
}

func (s *Service) withAuthor(row snippetRow) *SnippetWithAuthor {
	author := Author{ID: row.AuthorID, Name: row.AuthorName, Username: row.AuthorUsername}
	if row.Tags == nil {
		row.Tags = []string{}
	}
	return &SnippetWithAuthor{
		Snippet:   row.Snippet,
		Author:    author,
		ShareURL:  util.SnippetShareURL(s.baseURL, row.ID.String(), row.Title),
		LineCount: util.CountLines(row.Code),
	}
}

func (s *Service) withAuthors(rows []snippetRow) []SnippetWithAuthor {
	out := make([]SnippetWithAuthor, 0, len(rows))
	for _, r := range rows {
		out = append(out, *s.withAuthor(r))
	}
	return out
}

func (s *Service) logAuditEvent(ctx context.Context, action string, userID, snippetID uuid.UUID, details map[string]interface{}) {
	if s.audit == nil {
		return
	}

	uid := userID.String()
	entry := &db.AuditLog{
		UserID:     &uid,
		Action:     action,
		EntityType: "snippet",
		EntityID:   snippetID.String(),
		Details:    details,
	}
	if info, ok := auth.ClientInfoFromContext(ctx); ok {
		entry.IPAddress = info.IPAddress
		entry.UserAgent = info.UserAgent
		entry.RequestID = info.RequestID
	}
	if err := s.audit.QueueWrite(db.WriteTypeAuditLog, entry, nil); err != nil {
		s.logger.Warn("Failed to log audit event", zap.String("action", action), zap.Error(err))
	}
}

// normalizeTags trims tags and drops blanks and case-insensitive duplicates
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || util.ContainsFold(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func trimPtr(p *string) {
	if p != nil {
		*p = strings.TrimSpace(*p)
	}
}

func distinctLanguages(rows []snippetRow) []string {
	languages := []string{}
	for _, r := range rows {
		if !util.ContainsString(languages, r.Language) {
			languages = append(languages, r.Language)
		}
	}
	return languages
}
