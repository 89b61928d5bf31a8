package policy

import (
	"container/list"
	"context"
	"crypto/md5"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

const decisionQuery = "data.snippets.access.decision"

// Access actions
const (
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

//go:embed policies/*.rego
var defaultPolicies embed.FS

// Engine decides whether a viewer may act on a snippet
type Engine interface {
	Evaluate(ctx context.Context, input *Input) (*Decision, error)
	LoadPolicies() error
	IsEnabled() bool
	Mode() Mode
}

// Input is the context for one access decision
type Input struct {
	Action   string `json:"action"`
	ViewerID string `json:"viewer_id"`
	OwnerID  string `json:"owner_id"`
	IsPublic bool   `json:"is_public"`
}

// Decision is the result of an access check
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`

	PolicyVersion string `json:"policy_version,omitempty"`
}

// Builtin applies the access rules without OPA: anyone may read public
// snippets, only the owner may read private ones or change anything.
func Builtin(input *Input) *Decision {
	isOwner := input.ViewerID != "" && input.ViewerID == input.OwnerID
	switch input.Action {
	case ActionRead:
		if isOwner {
			return &Decision{Allow: true, Reason: "owner"}
		}
		if input.IsPublic {
			return &Decision{Allow: true, Reason: "public snippet"}
		}
		return &Decision{Allow: false, Reason: "snippet is private"}
	case ActionUpdate, ActionDelete:
		if isOwner {
			return &Decision{Allow: true, Reason: "owner"}
		}
		return &Decision{Allow: false, Reason: "not the snippet owner"}
	default:
		return &Decision{Allow: false, Reason: "unknown action"}
	}
}

// OPAEngine implements Engine using OPA rego
type OPAEngine struct {
	config  *Config
	logger  *zap.Logger
	enabled bool

	mu       sync.RWMutex
	compiled *rego.PreparedEvalQuery
	version  string

	cache *decisionCache
}

// NewOPAEngine creates a policy engine. With policies disabled it answers from Builtin.
func NewOPAEngine(config *Config, logger *zap.Logger) (*OPAEngine, error) {
	engine := &OPAEngine{
		config:  config,
		logger:  logger,
		enabled: config.Enabled && config.Mode != ModeOff,
		cache:   newDecisionCache(1000, 5*time.Minute),
	}

	if engine.enabled {
		if err := engine.LoadPolicies(); err != nil {
			if config.FailClosed {
				return nil, fmt.Errorf("failed to load policies in fail-closed mode: %w", err)
			}
			logger.Warn("Failed to load policies, using built-in rules", zap.Error(err))
			engine.enabled = false
		}
	}

	return engine, nil
}

// LoadPolicies compiles the .rego files under config.Path, or the embedded
// policy when no path is configured. Safe to call while serving.
func (e *OPAEngine) LoadPolicies() error {
	if !e.config.Enabled {
		return nil
	}

	var (
		policies map[string]string
		err      error
		source   = "embedded"
	)
	if e.config.Path != "" {
		source = e.config.Path
		policies, err = readPolicies(os.DirFS(e.config.Path))
	} else {
		policies, err = readPolicies(defaultPolicies)
	}
	if err != nil {
		RecordError("load", e.config.Mode)
		return err
	}
	if len(policies) == 0 {
		RecordError("load", e.config.Mode)
		return fmt.Errorf("no policy files found in %s", source)
	}

	regoOptions := []func(*rego.Rego){
		rego.Query(decisionQuery),
	}
	for moduleName, content := range policies {
		regoOptions = append(regoOptions, rego.Module(moduleName, content))
	}

	compiled, err := rego.New(regoOptions...).PrepareForEval(context.Background())
	if err != nil {
		RecordError("compile", e.config.Mode)
		return fmt.Errorf("failed to compile policies: %w", err)
	}

	version := calculatePolicyVersion(policies)

	e.mu.Lock()
	e.compiled = &compiled
	e.version = version
	e.mu.Unlock()
	e.cache.Clear()

	e.logger.Info("Policies loaded and compiled successfully",
		zap.Int("policy_count", len(policies)),
		zap.String("source", source),
		zap.String("version", version),
	)
	RecordPolicyLoad(len(policies), float64(time.Now().Unix()), version)

	return nil
}

func readPolicies(fsys fs.FS) (map[string]string, error) {
	policies := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".rego") {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", path, err)
		}
		policies[strings.TrimSuffix(filepath.ToSlash(path), ".rego")] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk policy directory: %w", err)
	}
	return policies, nil
}

// Evaluate decides input. Errors are only returned in fail-closed mode,
// together with a deny decision.
func (e *OPAEngine) Evaluate(ctx context.Context, input *Input) (*Decision, error) {
	start := time.Now()

	if !e.IsEnabled() {
		d := Builtin(input)
		RecordEvaluation(input.Action, d.Allow, ModeOff, 0)
		return d, nil
	}

	if d, ok := e.cache.Get(input); ok {
		policyCacheHits.Inc()
		RecordEvaluation(input.Action, d.Allow, e.config.Mode, time.Since(start).Seconds())
		return d, nil
	}
	policyCacheMisses.Inc()

	opaDecision, err := e.evaluateOPA(ctx, input)
	if err != nil {
		e.logger.Error("Policy evaluation failed", zap.Error(err))
		RecordError("evaluation", e.config.Mode)
		if e.config.FailClosed {
			return &Decision{Allow: false, Reason: "policy evaluation error"}, err
		}
		d := Builtin(input)
		RecordEvaluation(input.Action, d.Allow, e.config.Mode, time.Since(start).Seconds())
		return d, nil
	}

	decision := e.applyMode(opaDecision, input)

	RecordEvaluation(input.Action, decision.Allow, e.config.Mode, time.Since(start).Seconds())
	e.logger.Debug("Policy evaluated",
		zap.String("action", input.Action),
		zap.Bool("allow", decision.Allow),
		zap.String("reason", decision.Reason),
		zap.String("mode", string(e.config.Mode)),
		zap.Duration("duration", time.Since(start)),
	)

	e.cache.Set(input, decision)
	return decision, nil
}

func (e *OPAEngine) evaluateOPA(ctx context.Context, input *Input) (*Decision, error) {
	e.mu.RLock()
	compiled := e.compiled
	version := e.version
	e.mu.RUnlock()

	results, err := compiled.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"action":    input.Action,
		"viewer_id": input.ViewerID,
		"owner_id":  input.OwnerID,
		"is_public": input.IsPublic,
	}))
	if err != nil {
		return nil, err
	}

	decision := parseResults(results)
	decision.PolicyVersion = version
	return decision, nil
}

// applyMode returns the decision to enforce. Dry-run enforces the built-in
// rules and reports when OPA disagrees.
func (e *OPAEngine) applyMode(opaDecision *Decision, input *Input) *Decision {
	if e.config.Mode != ModeDryRun {
		return opaDecision
	}

	builtin := Builtin(input)
	if builtin.Allow != opaDecision.Allow {
		divergence := "would_allow"
		if !opaDecision.Allow {
			divergence = "would_deny"
		}
		RecordDryRunDivergence(divergence)
		e.logger.Info("Dry-run policy divergence",
			zap.String("action", input.Action),
			zap.Bool("opa_allow", opaDecision.Allow),
			zap.String("opa_reason", opaDecision.Reason),
			zap.Bool("builtin_allow", builtin.Allow),
		)
	}
	builtin.PolicyVersion = opaDecision.PolicyVersion
	return builtin
}

// IsEnabled returns whether OPA policies are loaded and consulted
func (e *OPAEngine) IsEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled && e.compiled != nil
}

// Mode returns the configured enforcement mode
func (e *OPAEngine) Mode() Mode {
	if !e.enabled {
		return ModeOff
	}
	return e.config.Mode
}

// parseResults converts OPA results into a Decision, denying when the
// policy produced nothing usable
func parseResults(results rego.ResultSet) *Decision {
	decision := &Decision{
		Allow:  false,
		Reason: "no matching policy rules",
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision
	}

	value := results[0].Expressions[0].Value
	if valueMap, ok := value.(map[string]interface{}); ok {
		if allow, ok := valueMap["allow"].(bool); ok {
			decision.Allow = allow
		}
		if reason, ok := valueMap["reason"].(string); ok {
			decision.Reason = reason
		}
	} else if allow, ok := value.(bool); ok {
		decision.Allow = allow
		if allow {
			decision.Reason = "allowed by policy"
		} else {
			decision.Reason = "denied by policy"
		}
	}

	return decision
}

// calculatePolicyVersion hashes module names and contents in a stable order
func calculatePolicyVersion(policies map[string]string) string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)

	h := md5.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte(policies[name]))
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// --- decision cache (LRU with TTL) ---

type decisionCache struct {
	cap    int
	ttl    time.Duration
	mu     sync.Mutex
	list   *list.List               // MRU at front
	m      map[string]*list.Element // key -> element
	hits   int64
	misses int64
}

type cacheEntry struct {
	key       string
	expiresAt time.Time
	decision  *Decision
}

func newDecisionCache(cap int, ttl time.Duration) *decisionCache {
	if cap <= 0 {
		cap = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &decisionCache{
		cap:  cap,
		ttl:  ttl,
		list: list.New(),
		m:    make(map[string]*list.Element),
	}
}

func (c *decisionCache) makeKey(input *Input) string {
	return fmt.Sprintf("%s|%s|%s|%t", input.Action, input.ViewerID, input.OwnerID, input.IsPublic)
}

func (c *decisionCache) Get(input *Input) (*Decision, bool) {
	key := c.makeKey(input)
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.m[key]; ok {
		ce := el.Value.(cacheEntry)
		if ce.expiresAt.After(now) {
			c.list.MoveToFront(el)
			atomic.AddInt64(&c.hits, 1)
			return ce.decision, true
		}
		c.list.Remove(el)
		delete(c.m, key)
	}
	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

func (c *decisionCache) Set(input *Input, d *Decision) {
	key := c.makeKey(input)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.m[key]; ok {
		el.Value = cacheEntry{key: key, expiresAt: time.Now().Add(c.ttl), decision: d}
		c.list.MoveToFront(el)
		return
	}
	el := c.list.PushFront(cacheEntry{key: key, expiresAt: time.Now().Add(c.ttl), decision: d})
	c.m[key] = el
	if c.list.Len() > c.cap {
		if lru := c.list.Back(); lru != nil {
			ce := lru.Value.(cacheEntry)
			delete(c.m, ce.key)
			c.list.Remove(lru)
		}
	}
}

// Clear drops every entry, used after policies are reloaded
func (c *decisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Init()
	c.m = make(map[string]*list.Element)
}

// Stats returns cumulative cache hit/miss counts
func (c *decisionCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
