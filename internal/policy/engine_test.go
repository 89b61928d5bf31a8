package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
)

const (
	ownerID = "11111111-1111-1111-1111-111111111111"
	otherID = "22222222-2222-2222-2222-222222222222"
)

var accessCases = []struct {
	name   string
	input  Input
	allow  bool
	reason string
}{
	{"anonymous reads public", Input{Action: ActionRead, OwnerID: ownerID, IsPublic: true}, true, "public snippet"},
	{"anonymous reads private", Input{Action: ActionRead, OwnerID: ownerID}, false, "snippet is private"},
	{"other reads public", Input{Action: ActionRead, ViewerID: otherID, OwnerID: ownerID, IsPublic: true}, true, "public snippet"},
	{"other reads private", Input{Action: ActionRead, ViewerID: otherID, OwnerID: ownerID}, false, "snippet is private"},
	{"owner reads private", Input{Action: ActionRead, ViewerID: ownerID, OwnerID: ownerID}, true, "owner"},
	{"owner reads public", Input{Action: ActionRead, ViewerID: ownerID, OwnerID: ownerID, IsPublic: true}, true, "owner"},
	{"owner updates", Input{Action: ActionUpdate, ViewerID: ownerID, OwnerID: ownerID, IsPublic: true}, true, "owner"},
	{"owner deletes", Input{Action: ActionDelete, ViewerID: ownerID, OwnerID: ownerID}, true, "owner"},
	{"other updates public", Input{Action: ActionUpdate, ViewerID: otherID, OwnerID: ownerID, IsPublic: true}, false, "not the snippet owner"},
	{"anonymous deletes", Input{Action: ActionDelete, OwnerID: ownerID, IsPublic: true}, false, "not the snippet owner"},
	{"empty ids never match", Input{Action: ActionUpdate}, false, "not the snippet owner"},
	{"unknown action", Input{Action: "share", ViewerID: ownerID, OwnerID: ownerID}, false, "unknown action"},
}

func TestBuiltin(t *testing.T) {
	for _, tt := range accessCases {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			d := Builtin(&input)
			if d.Allow != tt.allow || d.Reason != tt.reason {
				t.Errorf("Builtin() = {%v %q}, want {%v %q}", d.Allow, d.Reason, tt.allow, tt.reason)
			}
		})
	}
}

// The embedded rego policy must agree with the built-in rules.
func TestOPAEngine_EmbeddedPolicy(t *testing.T) {
	engine, err := NewOPAEngine(&Config{Enabled: true, Mode: ModeEnforce}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create OPA engine: %v", err)
	}
	if !engine.IsEnabled() {
		t.Fatal("Engine should be enabled")
	}

	ctx := context.Background()
	for _, tt := range accessCases {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			d, err := engine.Evaluate(ctx, &input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if d.Allow != tt.allow || d.Reason != tt.reason {
				t.Errorf("Evaluate() = {%v %q}, want {%v %q}", d.Allow, d.Reason, tt.allow, tt.reason)
			}
			if d.PolicyVersion == "" {
				t.Error("Decision should carry the policy version")
			}
		})
	}
}

func writePolicy(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write test policy: %v", err)
	}
}

const denyAllPolicy = `package snippets.access

default decision := {"allow": false, "reason": "maintenance"}
`

func TestOPAEngine_DirectoryOverride(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "deny.rego", denyAllPolicy)

	engine, err := NewOPAEngine(&Config{Enabled: true, Mode: ModeEnforce, Path: dir}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create OPA engine: %v", err)
	}

	d, err := engine.Evaluate(context.Background(), &Input{Action: ActionRead, OwnerID: ownerID, IsPublic: true})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if d.Allow || d.Reason != "maintenance" {
		t.Errorf("Expected override to deny, got allow=%v reason=%s", d.Allow, d.Reason)
	}
}

func TestOPAEngine_DryRunEnforcesBuiltin(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "deny.rego", denyAllPolicy)

	engine, err := NewOPAEngine(&Config{Enabled: true, Mode: ModeDryRun, Path: dir}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create OPA engine: %v", err)
	}

	ctx := context.Background()
	d, err := engine.Evaluate(ctx, &Input{Action: ActionRead, OwnerID: ownerID, IsPublic: true})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !d.Allow {
		t.Errorf("Dry-run should enforce the built-in rules, got reason=%s", d.Reason)
	}

	d, err = engine.Evaluate(ctx, &Input{Action: ActionDelete, ViewerID: otherID, OwnerID: ownerID})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if d.Allow {
		t.Error("Dry-run must not open access the built-in rules deny")
	}
}

func TestOPAEngine_LoadFailures(t *testing.T) {
	t.Run("empty directory fails open to builtin", func(t *testing.T) {
		engine, err := NewOPAEngine(&Config{Enabled: true, Mode: ModeEnforce, Path: t.TempDir()}, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if engine.IsEnabled() || engine.Mode() != ModeOff {
			t.Error("Engine should fall back to built-in rules")
		}
		d, _ := engine.Evaluate(context.Background(), &Input{Action: ActionRead, OwnerID: ownerID})
		if d.Allow {
			t.Error("Built-in rules should still protect private snippets")
		}
	})

	t.Run("empty directory fail closed", func(t *testing.T) {
		_, err := NewOPAEngine(&Config{Enabled: true, Mode: ModeEnforce, Path: t.TempDir(), FailClosed: true}, zaptest.NewLogger(t))
		if err == nil {
			t.Fatal("Expected error in fail-closed mode")
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		dir := t.TempDir()
		writePolicy(t, dir, "broken.rego", "package snippets.access\n\ndecision := {\n")
		_, err := NewOPAEngine(&Config{Enabled: true, Mode: ModeEnforce, Path: dir, FailClosed: true}, zaptest.NewLogger(t))
		if err == nil {
			t.Fatal("Expected compile error")
		}
	})
}

func TestOPAEngine_Disabled(t *testing.T) {
	cfg := &Config{Enabled: true, Mode: "bogus"}
	cfg.Normalize()
	if cfg.Enabled || cfg.Mode != ModeOff {
		t.Fatalf("Normalize() = %+v, want disabled off mode", cfg)
	}

	engine, err := NewOPAEngine(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	for _, tt := range accessCases {
		input := tt.input
		d, err := engine.Evaluate(context.Background(), &input)
		if err != nil {
			t.Fatalf("Evaluation failed: %v", err)
		}
		if d.Allow != tt.allow {
			t.Errorf("%s: allow=%v, want %v", tt.name, d.Allow, tt.allow)
		}
	}
}

func TestOPAEngine_ReloadClearsCache(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "access.rego", denyAllPolicy)

	engine, err := NewOPAEngine(&Config{Enabled: true, Mode: ModeEnforce, Path: dir}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create OPA engine: %v", err)
	}

	ctx := context.Background()
	input := &Input{Action: ActionRead, OwnerID: ownerID, IsPublic: true}
	d, _ := engine.Evaluate(ctx, input)
	if d.Allow {
		t.Fatal("Expected deny before reload")
	}

	embedded, err := defaultPolicies.ReadFile("policies/access.rego")
	if err != nil {
		t.Fatalf("Failed to read embedded policy: %v", err)
	}
	writePolicy(t, dir, "access.rego", string(embedded))
	if err := engine.LoadPolicies(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	d, _ = engine.Evaluate(ctx, input)
	if !d.Allow {
		t.Errorf("Expected allow after reload, got reason=%s", d.Reason)
	}
}

func TestOPAEngine_ConcurrentEvaluate(t *testing.T) {
	engine, err := NewOPAEngine(&Config{Enabled: true, Mode: ModeEnforce}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create OPA engine: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tt := accessCases[i%len(accessCases)]
			input := tt.input
			d, err := engine.Evaluate(context.Background(), &input)
			if err != nil || d.Allow != tt.allow {
				t.Errorf("%s: allow=%v err=%v", tt.name, d != nil && d.Allow, err)
			}
			if i%5 == 0 {
				_ = engine.LoadPolicies()
			}
		}(i)
	}
	wg.Wait()
}

func TestDecisionCache(t *testing.T) {
	c := newDecisionCache(2, 0)
	a := &Input{Action: ActionRead, OwnerID: "a"}
	b := &Input{Action: ActionRead, OwnerID: "b"}
	cc := &Input{Action: ActionRead, OwnerID: "c"}

	c.Set(a, &Decision{Allow: true})
	c.Set(b, &Decision{Allow: false})
	if _, ok := c.Get(a); !ok {
		t.Fatal("expected hit for a")
	}
	c.Set(cc, &Decision{Allow: true})
	if _, ok := c.Get(b); ok {
		t.Error("b should have been evicted as least recently used")
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d, %d, want 1, 1", hits, misses)
	}

	c.Clear()
	if _, ok := c.Get(a); ok {
		t.Error("Clear() should drop all entries")
	}
}
