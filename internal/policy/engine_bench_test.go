package policy

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

func setupBenchmarkEngine(b *testing.B, mode Mode) *OPAEngine {
	b.Helper()
	engine, err := NewOPAEngine(&Config{Enabled: true, Mode: mode}, zap.NewNop())
	if err != nil {
		b.Fatalf("Failed to create benchmark engine: %v", err)
	}
	return engine
}

// BenchmarkEvaluateCold measures evaluation with a fresh cache each time
func BenchmarkEvaluateCold(b *testing.B) {
	engine := setupBenchmarkEngine(b, ModeEnforce)
	input := &Input{Action: ActionRead, ViewerID: otherID, OwnerID: ownerID, IsPublic: true}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.cache.Clear()
		if _, err := engine.Evaluate(context.Background(), input); err != nil {
			b.Fatalf("Policy evaluation failed: %v", err)
		}
	}
}

// BenchmarkEvaluateWarm measures cache hits
func BenchmarkEvaluateWarm(b *testing.B) {
	engine := setupBenchmarkEngine(b, ModeEnforce)
	input := &Input{Action: ActionRead, ViewerID: otherID, OwnerID: ownerID, IsPublic: true}
	if _, err := engine.Evaluate(context.Background(), input); err != nil {
		b.Fatalf("Warmup failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Evaluate(context.Background(), input); err != nil {
			b.Fatalf("Policy evaluation failed: %v", err)
		}
	}
}

// BenchmarkEvaluateConcurrent spreads distinct viewers over the cache
func BenchmarkEvaluateConcurrent(b *testing.B) {
	engine := setupBenchmarkEngine(b, ModeEnforce)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			input := &Input{
				Action:   ActionRead,
				ViewerID: fmt.Sprintf("viewer-%d", i%64),
				OwnerID:  ownerID,
				IsPublic: i%2 == 0,
			}
			if _, err := engine.Evaluate(context.Background(), input); err != nil {
				b.Fatalf("Policy evaluation failed: %v", err)
			}
			i++
		}
	})
}

// BenchmarkBuiltin is the baseline without OPA
func BenchmarkBuiltin(b *testing.B) {
	input := &Input{Action: ActionUpdate, ViewerID: ownerID, OwnerID: ownerID}
	for i := 0; i < b.N; i++ {
		_ = Builtin(input)
	}
}
