package policyopa

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"seald/internal/domain"
)

func TestDefaultEngineQuarantinesUnresolvedBindings(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name       string
		binding    domain.BindingResolution
		quarantine bool
		reasons    []string
	}{
		{
			name:    "organization scope",
			binding: domain.BindingResolution{Scope: domain.ScopeOrganization},
		},
		{
			name: "all resolved",
			binding: domain.BindingResolution{
				Scope:     domain.ScopeSupplier,
				Requested: []string{"SUP-1"},
				Resolved:  []domain.Binding{{Scope: domain.ScopeSupplier, TargetID: "SUP-1", CanonicalID: "supplier/1"}},
			},
		},
		{
			name: "unresolved targets",
			binding: domain.BindingResolution{
				Scope:      domain.ScopeSite,
				Requested:  []string{"S-2", "S-1"},
				Unresolved: []string{"S-2", "S-1"},
			},
			quarantine: true,
			reasons:    []string{"unresolved site binding: S-1", "unresolved site binding: S-2"},
		},
		{
			name:       "entity scope without targets",
			binding:    domain.BindingResolution{Scope: domain.ScopeProduct},
			quarantine: true,
			reasons:    []string{"product scope declared without targets"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			out, err := engine.Evaluate(context.Background(), domain.QuarantineInput{
				Method:  domain.MethodSupplierPortal,
				Binding: tt.binding,
			})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if out.Quarantine != tt.quarantine {
				t.Fatalf("quarantine = %v, want %v (%v)", out.Quarantine, tt.quarantine, out.Reasons)
			}
			if !reflect.DeepEqual(out.Reasons, tt.reasons) {
				t.Fatalf("reasons = %v, want %v", out.Reasons, tt.reasons)
			}
			if out.PolicyHash != engine.BundleHash() || out.PolicyHash == "" {
				t.Fatalf("expected policy hash on every decision")
			}
		})
	}
}

func TestEngineFromPathMatchesEmbeddedHash(t *testing.T) {
	dir := t.TempDir()
	src, err := defaultBundle.ReadFile("bundle/quarantine.rego")
	if err != nil {
		t.Fatalf("read embedded policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "quarantine.rego"), src, 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".quarantine.rego.swp"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("write swap: %v", err)
	}
	fromPath, err := NewEngine(context.Background(), dir)
	if err != nil {
		t.Fatalf("engine from path: %v", err)
	}
	if fromPath.BundleHash() != newEngine(t).BundleHash() {
		t.Fatalf("bundle hash should depend only on policy files")
	}
}

func TestEngineRejectsTimeBuiltin(t *testing.T) {
	rejectBuiltin(t, "time.now_ns()")
}

func TestEngineRejectsHttpSend(t *testing.T) {
	rejectBuiltin(t, "http.send({\"method\": \"get\", \"url\": \"https://example.com\"})")
}

func TestEngineRejectsRand(t *testing.T) {
	rejectBuiltin(t, "rand.intn(\"seal\", 10)")
}

func rejectBuiltin(t *testing.T, expr string) {
	t.Helper()
	dir := t.TempDir()
	content := `package seald.quarantine
result := {"quarantine": false, "reasons": []} {
  ` + expr + `
}`
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(content), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	if _, err := NewEngineFromBundlePath(context.Background(), dir); err == nil {
		t.Fatalf("expected builtin to be rejected")
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewDefaultEngine(context.Background())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}
