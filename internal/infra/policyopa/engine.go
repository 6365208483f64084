package policyopa

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"seald/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const quarantineQuery = "data.seald.quarantine.result"

//go:embed bundle/*.rego
var defaultBundle embed.FS

// Engine evaluates the quarantine policy at seal time. Every decision
// carries the hash of the bundle that produced it.
type Engine struct {
	query      rego.PreparedEvalQuery
	bundleHash string
}

// NewEngine loads the bundle at bundlePath, or the built-in quarantine
// policy when bundlePath is empty.
func NewEngine(ctx context.Context, bundlePath string) (*Engine, error) {
	if strings.TrimSpace(bundlePath) == "" {
		return NewDefaultEngine(ctx)
	}
	return NewEngineFromBundlePath(ctx, bundlePath)
}

func NewEngineFromBundlePath(ctx context.Context, bundlePath string) (*Engine, error) {
	bundleHash, err := ComputeBundleHashFromPath(bundlePath)
	if err != nil {
		return nil, err
	}
	return prepare(ctx, bundleHash, rego.Load([]string{bundlePath}, nil))
}

func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	sub, err := fs.Sub(defaultBundle, "bundle")
	if err != nil {
		return nil, err
	}
	bundleHash, err := ComputeBundleHashFromFS(sub, ".")
	if err != nil {
		return nil, err
	}
	files, err := collectBundleFiles(sub, ".")
	if err != nil {
		return nil, err
	}
	opts := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		src, err := fs.ReadFile(sub, file.Path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rego.Module(file.Path, string(src)))
	}
	return prepare(ctx, bundleHash, opts...)
}

func prepare(ctx context.Context, bundleHash string, sources ...func(*rego.Rego)) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	opts := []func(*rego.Rego){
		rego.Query(quarantineQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
	}
	opts = append(opts, sources...)
	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared, bundleHash: bundleHash}, nil
}

func (e *Engine) BundleHash() string {
	return e.bundleHash
}

func (e *Engine) Evaluate(ctx context.Context, input domain.QuarantineInput) (domain.QuarantineDecision, error) {
	if e == nil {
		return domain.QuarantineDecision{}, errors.New("policy engine is nil")
	}
	doc, err := policyInput(input)
	if err != nil {
		return domain.QuarantineDecision{}, err
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return domain.QuarantineDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.QuarantineDecision{}, errors.New("empty policy result")
	}
	decision, err := decodeDecision(results[0].Expressions[0].Value)
	if err != nil {
		return domain.QuarantineDecision{}, err
	}
	sort.Strings(decision.Reasons)
	if len(decision.Reasons) == 0 {
		decision.Reasons = nil
	}
	decision.PolicyHash = e.bundleHash
	return decision, nil
}

// policyInput round-trips through JSON so nil slices reach rego as empty
// arrays rather than null.
func policyInput(input domain.QuarantineInput) (map[string]any, error) {
	if input.Binding.Requested == nil {
		input.Binding.Requested = []string{}
	}
	if input.Binding.Resolved == nil {
		input.Binding.Resolved = []domain.Binding{}
	}
	if input.Binding.Unresolved == nil {
		input.Binding.Unresolved = []string{}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeDecision(value any) (domain.QuarantineDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.QuarantineDecision{}, err
	}
	var decision domain.QuarantineDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.QuarantineDecision{}, err
	}
	return decision, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
