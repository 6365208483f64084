package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"seald/internal/infra/crypto"
)

const validDeclarationJSON = `{
  "ingestion_method": "FILE_UPLOAD",
  "source_system": "SAP",
  "dataset_type": "ENERGY_INVOICE",
  "declared_scope": "ORGANIZATION",
  "purpose": "CSRD reporting",
  "legal_basis": "LEGAL_OBLIGATION",
  "retention_policy": "REGULATORY_10Y",
  "file_upload": {}
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	done := make(chan []byte)
	go func() {
		out, _ := io.ReadAll(r)
		done <- out
	}()
	runErr := fn()
	os.Stdout = orig
	_ = w.Close()
	out := <-done
	_ = r.Close()
	return string(out), runErr
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return -1
}

func TestRunHashJSONIsKeyOrderInvariant(t *testing.T) {
	want, _, err := crypto.CanonicalSHA256(map[string]any{"a": []any{true, "x"}, "b": 1})
	if err != nil {
		t.Fatalf("reference digest: %v", err)
	}

	cases := []struct {
		name string
		doc  string
	}{
		{name: "sorted", doc: `{"a":[true,"x"],"b":1}`},
		{name: "reversed", doc: `{"b":1,"a":[true,"x"]}`},
		{name: "whitespace", doc: "{\n  \"b\" : 1 ,\n  \"a\" : [ true , \"x\" ]\n}\n"},
		{name: "float spelling", doc: `{"b":1.0,"a":[true,"x"]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, "doc.json", tc.doc)
			out, err := captureStdout(t, func() error { return runHash([]string{"--json", path}) })
			if err != nil {
				t.Fatalf("hash: %v", err)
			}
			fields := strings.Fields(out)
			if len(fields) < 2 || fields[1] != "canonical" {
				t.Fatalf("unexpected output %q", out)
			}
			if fields[0] != want {
				t.Fatalf("digest = %s, want %s", fields[0], want)
			}
		})
	}
}

func TestRunHashArguments(t *testing.T) {
	raw := writeTemp(t, "raw.bin", "payload")
	doc := writeTemp(t, "doc.json", `{"a":1}`)
	notJSON := writeTemp(t, "bad.json", `{"a":`)

	cases := []struct {
		name     string
		args     []string
		code     int
		contains string
	}{
		{name: "raw file", args: []string{"--file", raw}, code: 0, contains: crypto.SHA256Hex([]byte("payload"))},
		{name: "no input", args: nil, code: 1},
		{name: "both inputs", args: []string{"--file", raw, "--json", doc}, code: 1},
		{name: "unknown flag", args: []string{"--nope"}, code: 1},
		{name: "malformed json", args: []string{"--json", notJSON}, code: -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := captureStdout(t, func() error { return runHash(tc.args) })
			if got := exitCode(err); got != tc.code {
				t.Fatalf("exit code = %d, want %d (err %v)", got, tc.code, err)
			}
			if tc.contains != "" && !strings.Contains(out, tc.contains) {
				t.Fatalf("output %q lacks %s", out, tc.contains)
			}
		})
	}
}

func TestRunValidateExitCodes(t *testing.T) {
	cases := []struct {
		name string
		decl string
		code int
	}{
		{name: "valid", decl: validDeclarationJSON, code: 0},
		{name: "missing common fields", decl: `{"ingestion_method":"FILE_UPLOAD"}`, code: 2},
		{name: "unsupported method", decl: strings.Replace(validDeclarationJSON, "FILE_UPLOAD", "FAX", 1), code: 2},
		{name: "foreign variant", decl: strings.Replace(validDeclarationJSON, `"file_upload": {}`, `"file_upload": {}, "manual_entry": {"justification": "x"}`, 1), code: 2},
		{name: "malformed json", decl: `{"ingestion_method":`, code: -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, "decl.json", tc.decl)
			out, err := captureStdout(t, func() error { return runValidate([]string{"--declaration", path}) })
			if got := exitCode(err); got != tc.code {
				t.Fatalf("exit code = %d, want %d (err %v)", got, tc.code, err)
			}
			if tc.code == 0 && !strings.Contains(out, `"ingestion_method":"FILE_UPLOAD"`) {
				t.Fatalf("expected canonical declaration on stdout, got %q", out)
			}
		})
	}
}

func TestRunValidateRequiresDeclarationFlag(t *testing.T) {
	if got := exitCode(runValidate(nil)); got != 1 {
		t.Fatalf("exit code = %d, want 1", got)
	}
}

func TestRunDispatchesValidate(t *testing.T) {
	path := writeTemp(t, "decl.json", `{"ingestion_method":"FILE_UPLOAD"}`)
	_, err := captureStdout(t, func() error { return run([]string{"sealctl", "validate", "--declaration", path}) })
	if got := exitCode(err); got != 2 {
		t.Fatalf("exit code = %d, want 2 (err %v)", got, err)
	}
}
