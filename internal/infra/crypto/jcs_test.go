package crypto

import (
	"strings"
	"testing"
)

func TestCanonicalizeJSON_Vectors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "sorted keys", input: `{"b":1,"a":2}`, want: `{"a":2,"b":1}`},
		{name: "nested", input: `{"z":{"y":[3,{"b":true,"a":null}]},"a":"x"}`, want: `{"a":"x","z":{"y":[3,{"a":null,"b":true}]}}`},
		{name: "whitespace", input: " { \"k\" :\n [ 1 , 2 ] } ", want: `{"k":[1,2]}`},
		{name: "integer float", input: `{"n":100.0}`, want: `{"n":100}`},
		{name: "fraction", input: `{"n":123.456}`, want: `{"n":123.456}`},
		{name: "small", input: `{"n":0.000001}`, want: `{"n":0.000001}`},
		{name: "tiny exponent", input: `{"n":1e-7}`, want: `{"n":1e-7}`},
		{name: "large exponent", input: `{"n":1e21}`, want: `{"n":1e+21}`},
		{name: "negative zero", input: `{"n":-0}`, want: `{"n":0}`},
		{name: "escapes", input: `{"s":"a\"b\\c\n\u0001"}`, want: `{"s":"a\"b\\c\n\u0001"}`},
		{name: "unicode kept", input: `{"s":"été"}`, want: `{"s":"été"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeJSON([]byte(tt.input))
			if err != nil {
				t.Fatalf("canonicalize: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalizeJSON_RejectsInvalid(t *testing.T) {
	for _, input := range []string{``, `{`, `{"a":1} {"b":2}`, `{"a":1}x`} {
		if _, err := CanonicalizeJSON([]byte(input)); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestCanonicalSHA256_KeyOrderInvariant(t *testing.T) {
	docs := []string{
		`{"supplier":"S-1","lines":[{"qty":2,"sku":"A"}],"total":{"value":10.5,"unit":"kg"}}`,
		`{"total":{"unit":"kg","value":10.5},"lines":[{"sku":"A","qty":2}],"supplier":"S-1"}`,
		`{ "lines" : [ { "qty" : 2.0 , "sku" : "A" } ] , "total" : { "value" : 1.05e1 , "unit" : "kg" } , "supplier" : "S-1" }`,
	}
	var first string
	for i, doc := range docs {
		sum, _, err := CanonicalDocumentSHA256([]byte(doc))
		if err != nil {
			t.Fatalf("hash doc %d: %v", i, err)
		}
		if i == 0 {
			first = sum
			continue
		}
		if sum != first {
			t.Fatalf("doc %d hashed to %s, want %s", i, sum, first)
		}
	}
}

func TestCanonicalize_StructUsesJSONTags(t *testing.T) {
	type inner struct {
		B string `json:"b"`
		A int    `json:"a"`
	}
	got, err := Canonicalize(inner{B: "x", A: 7})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"a":7,"b":"x"}` {
		t.Fatalf("unexpected canonical form %s", got)
	}
}

func TestCanonicalDocumentSHA256_RejectsNonObject(t *testing.T) {
	if _, _, err := CanonicalDocumentSHA256([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected array to be rejected")
	}
}

func TestIsSHA256Hex(t *testing.T) {
	valid := SHA256Hex([]byte("payload"))
	if !IsSHA256Hex(valid) {
		t.Fatalf("expected %s to be valid", valid)
	}
	for _, bad := range []string{"", strings.ToUpper(valid), valid[:63], valid + "0", "SIMULATED-0123456789abcdef", strings.Repeat("g", 64)} {
		if IsSHA256Hex(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}

func TestCombineDigests(t *testing.T) {
	a := SHA256Hex([]byte("a"))
	b := SHA256Hex([]byte("b"))

	single, err := CombineDigests([]string{a})
	if err != nil || single != a {
		t.Fatalf("single digest should pass through, got %s err %v", single, err)
	}
	ab, err := CombineDigests([]string{a, b})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	ba, err := CombineDigests([]string{b, a})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if ab == ba {
		t.Fatal("combined digest must depend on attachment order")
	}
	if !IsSHA256Hex(ab) {
		t.Fatalf("combined digest malformed: %s", ab)
	}
	if _, err := CombineDigests(nil); err == nil {
		t.Fatal("expected error for empty list")
	}
}

func TestSHA256Reader(t *testing.T) {
	sum, n, err := SHA256Reader(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("hash reader: %v", err)
	}
	if n != 5 || sum != SHA256Hex([]byte("hello")) {
		t.Fatalf("unexpected reader digest %s (%d bytes)", sum, n)
	}
}
