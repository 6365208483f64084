package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// CanonicalizeJSON rewrites a JSON document into RFC 8785 form: object
// keys sorted, no insignificant whitespace, ES6 number formatting.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	value, err := decodeSingle(input)
	if err != nil {
		return nil, err
	}
	var w canonicalWriter
	if err := w.value(value); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// Canonicalize marshals v with encoding/json and canonicalizes the result,
// so struct tags decide field names.
func Canonicalize(v any) ([]byte, error) {
	switch value := v.(type) {
	case json.RawMessage:
		return CanonicalizeJSON(value)
	case []byte:
		return CanonicalizeJSON(value)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}
	return CanonicalizeJSON(raw)
}

func decodeSingle(input []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	var extra any
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return value, nil
	case err != nil:
		return nil, fmt.Errorf("invalid JSON: %w", err)
	default:
		return nil, errors.New("invalid JSON: trailing data")
	}
}

type canonicalWriter struct {
	buf bytes.Buffer
}

func (w *canonicalWriter) value(v any) error {
	switch t := v.(type) {
	case nil:
		w.buf.WriteString("null")
	case bool:
		w.buf.WriteString(strconv.FormatBool(t))
	case string:
		w.str(t)
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return fmt.Errorf("invalid JSON number: %w", err)
		}
		return w.number(f)
	case float64:
		return w.number(t)
	case map[string]any:
		return w.object(t)
	case []any:
		w.buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			if err := w.value(item); err != nil {
				return err
			}
		}
		w.buf.WriteByte(']')
	default:
		return fmt.Errorf("unsupported JSON type %T", v)
	}
	return nil
}

func (w *canonicalWriter) object(obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// RFC 8785 orders by UTF-16 code units; Go sorts by bytes, which agrees
	// for every key outside the supplementary planes.
	sort.Strings(keys)
	w.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.str(k)
		w.buf.WriteByte(':')
		if err := w.value(obj[k]); err != nil {
			return err
		}
	}
	w.buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

func (w *canonicalWriter) str(s string) {
	w.buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			w.buf.WriteByte('\\')
			w.buf.WriteRune(r)
		case r == '\b':
			w.buf.WriteString(`\b`)
		case r == '\f':
			w.buf.WriteString(`\f`)
		case r == '\n':
			w.buf.WriteString(`\n`)
		case r == '\r':
			w.buf.WriteString(`\r`)
		case r == '\t':
			w.buf.WriteString(`\t`)
		case r < 0x20:
			w.buf.WriteString(`\u00`)
			w.buf.WriteByte(hexDigits[r>>4])
			w.buf.WriteByte(hexDigits[r&0x0f])
		default:
			w.buf.WriteRune(r)
		}
	}
	w.buf.WriteByte('"')
}

func (w *canonicalWriter) number(f float64) error {
	s, err := formatES6(f)
	if err != nil {
		return err
	}
	w.buf.WriteString(s)
	return nil
}

// formatES6 renders f the way ECMAScript Number.prototype.toString does.
func formatES6(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.New("invalid JSON number")
	}
	if f == 0 {
		return "0", nil
	}
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, expPart, ok := strings.Cut(sci, "e")
	if !ok {
		return "", fmt.Errorf("invalid float format: %q", sci)
	}
	exp, err := strconv.Atoi(expPart)
	if err != nil {
		return "", fmt.Errorf("invalid float exponent: %w", err)
	}
	digits := strings.Replace(mantissa, ".", "", 1)

	if exp < -6 || exp > 20 {
		if len(digits) == 1 {
			return sign + digits + "e" + signedExp(exp), nil
		}
		return sign + digits[:1] + "." + digits[1:] + "e" + signedExp(exp), nil
	}
	point := exp + 1
	switch {
	case point >= len(digits):
		return sign + digits + strings.Repeat("0", point-len(digits)), nil
	case point <= 0:
		return sign + "0." + strings.Repeat("0", -point) + digits, nil
	default:
		return sign + digits[:point] + "." + digits[point:], nil
	}
}

func signedExp(exp int) string {
	if exp > 0 {
		return "+" + strconv.Itoa(exp)
	}
	return strconv.Itoa(exp)
}
