// Package canon provides the canonical byte encoding and digest scheme shared
// by the ledger, the verifier, and the proof kernel.
//
// The encoding is deliberately policy-free: it defines *how* values become
// bytes and digests, not *what* should be hashed.
//
// Canonical form:
//  1. Object keys are sorted lexicographically by code point.
//  2. No whitespace between tokens.
//  3. UTF-8 output with non-ASCII characters preserved unescaped.
//  4. Numbers are passed through unchanged when supplied as json.Number;
//     NaN/Infinity are out of scope.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// DigestPrefix is the self-describing digest scheme identifier.
const DigestPrefix = "sha256"

// Canonical returns the deterministic JSON encoding of v.
//
// v is first marshaled through encoding/json (so struct tags are respected),
// decoded back into a generic tree with json.Number to preserve numeric
// text, then re-emitted with sorted keys and HTML escaping disabled.
func Canonical(v interface{}) ([]byte, error) {
	generic, err := decodeGeneric(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCompact(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalIndent returns the human-readable canonical encoding of v: sorted
// keys, 2-space indentation, no HTML escaping, no trailing newline. This is
// the form used for on-disk manifests and parents.json.
func CanonicalIndent(v interface{}) ([]byte, error) {
	generic, err := decodeGeneric(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeIndent(&buf, generic, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalHash returns the bare 64-hex SHA-256 of the canonical encoding of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

// SHA256Hex returns the bare lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256Prefixed returns a stable, self-describing digest string of the form
// "sha256:" + 64-hex.
func SHA256Prefixed(data []byte) string {
	return DigestPrefix + ":" + SHA256Hex(data)
}

// SHA256File streams path through SHA-256 and returns the bare hex digest.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsHex64 reports whether s is exactly 64 lowercase hex characters — the bare
// digest form used as node ids and file-system names.
func IsHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IsSHA256Prefixed reports whether s has the form "sha256:" + 64-hex.
func IsSHA256Prefixed(s string) bool {
	const p = DigestPrefix + ":"
	return len(s) == len(p)+64 && s[:len(p)] == p && IsHex64(s[len(p):])
}

// NormalizeString returns the Unicode NFC normalization of s. No trimming,
// casing, or locale behavior is introduced at this layer.
func NormalizeString(s string) string {
	return norm.NFC.String(s)
}

// Recanonicalize re-serializes already-encoded JSON to RFC 8785 (JCS) form.
// Used for interop digests where the counterparty pins RFC 8785 rather than
// this package's encoding. The two agree on typical documents; they can
// differ in number formatting, in the escaping of U+2028 and U+2029 (escaped
// here, raw in RFC 8785), and in the order of keys containing characters
// outside the Basic Multilingual Plane (byte order here, UTF-16 order there).
func Recanonicalize(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("recanonicalize: %w", err)
	}
	return out, nil
}

func decodeGeneric(v interface{}) (interface{}, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: pre-marshal failed: %w", err)
	}

	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canon: intermediate decode failed: %w", err)
	}
	return generic, nil
}

func encodeCompact(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case json.Number:
		buf.WriteString(t.String())
	case string:
		return encodeString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCompact(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		buf.WriteByte('{')
		for i, k := range sortedKeys(t) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeCompact(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canon: unsupported type %T", v)
	}
	return nil
}

func encodeIndent(buf *bytes.Buffer, v interface{}, depth int) error {
	switch t := v.(type) {
	case []interface{}:
		if len(t) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
			writeIndent(buf, depth+1)
			if err := encodeIndent(buf, item, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('\n')
		writeIndent(buf, depth)
		buf.WriteByte(']')
	case map[string]interface{}:
		if len(t) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range sortedKeys(t) {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
			writeIndent(buf, depth+1)
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteString(": ")
			if err := encodeIndent(buf, t[k], depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('\n')
		writeIndent(buf, depth)
		buf.WriteByte('}')
	default:
		return encodeCompact(buf, v)
	}
	return nil
}

// encodeString emits a JSON string without HTML escaping. encoding/json's
// Encoder appends a newline, which is trimmed here.
func encodeString(buf *bytes.Buffer, s string) error {
	var sb bytes.Buffer
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(sb.Bytes(), "\n"))
	return nil
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
