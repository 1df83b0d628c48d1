package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/epistemiclabs/ledger/pkg/canon"
)

// The manifest schema is embedded and pinned: validation fails loudly if the
// embedded bytes no longer hash to the companion pin. Schema evolution is a
// deliberate act, never drift.

//go:embed schema/node-manifest-v1.schema.json
var schemaBytes []byte

//go:embed schema/SCHEMA_SHA256
var schemaPin string

const schemaURL = "https://epistemiclabs.schemas.local/ledger/node-manifest-v1.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		pinned := strings.TrimSpace(schemaPin)
		actual := canon.SHA256Hex(schemaBytes)
		if pinned != actual {
			schemaErr = fmt.Errorf(
				"manifest: schema hash pin mismatch\n  pinned: %s\n  actual: %s", pinned, actual)
			return
		}

		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaBytes)); err != nil {
			schemaErr = fmt.Errorf("manifest: schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateBytes checks raw manifest JSON against the pinned schema. Schema
// validation complements — never replaces — the field-by-field structural
// checks done by consumers; it catches shape errors early with precise paths.
func ValidateBytes(raw []byte) error {
	s, err := compileSchema()
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("manifest: invalid JSON: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("manifest: schema validation: %w", err)
	}
	return nil
}

// SchemaSHA256 returns the pinned digest of the embedded manifest schema.
func SchemaSHA256() string {
	return strings.TrimSpace(schemaPin)
}
