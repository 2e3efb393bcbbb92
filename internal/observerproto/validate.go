package observerproto

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://mobsim.local/observer/"

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*jsonschema.Schema
)

func compileSchemas() {
	schemas = map[string]*jsonschema.Schema{}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	names := []string{"subscribe.schema.json", "tick.schema.json"}
	for _, n := range names {
		src, err := schemaFS.ReadFile("schemas/" + n)
		if err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource(schemaBase+n, bytes.NewReader(src)); err != nil {
			schemaErr = fmt.Errorf("schema %s: %w", n, err)
			return
		}
	}
	for _, n := range names {
		s, err := c.Compile(schemaBase + n)
		if err != nil {
			schemaErr = fmt.Errorf("schema %s: %w", n, err)
			return
		}
		schemas[n] = s
	}
}

func validate(name string, raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	doc, err := unmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schemas[name].Validate(doc)
}

// ValidateSubscribe checks a raw client message against the SUBSCRIBE schema.
func ValidateSubscribe(raw []byte) error { return validate("subscribe.schema.json", raw) }

// ValidateTick checks a raw TICK message. Used by tests and tooling.
func ValidateTick(raw []byte) error { return validate("tick.schema.json", raw) }
