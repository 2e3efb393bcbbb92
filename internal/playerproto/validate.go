package playerproto

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://mobsim.local/player/"

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*jsonschema.Schema
)

func compileSchemas() {
	schemas = map[string]*jsonschema.Schema{}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	// Agent and player ids must be real uuids.
	c.AssertFormat = true
	names := []string{"hello.schema.json", "act.schema.json"}
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

// ValidateHello checks a raw client message against the HELLO schema.
func ValidateHello(raw []byte) error { return validate("hello.schema.json", raw) }

// ValidateAct checks a raw client message against the ACT schema.
func ValidateAct(raw []byte) error { return validate("act.schema.json", raw) }
