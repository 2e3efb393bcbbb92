package observerproto

import (
	"encoding/json"
	"fmt"
	"io"
)

// unmarshalJSON decodes r into the generic form jsonschema/v5 validates,
// keeping numbers as json.Number and rejecting trailing data.
func unmarshalJSON(r io.Reader) (interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid character after top-level value")
	}
	return doc, nil
}
