package codec

import gojson "github.com/goccy/go-json"

// GoJSON encodes with github.com/goccy/go-json and is the default codec.
// Geography labels and category values are written without HTML escaping,
// so "a&b" stays "a&b" in a run-state document.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error) { return gojson.MarshalNoEscape(v) }

func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// Name is "go-json".
func (GoJSON) Name() string { return "go-json" }

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}
