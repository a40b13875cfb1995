// Package codec selects the encoding of run-state documents and audit
// findings.
//
// Run state records the codec name next to the payload, so a checkpoint
// written with one codec is decoded with the same codec on resume.
package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownCodec is returned by Lookup for a name with no built-in codec.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Lookup is ByName with an error for unknown names. An empty name selects
// Default.
func Lookup(name string) (Codec, error) {
	if name == "" {
		return Default, nil
	}
	c, ok := ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}
