// Package codec converts textual fields handed over by a source into the raw
// bytes stored under a key or value, and back for display.
package codec

import (
	"fmt"
	"strings"
)

type Codec interface {
	Name() string
	Encode(field string) ([]byte, error)
	Decode(data []byte) string
}

// ByName resolves a codec from configuration. The empty name selects Raw.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "raw", "utf8", "string":
		return Raw(), nil
	case "hex":
		return Hex(), nil
	case "base64", "b64":
		return Base64(), nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
