package codec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

var _ Codec = hexCodec{}

type hexCodec struct{}

// Hex decodes hex encoded fields, with or without a 0x prefix.
func Hex() Codec {
	return hexCodec{}
}

func (hexCodec) Name() string {
	return "hex"
}

func (hexCodec) Encode(field string) ([]byte, error) {
	field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
	data, err := hex.DecodeString(field)
	if err != nil {
		return nil, fmt.Errorf("codec: hex: %w", err)
	}
	return data, nil
}

func (hexCodec) Decode(data []byte) string {
	return hex.EncodeToString(data)
}
