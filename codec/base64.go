package codec

import (
	"encoding/base64"
	"fmt"
)

var _ Codec = base64Codec{}

type base64Codec struct{}

func Base64() Codec {
	return base64Codec{}
}

func (base64Codec) Name() string {
	return "base64"
}

func (base64Codec) Encode(field string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		return nil, fmt.Errorf("codec: base64: %w", err)
	}
	return data, nil
}

func (base64Codec) Decode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
