package codec

var _ Codec = rawCodec{}

type rawCodec struct{}

// Raw stores the field bytes unchanged.
func Raw() Codec {
	return rawCodec{}
}

func (rawCodec) Name() string {
	return "raw"
}

func (rawCodec) Encode(field string) ([]byte, error) {
	return []byte(field), nil
}

func (rawCodec) Decode(data []byte) string {
	return string(data)
}
