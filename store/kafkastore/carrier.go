package kafkastore

import (
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/propagation"
)

var _ propagation.TextMapCarrier = headersCarrier{}

// headersCarrier lets a propagator write trace context into record headers.
type headersCarrier struct {
	headers *[]kgo.RecordHeader
}

func (c headersCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headersCarrier) Set(key, value string) {
	// kafka allows duplicate header keys, overwrite every match or append
	found := false
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			found = true
		}
	}

	if !found {
		*c.headers = append(*c.headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
	}
}

func (c headersCarrier) Keys() []string {
	keys := make([]string, len(*c.headers))
	for i, h := range *c.headers {
		keys[i] = h.Key
	}
	return keys
}
