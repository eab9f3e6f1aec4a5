//go:build unit

package kafkastore

import (
	"context"
	"errors"
	"testing"

	"github.com/hugolhafner/go-bulkload/logger"
	mocklogger "github.com/hugolhafner/go-bulkload/logger/mock"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type fakeClient struct {
	produced [][]*kgo.Record
	errFn    func(r *kgo.Record) error
	requests []kmsg.Request
	resp     kmsg.Response
	reqErr   error
	pingErr  error
	closed   bool
}

func (f *fakeClient) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.produced = append(f.produced, rs)
	results := make(kgo.ProduceResults, 0, len(rs))
	// completion order is not submission order
	for i := len(rs) - 1; i >= 0; i-- {
		var err error
		if f.errFn != nil {
			err = f.errFn(rs[i])
		}
		results = append(results, kgo.ProduceResult{Record: rs[i], Err: err})
	}
	return results
}

func (f *fakeClient) Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.reqErr
}

func (f *fakeClient) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeClient) Close() {
	f.closed = true
}

func newTestStore(t *testing.T, cl client, opts ...Option) *Store {
	t.Helper()
	cfg := defaultConfig()
	cfg.Topic = "kv"
	for _, opt := range opts {
		opt(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return newStore(cl, cfg, logger.NewNoopLogger())
}

func batch(keys ...string) []record.Record {
	out := make([]record.Record, len(keys))
	for i, k := range keys {
		out[i] = record.New([]byte(k), []byte("v"+k))
	}
	return out
}

func TestPutBatch_AllAcked(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{}
	s := newTestStore(t, cl)

	require.NoError(t, s.PutBatch(context.Background(), batch("a", "b")))
	require.Len(t, cl.produced, 1)
	require.Len(t, cl.produced[0], 2)
	require.Equal(t, "kv", cl.produced[0][0].Topic)
	require.Equal(t, []byte("a"), cl.produced[0][0].Key)
	require.Equal(t, []byte("vb"), cl.produced[0][1].Value)
}

func TestPutBatch_PartialNamesFailedIndexes(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{
		errFn: func(r *kgo.Record) error {
			if string(r.Key) == "b" || string(r.Key) == "d" {
				return kerr.NotLeaderForPartition
			}
			return nil
		},
	}
	s := newTestStore(t, cl)

	err := s.PutBatch(context.Background(), batch("a", "b", "c", "d"))
	pe, ok := store.AsPartialError(err)
	require.True(t, ok)
	require.ElementsMatch(t, []int{1, 3}, pe.Unacked)
	require.True(t, store.IsTransient(err))
}

func TestPutBatch_AllFailed(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{
		errFn: func(*kgo.Record) error {
			return kerr.TopicAuthorizationFailed
		},
	}
	s := newTestStore(t, cl)

	err := s.PutBatch(context.Background(), batch("a", "b"))
	_, partial := store.AsPartialError(err)
	require.False(t, partial)
	require.True(t, store.IsPermanent(err))
	require.ErrorIs(t, err, kerr.TopicAuthorizationFailed)
}

func TestPutBatch_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "write")
	defer span.End()

	cl := &fakeClient{}
	s := newTestStore(t, cl, WithPropagator(propagation.TraceContext{}))

	require.NoError(t, s.PutBatch(ctx, batch("a")))

	carrier := headersCarrier{headers: &cl.produced[0][0].Headers}
	require.NotEmpty(t, carrier.Get("traceparent"))
	require.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected store.Class
	}{
		{"record timeout", kgo.ErrRecordTimeout, store.ClassTransient},
		{"record retries", kgo.ErrRecordRetries, store.ClassTransient},
		{"client closed", kgo.ErrClientClosed, store.ClassPermanent},
		{"retriable kerr", kerr.LeaderNotAvailable, store.ClassTransient},
		{"request timed out", kerr.RequestTimedOut, store.ClassTransient},
		{"message too large", kerr.MessageTooLarge, store.ClassPermanent},
		{"invalid record", kerr.InvalidRecord, store.ClassPermanent},
		{"deadline", context.DeadlineExceeded, store.ClassTransient},
		{"plain", errors.New("boom"), store.ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				require.Equal(t, tt.expected, store.Classify(classify(tt.err)))
			},
		)
	}
}

func TestEnsureTopic(t *testing.T) {
	t.Parallel()

	resp := kmsg.NewPtrCreateTopicsResponse()
	rt := kmsg.NewCreateTopicsResponseTopic()
	rt.Topic = "kv"
	resp.Topics = append(resp.Topics, rt)

	cl := &fakeClient{resp: resp}
	s := newTestStore(t, cl)

	err := s.EnsureTopic(
		context.Background(), TopicSpec{
			Partitions:        6,
			ReplicationFactor: 3,
			Configs:           map[string]string{"cleanup.policy": "delete", "min.insync.replicas": "2"},
		},
	)
	require.NoError(t, err)

	require.Len(t, cl.requests, 1)
	req, ok := cl.requests[0].(*kmsg.CreateTopicsRequest)
	require.True(t, ok)
	require.Len(t, req.Topics, 1)
	require.Equal(t, "kv", req.Topics[0].Topic)
	require.Equal(t, int32(6), req.Topics[0].NumPartitions)
	require.Equal(t, int16(3), req.Topics[0].ReplicationFactor)

	configs := make(map[string]string)
	for _, c := range req.Topics[0].Configs {
		configs[c.Name] = *c.Value
	}
	require.Equal(t, "compact", configs["cleanup.policy"])
	require.Equal(t, "2", configs["min.insync.replicas"])
}

func TestEnsureTopic_AlreadyExists(t *testing.T) {
	t.Parallel()

	resp := kmsg.NewPtrCreateTopicsResponse()
	rt := kmsg.NewCreateTopicsResponseTopic()
	rt.Topic = "kv"
	rt.ErrorCode = kerr.TopicAlreadyExists.Code
	resp.Topics = append(resp.Topics, rt)

	s := newTestStore(t, &fakeClient{resp: resp})
	require.NoError(t, s.EnsureTopic(context.Background(), TopicSpec{}))
}

func TestEnsureTopic_Failure(t *testing.T) {
	t.Parallel()

	resp := kmsg.NewPtrCreateTopicsResponse()
	rt := kmsg.NewCreateTopicsResponseTopic()
	rt.Topic = "kv"
	rt.ErrorCode = kerr.InvalidReplicationFactor.Code
	resp.Topics = append(resp.Topics, rt)

	s := newTestStore(t, &fakeClient{resp: resp})
	err := s.EnsureTopic(context.Background(), TopicSpec{ReplicationFactor: 9})
	require.ErrorIs(t, err, kerr.InvalidReplicationFactor)
}

func TestPingAndClose(t *testing.T) {
	t.Parallel()

	cl := &fakeClient{pingErr: kerr.BrokerNotAvailable}
	s := newTestStore(t, cl)

	require.True(t, store.IsTransient(s.Ping(context.Background())))
	require.NoError(t, s.Close())
	require.True(t, cl.closed)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	_, err := New()
	require.Error(t, err, "topic is required")

	_, err = New(WithTopic("kv"), WithBootstrapServers())
	require.Error(t, err)
}

func TestKgoLogger(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	kl := newKgoLogger(l)

	require.Equal(t, kgo.LogLevelDebug, kl.Level())

	kl.Log(kgo.LogLevelInfo, "metadata update", "broker", 1)
	kl.Log(kgo.LogLevelError, "connection lost")

	l.AssertCalled(t, logger.InfoLevel, "metadata update", "broker", 1)
	l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "connection lost")

	require.Equal(t, kgo.LogLevelWarn, mapToKgoLevel(logger.LogLevel(99)))
	require.Equal(t, logger.WarnLevel, mapFromKgoLevel(kgo.LogLevelNone))
}

func TestHeadersCarrier(t *testing.T) {
	t.Parallel()

	headers := []kgo.RecordHeader{{Key: "traceparent", Value: []byte("old")}}
	c := headersCarrier{headers: &headers}

	c.Set("traceparent", "new")
	c.Set("tracestate", "x=1")

	require.Len(t, headers, 2)
	require.Equal(t, "new", c.Get("traceparent"))
	require.Equal(t, "x=1", c.Get("tracestate"))
	require.Equal(t, "", c.Get("missing"))
	require.Equal(t, []string{"traceparent", "tracestate"}, c.Keys())
}
