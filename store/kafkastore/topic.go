package kafkastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"
)

type TopicSpec struct {
	Partitions        int32
	ReplicationFactor int16
	// Configs are extra topic configs; cleanup.policy is always compact.
	Configs map[string]string
}

// EnsureTopic creates the store's topic as a compacted topic. An existing
// topic is left as it is.
func (s *Store) EnsureTopic(ctx context.Context, spec TopicSpec) error {
	if spec.Partitions == 0 {
		spec.Partitions = -1
	}
	if spec.ReplicationFactor == 0 {
		spec.ReplicationFactor = -1
	}

	t := kmsg.NewCreateTopicsRequestTopic()
	t.Topic = s.c.Topic
	t.NumPartitions = spec.Partitions
	t.ReplicationFactor = spec.ReplicationFactor

	configs := map[string]string{"cleanup.policy": "compact"}
	for k, v := range spec.Configs {
		if k == "cleanup.policy" {
			continue
		}
		configs[k] = v
	}
	for name, value := range configs {
		c := kmsg.NewCreateTopicsRequestTopicConfig()
		c.Name = name
		c.Value = kmsg.StringPtr(value)
		t.Configs = append(t.Configs, c)
	}

	req := kmsg.NewPtrCreateTopicsRequest()
	req.Topics = append(req.Topics, t)
	req.TimeoutMillis = int32(s.c.ProduceTimeout.Milliseconds())

	resp, err := req.RequestWith(ctx, s.client)
	if err != nil {
		return fmt.Errorf("kafkastore: create topic %s: %w", s.c.Topic, classify(err))
	}

	for _, rt := range resp.Topics {
		err := kerr.ErrorForCode(rt.ErrorCode)
		switch {
		case err == nil:
			s.logger.Info("Created topic", "partitions", spec.Partitions, "replication_factor", spec.ReplicationFactor)
		case errors.Is(err, kerr.TopicAlreadyExists):
			s.logger.Debug("Topic already exists")
		default:
			msg := ""
			if rt.ErrorMessage != nil {
				msg = *rt.ErrorMessage
			}
			return fmt.Errorf("kafkastore: create topic %s: %w %s", rt.Topic, classify(err), msg)
		}
	}

	return nil
}
