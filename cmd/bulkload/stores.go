package main

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-bulkload/internal/config"
	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/store"
	"github.com/hugolhafner/go-bulkload/store/boltstore"
	"github.com/hugolhafner/go-bulkload/store/etcdstore"
	"github.com/hugolhafner/go-bulkload/store/kafkastore"
	"github.com/hugolhafner/go-bulkload/store/logstore"
)

func (rt *runtime) openStore(ctx context.Context) (store.Store, error) {
	cfg := rt.cfg

	switch cfg.Store {
	case config.StoreBolt:
		s, err := rt.openBolt(false)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.StoreEtcd:
		s, err := rt.dialEtcd()
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.StoreKafka:
		s, err := kafkastore.New(
			kafkastore.WithBootstrapServers(cfg.Kafka.Brokers...),
			kafkastore.WithTopic(cfg.Kafka.Topic),
			kafkastore.WithClientID(cfg.Kafka.ClientID),
			kafkastore.WithProduceTimeout(cfg.Kafka.ProduceTimeout),
			kafkastore.WithPropagator(rt.tel.Propagator),
			kafkastore.WithLogger(rt.logger),
		)
		if err != nil {
			return nil, err
		}

		if cfg.Kafka.CreateTopic {
			spec := kafkastore.TopicSpec{
				Partitions:        cfg.Kafka.Partitions,
				ReplicationFactor: cfg.Kafka.ReplicationFactor,
			}
			if err := s.EnsureTopic(ctx, spec); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		return s, nil

	case config.StoreLog:
		level, err := logger.ParseLevel(cfg.LogStore.Level)
		if err != nil {
			return nil, err
		}
		return logstore.New(
			logstore.WithLabel(cfg.LogStore.Label),
			logstore.WithLevel(level),
			logstore.WithRecords(cfg.LogStore.Records),
			logstore.WithLogger(rt.logger),
		), nil
	}

	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func (rt *runtime) openBolt(readOnly bool) (*boltstore.Store, error) {
	return boltstore.Open(
		rt.cfg.Bolt.Path,
		boltstore.WithBucket(rt.cfg.Bolt.Bucket),
		boltstore.WithTimeout(rt.cfg.Bolt.Timeout),
		boltstore.WithNoSync(rt.cfg.Bolt.NoSync),
		boltstore.WithReadOnly(readOnly),
		boltstore.WithLogger(rt.logger),
	)
}

func (rt *runtime) dialEtcd() (*etcdstore.Store, error) {
	return etcdstore.Dial(
		etcdstore.WithEndpoints(rt.cfg.Etcd.Endpoints...),
		etcdstore.WithDialTimeout(rt.cfg.Etcd.DialTimeout),
		etcdstore.WithAuth(rt.cfg.Etcd.Username, rt.cfg.Etcd.Password),
		etcdstore.WithPrefix(rt.cfg.Etcd.Prefix),
		etcdstore.WithMaxTxnOps(rt.cfg.Etcd.MaxTxnOps),
		etcdstore.WithLogger(rt.logger),
		etcdstore.WithZapLogger(rt.zap.Named("etcd")),
	)
}
