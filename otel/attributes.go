package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrRunID         = attribute.Key("bulkload.run.id")
	AttrBatchSequence = attribute.Key("bulkload.batch.sequence")
	AttrBatchRecords  = attribute.Key("bulkload.batch.records")
	AttrBatchBytes    = attribute.Key("bulkload.batch.bytes")
	AttrWriteStatus   = attribute.Key("bulkload.write.status")
	AttrWriteAttempt  = attribute.Key("bulkload.write.attempt")
	AttrErrorClass    = attribute.Key("bulkload.error.class")
	AttrErrorAction   = attribute.Key("bulkload.error.action")
	AttrStoreType     = attribute.Key("bulkload.store.type")
	AttrPipelineState = attribute.Key("bulkload.pipeline.state")
)

// Write status values
const (
	StatusSuccess   = "success"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Store type values
const (
	StoreTypeBolt  = "bolt"
	StoreTypeEtcd  = "etcd"
	StoreTypeKafka = "kafka"
	StoreTypeLog   = "log"
)
