package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/civicreport/llm"
)

// CallsTTL is how long AI call records are kept in JetStream.
const CallsTTL = 7 * 24 * time.Hour

// CallLog stores AI call records. It implements llm.CallRecorder.
type CallLog struct {
	bucket Bucket
}

// NewCallLog opens the AI call bucket, creating it with CallsTTL if needed.
func NewCallLog(ctx context.Context, js jetstream.JetStream) (*CallLog, error) {
	cfg := bucketConfig(BucketCalls)
	cfg.History = 1
	cfg.TTL = CallsTTL

	kv, err := getOrCreateBucket(ctx, js, cfg)
	if err != nil {
		return nil, fmt.Errorf("create calls bucket: %w", err)
	}
	return NewCallLogWithBucket(NewKVBucket(kv)), nil
}

// NewCallLogWithBucket creates a CallLog over an arbitrary bucket.
func NewCallLogWithBucket(b Bucket) *CallLog {
	return &CallLog{bucket: b}
}

// Record stores record under its request ID.
func (l *CallLog) Record(ctx context.Context, record *llm.CallRecord) error {
	if record.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal call record: %w", err)
	}
	return l.bucket.Put(ctx, record.RequestID, data)
}

// Get returns the record for requestID.
func (l *CallLog) Get(ctx context.Context, requestID string) (*llm.CallRecord, error) {
	data, _, err := l.bucket.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	var rec llm.CallRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal call record: %w", err)
	}
	return &rec, nil
}

// List returns records oldest first. A non-empty traceID keeps only that
// trace's records; limit > 0 keeps only the most recent limit records.
func (l *CallLog) List(ctx context.Context, traceID string, limit int) ([]*llm.CallRecord, error) {
	keys, err := l.bucket.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list call keys: %w", err)
	}

	var records []*llm.CallRecord
	for _, key := range keys {
		rec, err := l.Get(ctx, key)
		if err != nil {
			// Expired between listing and reading.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if traceID != "" && rec.TraceID != traceID {
			continue
		}
		records = append(records, rec)
	}

	llm.SortByStartTime(records)
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}
