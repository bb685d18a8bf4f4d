// Package store persists mirrored MailPro data as schemaless documents
// grouped into named collections. DynamoDB backs production deployments;
// the in-memory store backs tests and local runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/mailpro-dashboard/internal/config"
)

// Collection names.
const (
	RawCampaigns     = "rawCampaigns"
	RawStats         = "rawStats"
	RawLists         = "rawLists"
	RawUnsubscribers = "rawUnsubscribers"
	RawSuppressions  = "rawSuppressions"
	JobStatus        = "jobStatus"
	DailyReports     = "dailyReports"
)

// Stamp field names written on every synced document.
const (
	FieldLastUpdated = "lastUpdated"
	FieldSyncedAt    = "syncedAt"
)

// DefaultBatchSize keeps every batch below the DynamoDB BatchWriteItem
// ceiling of 25 items.
const DefaultBatchSize = 20

// ErrNotFound is returned by Get when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is one stored record. Fields hold JSON-compatible values.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Store is a document store addressed by (collection, id).
type Store interface {
	// BatchUpsert overwrites every document, committing in chunks. All
	// chunks are awaited; the first chunk error is reported.
	BatchUpsert(ctx context.Context, collection string, docs []Document) error
	// Merge sets and removes individual fields, creating the document if
	// it does not exist.
	Merge(ctx context.Context, collection, id string, set map[string]any, remove []string) error
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
}

// New builds the store selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig, batchSize int) (Store, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(batchSize), nil
	case "dynamodb":
		return NewDynamoStoreFromConfig(ctx, cfg.DynamoDBTable, cfg.AWSRegion, cfg.GetAWSProfile(), batchSize)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// NewDocument converts v into a Document through its JSON form.
func NewDocument(id string, v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("marshaling %s: %w", id, err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return Document{}, fmt.Errorf("converting %s to fields: %w", id, err)
	}
	return Document{ID: id, Fields: fields}, nil
}

// Decode fills v from the document's fields.
func (d Document) Decode(v any) error {
	data, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", d.ID, err)
	}
	return nil
}

// Stamp sets lastUpdated (RFC3339) and syncedAt (epoch milliseconds).
func (d Document) Stamp(now time.Time) Document {
	if d.Fields == nil {
		d.Fields = make(map[string]any)
	}
	d.Fields[FieldLastUpdated] = now.UTC().Format(time.RFC3339)
	d.Fields[FieldSyncedAt] = now.UnixMilli()
	return d
}

// DecodeAll decodes every document into a T, skipping ones that do not fit.
func DecodeAll[T any](docs []Document) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// lastWins collapses documents that share an ID into the last one seen,
// at the position of the first. A batch write may not repeat a key.
func lastWins(docs []Document) []Document {
	index := make(map[string]int, len(docs))
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if i, ok := index[d.ID]; ok {
			out[i] = d
			continue
		}
		index[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

func chunk(docs []Document, size int) [][]Document {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var chunks [][]Document
	for start := 0; start < len(docs); start += size {
		end := start + size
		if end > len(docs) {
			end = len(docs)
		}
		chunks = append(chunks, docs[start:end])
	}
	return chunks
}
