package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is a single-table in-memory stand-in for the DynamoDB client.
type fakeDynamo struct {
	mu         sync.Mutex
	items      map[string]map[string]map[string]types.AttributeValue
	batchSizes []int
	// unprocessedRounds makes the next N BatchWriteItem calls leave their
	// last item unprocessed.
	unprocessedRounds int
	batchErr          error
	pageSize          int
	updates           []*dynamodb.UpdateItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]map[string]types.AttributeValue)}
}

func strAttr(item map[string]types.AttributeValue, k string) string {
	if v, ok := item[k].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) put(item map[string]types.AttributeValue) {
	pk, sk := strAttr(item, keyPK), strAttr(item, keySK)
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	f.items[pk][sk] = item
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		if len(reqs) > 25 {
			return nil, errors.New("ValidationException: too many items")
		}
		seen := make(map[string]bool, len(reqs))
		for _, r := range reqs {
			key := strAttr(r.PutRequest.Item, keyPK) + "|" + strAttr(r.PutRequest.Item, keySK)
			if seen[key] {
				return nil, errors.New("ValidationException: Provided list of item keys contains duplicates: " + key)
			}
			seen[key] = true
		}
		f.batchSizes = append(f.batchSizes, len(reqs))
		process := reqs
		if f.unprocessedRounds > 0 && len(reqs) > 0 {
			f.unprocessedRounds--
			process = reqs[:len(reqs)-1]
			out.UnprocessedItems[table] = reqs[len(reqs)-1:]
		}
		for _, r := range process {
			f.put(r.PutRequest.Item)
		}
	}
	return out, nil
}

// UpdateItem understands the "SET #a = :a, ... REMOVE #b, ..." form the
// store generates.
func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)

	pk, sk := strAttr(in.Key, keyPK), strAttr(in.Key, keySK)
	item := f.items[pk][sk]
	if item == nil {
		item = map[string]types.AttributeValue{keyPK: in.Key[keyPK], keySK: in.Key[keySK]}
		f.put(item)
	}

	expr := *in.UpdateExpression
	var setPart, removePart string
	if i := strings.Index(expr, "REMOVE "); i >= 0 {
		removePart = strings.TrimPrefix(expr[i:], "REMOVE ")
		expr = strings.TrimSpace(expr[:i])
	}
	setPart = strings.TrimPrefix(expr, "SET ")

	if setPart != "" {
		for _, assign := range strings.Split(setPart, ", ") {
			parts := strings.SplitN(assign, " = ", 2)
			item[in.ExpressionAttributeNames[parts[0]]] = in.ExpressionAttributeValues[parts[1]]
		}
	}
	if removePart != "" {
		for _, n := range strings.Split(removePart, ", ") {
			delete(item, in.ExpressionAttributeNames[n])
		}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[strAttr(in.Key, keyPK)][strAttr(in.Key, keySK)]}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk := strAttr(in.ExpressionAttributeValues, ":pk")
	coll := f.items[pk]
	sks := make([]string, 0, len(coll))
	for sk := range coll {
		sks = append(sks, sk)
	}
	sort.Strings(sks)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := strAttr(in.ExclusiveStartKey, keySK)
		start = sort.SearchStrings(sks, after) + 1
	}
	end := len(sks)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	out := &dynamodb.QueryOutput{}
	for _, sk := range sks[start:end] {
		out.Items = append(out.Items, coll[sk])
	}
	if end < len(sks) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			keyPK: &types.AttributeValueMemberS{Value: pk},
			keySK: &types.AttributeValueMemberS{Value: sks[end-1]},
		}
	}
	return out, nil
}

func newTestDynamoStore(db *fakeDynamo) *DynamoStore {
	return NewDynamoStore(db, "mailpro", 0).WithRetryDelays(time.Millisecond, 2*time.Millisecond)
}

func docs(n int) []Document {
	out := make([]Document, n)
	for i := range out {
		out[i] = Document{ID: "c" + string(rune('a'+i%26)) + strings.Repeat("x", i/26), Fields: map[string]any{"n": i}}
	}
	return out
}

func TestDynamoStore_BatchUpsertChunks(t *testing.T) {
	db := newFakeDynamo()
	s := newTestDynamoStore(db)

	require.NoError(t, s.BatchUpsert(context.Background(), RawCampaigns, docs(45)))

	sizes := append([]int(nil), db.batchSizes...)
	sort.Ints(sizes)
	assert.Equal(t, []int{5, 20, 20}, sizes)
	assert.Len(t, db.items[RawCampaigns], 45)
}

func TestDynamoStore_BatchUpsertDuplicateIDsLastWins(t *testing.T) {
	db := newFakeDynamo()
	s := newTestDynamoStore(db)

	err := s.BatchUpsert(context.Background(), DailyReports, []Document{
		{ID: "2024-06-15_spring-sale", Fields: map[string]any{"campaign_name": "Spring Sale"}},
		{ID: "2024-06-15_newsletter", Fields: map[string]any{"campaign_name": "Newsletter"}},
		{ID: "2024-06-15_spring-sale", Fields: map[string]any{"campaign_name": "Spring sale!"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, db.batchSizes)

	got, err := s.Get(context.Background(), DailyReports, "2024-06-15_spring-sale")
	require.NoError(t, err)
	assert.Equal(t, "Spring sale!", got.Fields["campaign_name"])
}

func TestDynamoStore_BatchUpsertEmpty(t *testing.T) {
	db := newFakeDynamo()
	require.NoError(t, newTestDynamoStore(db).BatchUpsert(context.Background(), RawCampaigns, nil))
	assert.Empty(t, db.batchSizes)
}

func TestDynamoStore_RetriesUnprocessedItems(t *testing.T) {
	db := newFakeDynamo()
	db.unprocessedRounds = 2
	s := newTestDynamoStore(db)

	require.NoError(t, s.BatchUpsert(context.Background(), RawStats, docs(3)))
	assert.Equal(t, []int{3, 1, 1}, db.batchSizes)
	assert.Len(t, db.items[RawStats], 3)
}

func TestDynamoStore_GivesUpOnPersistentUnprocessed(t *testing.T) {
	db := newFakeDynamo()
	db.unprocessedRounds = 100
	s := newTestDynamoStore(db)

	err := s.BatchUpsert(context.Background(), RawStats, docs(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unprocessed after 5 attempts")
	assert.Contains(t, err.Error(), RawStats)
}

func TestDynamoStore_BatchError(t *testing.T) {
	db := newFakeDynamo()
	db.batchErr = errors.New("throttled")

	err := newTestDynamoStore(db).BatchUpsert(context.Background(), RawLists, docs(30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestDynamoStore_GetAndList(t *testing.T) {
	db := newFakeDynamo()
	db.pageSize = 2
	s := newTestDynamoStore(db)
	ctx := context.Background()

	require.NoError(t, s.BatchUpsert(ctx, RawLists, []Document{
		{ID: "l1", Fields: map[string]any{"name": "Weekly", "count": 3}},
		{ID: "l2", Fields: map[string]any{"name": "Promo"}},
		{ID: "l3", Fields: map[string]any{"name": "VIP", "tags": map[string]any{"tier": "gold"}}},
	}))
	require.NoError(t, s.BatchUpsert(ctx, RawCampaigns, []Document{{ID: "c1", Fields: map[string]any{"name": "x"}}}))

	got, err := s.Get(ctx, RawLists, "l1")
	require.NoError(t, err)
	assert.Equal(t, "l1", got.ID)
	assert.Equal(t, "Weekly", got.Fields["name"])
	assert.Equal(t, float64(3), got.Fields["count"])
	assert.NotContains(t, got.Fields, keyPK)

	_, err = s.Get(ctx, RawLists, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.List(ctx, RawLists)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"l1", "l2", "l3"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, map[string]any{"tier": "gold"}, all[2].Fields["tags"])
}

func TestDynamoStore_Merge(t *testing.T) {
	db := newFakeDynamo()
	s := newTestDynamoStore(db)
	ctx := context.Background()

	require.NoError(t, s.Merge(ctx, JobStatus, "hourlySync", map[string]any{
		"status":    "failure",
		"lastError": "boom",
	}, nil))
	require.NoError(t, s.Merge(ctx, JobStatus, "hourlySync", map[string]any{
		"status":      "success",
		"lastSuccess": "2024-06-15T12:00:00Z",
	}, []string{"lastError"}))

	doc, err := s.Get(ctx, JobStatus, "hourlySync")
	require.NoError(t, err)
	assert.Equal(t, "success", doc.Fields["status"])
	assert.Equal(t, "2024-06-15T12:00:00Z", doc.Fields["lastSuccess"])
	assert.NotContains(t, doc.Fields, "lastError")

	last := db.updates[len(db.updates)-1]
	assert.Equal(t, "SET #s0 = :s0, #s1 = :s1 REMOVE #r0", *last.UpdateExpression)
}

func TestDynamoStore_MergeNothing(t *testing.T) {
	db := newFakeDynamo()
	require.NoError(t, newTestDynamoStore(db).Merge(context.Background(), JobStatus, "x", nil, nil))
	assert.Empty(t, db.updates)
}

func TestDynamoStore_RoundTripThroughAttributeValues(t *testing.T) {
	doc, err := NewDocument("c1", map[string]any{"name": "Spring", "opens": 12})
	require.NoError(t, err)
	doc = doc.Stamp(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))

	s := newTestDynamoStore(newFakeDynamo())
	item, err := s.item(RawCampaigns, doc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, attributevalue.UnmarshalMap(item, &raw))
	assert.Equal(t, RawCampaigns, raw[keyPK])
	assert.Equal(t, "2024-06-15T12:00:00Z", raw[FieldLastUpdated])
	assert.Equal(t, float64(1718452800000), raw[FieldSyncedAt])
}
