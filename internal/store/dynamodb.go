package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jpillora/backoff"

	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
)

const (
	keyPK = "PK"
	keySK = "SK"

	defaultWriteAttempts = 5
)

// dynamoAPI is the subset of the DynamoDB client the store needs.
type dynamoAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps documents in a single table keyed by PK (collection)
// and SK (document id). Document fields become top-level attributes.
type DynamoStore struct {
	db        dynamoAPI
	tableName string
	batchSize int
	attempts  int
	minDelay  time.Duration
	maxDelay  time.Duration
}

// NewDynamoStoreFromConfig loads AWS credentials the standard way and
// builds a store on tableName.
func NewDynamoStoreFromConfig(ctx context.Context, tableName, region, profile string, batchSize int) (*DynamoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName, batchSize), nil
}

// NewDynamoStore wraps an existing client.
func NewDynamoStore(db dynamoAPI, tableName string, batchSize int) *DynamoStore {
	if batchSize <= 0 || batchSize > 25 {
		batchSize = DefaultBatchSize
	}
	return &DynamoStore{
		db:        db,
		tableName: tableName,
		batchSize: batchSize,
		attempts:  defaultWriteAttempts,
		minDelay:  100 * time.Millisecond,
		maxDelay:  3 * time.Second,
	}
}

// WithRetryDelays overrides the backoff used for unprocessed batch items.
func (s *DynamoStore) WithRetryDelays(min, max time.Duration) *DynamoStore {
	s.minDelay = min
	s.maxDelay = max
	return s
}

// BatchUpsert implements Store. Duplicate IDs collapse to the last
// document. Chunks are written concurrently and every chunk is awaited
// before returning.
func (s *DynamoStore) BatchUpsert(ctx context.Context, collection string, docs []Document) error {
	chunks := chunk(lastWins(docs), s.batchSize)
	if len(chunks) == 0 {
		return nil
	}

	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i, c := range chunks {
		wg.Add(1)
		go func(i int, c []Document) {
			defer wg.Done()
			errs[i] = s.writeChunk(ctx, collection, c)
		}(i, c)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("writing %s: %w", collection, err)
	}
	return nil
}

func (s *DynamoStore) writeChunk(ctx context.Context, collection string, docs []Document) error {
	requests := make([]types.WriteRequest, 0, len(docs))
	for _, d := range docs {
		item, err := s.item(collection, d)
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	boff := backoff.Backoff{Min: s.minDelay, Max: s.maxDelay, Factor: 2, Jitter: true}
	pending := map[string][]types.WriteRequest{s.tableName: requests}

	for attempt := 1; ; attempt++ {
		out, err := s.db.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}
		pending = out.UnprocessedItems
		if len(pending[s.tableName]) == 0 {
			return nil
		}
		if attempt >= s.attempts {
			return fmt.Errorf("batch write: %d items unprocessed after %d attempts", len(pending[s.tableName]), attempt)
		}

		dur := boff.Duration()
		logger.Debug("retrying unprocessed items", "collection", collection, "items", len(pending[s.tableName]), "delay", dur.String())
		timer := time.NewTimer(dur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Merge implements Store using a single UpdateItem SET/REMOVE expression.
func (s *DynamoStore) Merge(ctx context.Context, collection, id string, set map[string]any, remove []string) error {
	if len(set) == 0 && len(remove) == 0 {
		return nil
	}

	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)

	keys := make([]string, 0, len(set))
	for k := range set {
		if k == keyPK || k == keySK {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	if len(keys) > 0 {
		assigns := make([]string, 0, len(keys))
		for i, k := range keys {
			av, err := attributevalue.Marshal(set[k])
			if err != nil {
				return fmt.Errorf("marshaling %s.%s: %w", id, k, err)
			}
			n, v := "#s"+strconv.Itoa(i), ":s"+strconv.Itoa(i)
			names[n] = k
			values[v] = av
			assigns = append(assigns, n+" = "+v)
		}
		clauses = append(clauses, "SET "+strings.Join(assigns, ", "))
	}
	if len(remove) > 0 {
		removes := make([]string, 0, len(remove))
		for i, k := range remove {
			n := "#r" + strconv.Itoa(i)
			names[n] = k
			removes = append(removes, n)
		}
		clauses = append(clauses, "REMOVE "+strings.Join(removes, ", "))
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.key(collection, id),
		UpdateExpression:         aws.String(strings.Join(clauses, " ")),
		ExpressionAttributeNames: names,
	}
	if len(values) > 0 {
		input.ExpressionAttributeValues = values
	}

	if _, err := s.db.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get implements Store.
func (s *DynamoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(collection, id),
	})
	if err != nil {
		return Document{}, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	if len(out.Item) == 0 {
		return Document{}, ErrNotFound
	}
	return s.document(out.Item)
}

// List implements Store with a paginated Query on the collection key.
func (s *DynamoStore) List(ctx context.Context, collection string) ([]Document, error) {
	paginator := dynamodb.NewQueryPaginator(s.db, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: collection},
		},
	})

	var docs []Document
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", collection, err)
		}
		for _, item := range page.Items {
			d, err := s.document(item)
			if err != nil {
				logger.Warn("skipping undecodable item", "collection", collection, "err", err)
				continue
			}
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (s *DynamoStore) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyPK: &types.AttributeValueMemberS{Value: collection},
		keySK: &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) item(collection string, d Document) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(d.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s/%s: %w", collection, d.ID, err)
	}
	if item == nil {
		item = make(map[string]types.AttributeValue)
	}
	for k, v := range s.key(collection, d.ID) {
		item[k] = v
	}
	return item, nil
}

func (s *DynamoStore) document(item map[string]types.AttributeValue) (Document, error) {
	var id string
	if sk, ok := item[keySK].(*types.AttributeValueMemberS); ok {
		id = sk.Value
	}

	fields := make(map[string]any)
	if err := attributevalue.UnmarshalMap(item, &fields); err != nil {
		return Document{}, fmt.Errorf("unmarshaling %s: %w", id, err)
	}
	delete(fields, keyPK)
	delete(fields, keySK)
	return Document{ID: id, Fields: fields}, nil
}
