package ledger

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/notification"
	"ingest/pkg/errors"
)

type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error

	gets int
	puts int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) id(key map[string]types.AttributeValue) string {
	return key[attrObjectID].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[f.id(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.err != nil {
		return nil, f.err
	}
	id := f.id(in.Item)
	if _, exists := f.items[id]; exists && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName: in.TableName,
		ItemCount: aws.Int64(int64(len(f.items))),
	}}, nil
}

func sampleEntry() Entry {
	return Entry{
		Bucket:         "raw",
		Key:            "alpha/beta/2024-01-01.jsonl",
		ProcessedAt:    time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.UTC),
		OutputBucket:   "out",
		OutputKey:      "alpha/beta/2024-01-01T12:00:00.123456789Z",
		OutputParts:    1,
		RecordCount:    3,
		TransformerKey: "alpha/beta",
	}
}

func TestDynamoDBLedger_LookupMiss(t *testing.T) {
	l := NewDynamoDBLedger(newFakeDynamo(), "ledger")

	entry, err := l.Lookup(context.Background(), notification.ObjectIdentity{Bucket: "raw", Key: "x"})
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestDynamoDBLedger_RecordThenLookup(t *testing.T) {
	api := newFakeDynamo()
	l := NewDynamoDBLedger(api, "ledger")
	ctx := context.Background()
	want := sampleEntry()

	require.NoError(t, l.Record(ctx, want))

	got, err := l.Lookup(ctx, want.Identity())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	item := api.items["s3://raw/alpha/beta/2024-01-01.jsonl"]
	require.NotNil(t, item)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "raw"}, item["bucket"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: want.Key}, item["object_key"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "2024-01-01T12:00:00.123456789Z"}, item["processed_at"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "3"}, item["record_count"])
}

func TestDynamoDBLedger_ProcessedAtStoredInUTC(t *testing.T) {
	api := newFakeDynamo()
	l := NewDynamoDBLedger(api, "ledger")
	ctx := context.Background()

	entry := sampleEntry()
	entry.ProcessedAt = entry.ProcessedAt.In(time.FixedZone("CET", 3600))
	require.NoError(t, l.Record(ctx, entry))

	got, err := l.Lookup(ctx, entry.Identity())
	require.NoError(t, err)
	assert.Equal(t, sampleEntry().ProcessedAt, got.ProcessedAt)
}

func TestDynamoDBLedger_RecordIsIdempotent(t *testing.T) {
	api := newFakeDynamo()
	l := NewDynamoDBLedger(api, "ledger")
	ctx := context.Background()

	first := sampleEntry()
	require.NoError(t, l.Record(ctx, first))

	second := first
	second.OutputKey = "alpha/beta/later"
	require.NoError(t, l.Record(ctx, second))

	got, err := l.Lookup(ctx, first.Identity())
	require.NoError(t, err)
	assert.Equal(t, first.OutputKey, got.OutputKey)
	assert.Equal(t, 2, api.puts)
}

func TestDynamoDBLedger_Errors(t *testing.T) {
	api := newFakeDynamo()
	api.err = stderrors.New("throttled")
	l := NewDynamoDBLedger(api, "ledger")
	ctx := context.Background()

	_, err := l.Lookup(ctx, notification.ObjectIdentity{Bucket: "raw", Key: "k"})
	require.Error(t, err)
	assert.True(t, errors.IsLedgerIO(err))

	err = l.Record(ctx, sampleEntry())
	require.Error(t, err)
	assert.True(t, errors.IsLedgerIO(err))
	assert.Contains(t, err.Error(), "s3://raw/alpha/beta/2024-01-01.jsonl")

	assert.Error(t, l.Check(ctx))
}

func TestDynamoDBLedger_CorruptItem(t *testing.T) {
	api := newFakeDynamo()
	api.items["s3://raw/k"] = map[string]types.AttributeValue{
		attrObjectID:   &types.AttributeValueMemberS{Value: "s3://raw/k"},
		"record_count": &types.AttributeValueMemberN{Value: "many"},
	}
	l := NewDynamoDBLedger(api, "ledger")

	_, err := l.Lookup(context.Background(), notification.ObjectIdentity{Bucket: "raw", Key: "k"})
	require.Error(t, err)
	assert.True(t, errors.IsLedgerIO(err))
}

func TestDynamoDBLedger_CountAndCheck(t *testing.T) {
	api := newFakeDynamo()
	l := NewDynamoDBLedger(api, "ledger")
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, sampleEntry()))
	require.NoError(t, l.Check(ctx))

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "dynamodb", l.Name())
}
