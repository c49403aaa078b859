package ledger

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"ingest/internal/notification"
	"ingest/pkg/errors"
	"ingest/pkg/metrics"
)

const (
	dynamoBackend = "dynamodb"

	// The table's partition key is attrObjectID (string); no sort key.
	attrObjectID = "object_id"
)

// dynamoItem is the stored item: the entry's attributes plus the partition key.
type dynamoItem struct {
	ObjectID string `dynamodbav:"object_id"`
	Entry
}

// DynamoDBAPI is the subset of the DynamoDB client the ledger uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type DynamoDBLedger struct {
	api   DynamoDBAPI
	table string
}

func NewDynamoDBLedger(api DynamoDBAPI, table string) *DynamoDBLedger {
	return &DynamoDBLedger{api: api, table: table}
}

func (l *DynamoDBLedger) Lookup(ctx context.Context, id notification.ObjectIdentity) (*Entry, error) {
	out, err := l.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		Key:            map[string]types.AttributeValue{attrObjectID: &types.AttributeValueMemberS{Value: documentID(id)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		metrics.IncLedgerLookup(dynamoBackend, "error")
		return nil, ledgerIOError("lookup", id, err)
	}
	if len(out.Item) == 0 {
		metrics.IncLedgerLookup(dynamoBackend, "miss")
		return nil, nil
	}

	entry, err := entryFromItem(out.Item)
	if err != nil {
		metrics.IncLedgerLookup(dynamoBackend, "error")
		return nil, ledgerIOError("lookup", id, err)
	}

	metrics.IncLedgerLookup(dynamoBackend, "hit")
	return entry, nil
}

// Record writes the entry unless one already exists for the identity. A
// failed condition means another worker recorded it first, which is success.
func (l *DynamoDBLedger) Record(ctx context.Context, entry Entry) error {
	item, err := itemFromEntry(entry)
	if err != nil {
		return ledgerIOError("record", entry.Identity(), err)
	}

	_, err = l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": attrObjectID,
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if stderrors.As(err, &condErr) {
			return nil
		}
		return ledgerIOError("record", entry.Identity(), err)
	}
	return nil
}

// Check verifies the table is reachable. Used by the health endpoint.
func (l *DynamoDBLedger) Check(ctx context.Context) error {
	_, err := l.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(l.table)})
	if err != nil {
		return fmt.Errorf("dynamodb describe table %s failed: %w", l.table, err)
	}
	return nil
}

// Count reports DynamoDB's item count, which the service refreshes roughly
// every six hours.
func (l *DynamoDBLedger) Count(ctx context.Context) (int, error) {
	out, err := l.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(l.table)})
	if err != nil {
		return 0, fmt.Errorf("dynamodb describe table %s failed: %w", l.table, err)
	}
	if out.Table == nil || out.Table.ItemCount == nil {
		return 0, nil
	}
	return int(*out.Table.ItemCount), nil
}

func (l *DynamoDBLedger) Name() string {
	return dynamoBackend
}

func itemFromEntry(e Entry) (map[string]types.AttributeValue, error) {
	e.ProcessedAt = e.ProcessedAt.UTC()
	item, err := attributevalue.MarshalMap(dynamoItem{ObjectID: documentID(e.Identity()), Entry: e})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger item: %w", err)
	}
	return item, nil
}

func entryFromItem(item map[string]types.AttributeValue) (*Entry, error) {
	var stored dynamoItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger item: %w", err)
	}
	return &stored.Entry, nil
}

func ledgerIOError(op string, id notification.ObjectIdentity, cause error) error {
	return errors.ErrLedgerIO.
		WithMessage(fmt.Sprintf("ledger %s failed for %s", op, id)).
		WithCause(cause)
}
