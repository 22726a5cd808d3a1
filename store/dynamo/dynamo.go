package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/store"
)

// dynamoAPI is the part of *dynamodb.Client the store calls.
type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type DynamoCanvasStore struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoCanvasStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoCanvasStore, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}
	return newWithClient(client, tableName), nil
}

func newWithClient(client dynamoAPI, tableName string) *DynamoCanvasStore {
	return &DynamoCanvasStore{client: client, tableName: tableName}
}

// Ping checks that the table exists and accepts reads and writes.
func (dynamoStore *DynamoCanvasStore) Ping(ctx context.Context) error {
	status, err := describeTable(dynamoStore, ctx)
	if err != nil {
		return err
	}
	if status != types.TableStatusActive && status != types.TableStatusUpdating {
		return eris.Wrapf(store.ErrUnavailable, "table %s is %s", dynamoStore.tableName, status)
	}
	return nil
}

func (dynamoStore *DynamoCanvasStore) Get(ctx context.Context, x int, y int) (models.PixelRecord, error) {
	dp, err := getItem[dynamoPixel](dynamoStore, ctx, pixelPrefix+store.CoordKey(x, y), pixelSK, false)
	if err != nil {
		return models.PixelRecord{}, err
	}
	return pixelFromDynamo(dp)
}

func (dynamoStore *DynamoCanvasStore) Set(ctx context.Context, record models.PixelRecord) error {
	dp, err := pixelToDynamo(record)
	if err != nil {
		return err
	}
	return putItem(dynamoStore, ctx, dp)
}

func (dynamoStore *DynamoCanvasStore) EnumerateAll(ctx context.Context) ([]models.PixelRecord, error) {
	items, err := scanAllByPKPrefix[dynamoPixel](dynamoStore, ctx, pixelPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]models.PixelRecord, 0, len(items))
	for _, item := range items {
		record, err := pixelFromDynamo(item)
		if err != nil {
			log.Warn().Err(err).Str("pk", item.PK).Msg("Skipping undecodable pixel")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (dynamoStore *DynamoCanvasStore) Delete(ctx context.Context, x int, y int) error {
	return deleteItem(dynamoStore, ctx, pixelPrefix+store.CoordKey(x, y), pixelSK)
}

func (dynamoStore *DynamoCanvasStore) AppendHistory(ctx context.Context, entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
	var writeRequests []types.WriteRequest
	for _, entry := range entries {
		dh, err := historyToDynamo(entry)
		if err != nil {
			return entries, err
		}
		avMap, err := attributevalue.MarshalMap(dh)
		if err != nil {
			return entries, eris.Wrap(err, "marshal error")
		}
		writeRequests = append(writeRequests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: avMap},
		})
	}

	unprocessed, err := writeBatchRequests[dynamoHistory](dynamoStore, ctx, writeRequests)

	failed := make([]models.HistoryEntry, 0, len(unprocessed))
	for _, u := range unprocessed {
		if entry, convErr := historyFromDynamo(u); convErr == nil {
			failed = append(failed, entry)
		}
	}
	return failed, err
}

func (dynamoStore *DynamoCanvasStore) GetHistory(ctx context.Context, x int, y int, limit int) ([]models.HistoryEntry, error) {
	// Event ids are UUIDv7, so SK order is chronological; read newest first
	items, err := queryAllByPK[dynamoHistory](dynamoStore, ctx, historyPrefix+store.CoordKey(x, y), false, int32(limit))
	if err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(items))
	for _, item := range items {
		entry, err := historyFromDynamo(item)
		if err != nil {
			log.Warn().Err(err).Str("pk", item.PK).Msg("Skipping undecodable history entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
