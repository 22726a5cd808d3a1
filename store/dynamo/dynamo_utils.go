package dynamo

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/store"
)

func newDynamoDBClient(ctx context.Context, devMode bool, dynamodbEndpoint string) (*dynamodb.Client, error) {
	if !devMode {
		// Outside dev mode the default chain supplies region and credentials
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "failed to load aws config")
		}
		return dynamodb.NewFromConfig(cfg), nil
	}

	// DynamoDB Local accepts any credentials
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
		),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to load dev aws config")
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if dynamodbEndpoint != "" {
			o.BaseEndpoint = aws.String(dynamodbEndpoint)
		}
	}), nil
}

// describeTable fails with store.ErrUnavailable when the table is missing.
func describeTable(dynamoStore *DynamoCanvasStore, ctx context.Context) (types.TableStatus, error) {
	output, err := dynamoStore.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(dynamoStore.tableName),
	})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return "", eris.Wrapf(store.ErrUnavailable, "table %s not found", dynamoStore.tableName)
		}
		return "", eris.Wrap(err, "DescribeTable failed")
	}
	if output.Table == nil {
		return "", eris.Wrapf(store.ErrUnavailable, "table %s not described", dynamoStore.tableName)
	}
	return output.Table.TableStatus, nil
}

// getItem retrieves an item of type T from DynamoDB by PK and SK
func getItem[T any](dynamoStore *DynamoCanvasStore, ctx context.Context, pk string, sk string, consistentRead bool) (T, error) {
	var zero T

	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}

	resp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(dynamoStore.tableName),
		Key:            key,
		ConsistentRead: aws.Bool(consistentRead),
	})
	if err != nil {
		return zero, eris.Wrap(err, "GetItem failed")
	}
	if resp.Item == nil {
		return zero, store.ErrPixelNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return zero, eris.Wrap(err, "failed to unmarshal item")
	}

	return item, nil
}

// putItem writes item unconditionally, replacing any existing item with the same PK and SK
func putItem[T any](dynamoStore *DynamoCanvasStore, ctx context.Context, item T) error {
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return eris.Wrap(err, "marshal error")
	}
	if _, ok := avMap["PK"]; !ok {
		return eris.New("struct missing PK field")
	}
	if _, ok := avMap["SK"]; !ok {
		return eris.New("struct missing SK field")
	}

	_, err = dynamoStore.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Item:      avMap,
	})
	if err != nil {
		return eris.Wrap(err, "failed to put item")
	}
	return nil
}

// scanAllByPKPrefix returns every item whose PK starts with prefix.
// Items that fail to unmarshal are dropped.
func scanAllByPKPrefix[T any](dynamoStore *DynamoCanvasStore, ctx context.Context, prefix string) ([]T, error) {
	results := []T{}

	input := &dynamodb.ScanInput{
		TableName:        aws.String(dynamoStore.tableName),
		FilterExpression: aws.String("begins_with(PK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}

	paginator := dynamodb.NewScanPaginator(dynamoStore.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "scan failed")
		}

		for _, raw := range page.Items {
			var item T
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			results = append(results, item)
		}
	}

	return results, nil
}

// queryAllByPK returns all items of type T with the given PK, ordered by SK, with a limit.
func queryAllByPK[T any](dynamoStore *DynamoCanvasStore, ctx context.Context, pk string, scanIndexForward bool, limit int32) ([]T, error) {
	var results []T

	input := &dynamodb.QueryInput{
		TableName:              aws.String(dynamoStore.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(scanIndexForward),
	}

	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	// dynamodb uses limit per page, so we also need to handle limit globally
	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		if limit > 0 && len(results) >= int(limit) {
			break
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "query failed")
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, eris.Wrap(err, "failed to unmarshal page items")
		}

		results = append(results, pageItems...)
	}

	if limit > 0 && len(results) > int(limit) {
		results = results[:limit]
	}

	return results, nil
}

// writeBatchRequests handles batch writes with retries, 25 requests per call.
// Returns any unprocessed items as []T
func writeBatchRequests[T any](dynamoStore *DynamoCanvasStore, ctx context.Context, requests []types.WriteRequest) ([]T, error) {
	var failed []T
	for start := 0; start < len(requests); start += 25 {
		end := min(start+25, len(requests))
		unprocessed, err := writeBatchChunk[T](dynamoStore, ctx, requests[start:end])
		failed = append(failed, unprocessed...)
		if err != nil {
			// Everything after this chunk was never attempted
			failed = append(failed, unmarshalUnprocessed[T](requests[end:])...)
			return failed, err
		}
	}
	return failed, nil
}

func writeBatchChunk[T any](dynamoStore *DynamoCanvasStore, ctx context.Context, requests []types.WriteRequest) ([]T, error) {
	backoff := 50 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return unmarshalUnprocessed[T](requests), ctx.Err()
		default:
		}

		resp, err := dynamoStore.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				dynamoStore.tableName: requests,
			},
		})
		if err != nil {
			return unmarshalUnprocessed[T](requests), eris.Wrap(err, "BatchWriteItem failed")
		}

		unprocessed := resp.UnprocessedItems[dynamoStore.tableName]
		if len(unprocessed) == 0 {
			return nil, nil
		}

		requests = unprocessed

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmarshalUnprocessed[T](requests), ctx.Err()
		case <-timer.C:
		}

		if backoff < time.Second {
			backoff *= 2
		}
	}
}

// helper to convert WriteRequests back to []T
func unmarshalUnprocessed[T any](reqs []types.WriteRequest) []T {
	failed := make([]T, 0, len(reqs))
	for _, wr := range reqs {
		if wr.PutRequest != nil {
			var item T
			if err := attributevalue.UnmarshalMap(wr.PutRequest.Item, &item); err == nil {
				failed = append(failed, item)
			}
		}
	}
	return failed
}

// deleteItem deletes an item by PK and SK. Deleting a missing item is not an error.
func deleteItem(dynamoStore *DynamoCanvasStore, ctx context.Context, pk string, sk string) error {
	_, err := dynamoStore.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return eris.Wrap(store.ErrUnavailable, "table not found")
		}
		return eris.Wrap(err, "delete failed")
	}
	return nil
}
