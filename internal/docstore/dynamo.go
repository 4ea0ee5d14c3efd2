package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// collectionAttr is the partition key; IDField is the sort key.
const collectionAttr = "collection"

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps every collection in one table partitioned by collection
// name. Filters are evaluated client-side after a partition query.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	if client == nil {
		panic("docstore: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("docstore: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		collectionAttr: &types.AttributeValueMemberS{Value: collection},
		IDField:        &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	stored, id := prepareInsert(doc)
	item, err := attributevalue.MarshalMap(map[string]any(stored))
	if err != nil {
		return "", fmt.Errorf("docstore: marshal %s: %w", collection, err)
	}
	item[collectionAttr] = &types.AttributeValueMemberS{Value: collection}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if isConditionFailure(err) {
		return "", ErrDuplicateID
	}
	if err != nil {
		return "", fmt.Errorf("docstore: insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(collection, id),
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s: %w", collection, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	return decodeItem(out.Item)
}

func (s *DynamoStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	docs, err := s.scanPartition(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	return Finish(docs, q), nil
}

func (s *DynamoStore) Count(ctx context.Context, collection string, q Query) (int, error) {
	docs, err := s.scanPartition(ctx, collection, q)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *DynamoStore) scanPartition(ctx context.Context, collection string, q Query) ([]Document, error) {
	var (
		out   []Document
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("#c = :c"),
			ExpressionAttributeNames: map[string]string{
				"#c": collectionAttr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: collection},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
		}
		for _, item := range page.Items {
			doc, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			if Matches(doc, q) {
				out = append(out, doc)
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

func (s *DynamoStore) Update(ctx context.Context, collection, id string, fields Document) error {
	patch := prepareUpdate(fields)
	if len(patch) == 0 {
		_, err := s.Get(ctx, collection, id)
		return err
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := map[string]string{"#id": IDField}
	values := make(map[string]types.AttributeValue, len(keys))
	sets := make([]string, 0, len(keys))
	for i, k := range keys {
		av, err := attributevalue.Marshal(patch[k])
		if err != nil {
			return fmt.Errorf("docstore: marshal %s.%s: %w", collection, k, err)
		}
		n, v := "#f"+strconv.Itoa(i), ":v"+strconv.Itoa(i)
		names[n] = k
		values[v] = av
		sets = append(sets, n+" = "+v)
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(collection, id),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailure(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("docstore: update %s: %w", collection, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          s.key(collection, id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("docstore: delete %s: %w", collection, err)
	}
	return len(out.Attributes) > 0, nil
}

func decodeItem(item map[string]types.AttributeValue) (Document, error) {
	var raw map[string]any
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return nil, fmt.Errorf("docstore: decode item: %w", err)
	}
	delete(raw, collectionAttr)
	return normalizeDocument(raw), nil
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
