package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const dynamoTxMaxAttempts = 3

// DynamoStore implements Store on a single DynamoDB table with
// collection as the partition key and document id as the sort key.
// Optimistic locking uses a per-item version attribute guarded by
// condition expressions, so a concurrent writer loses cleanly with
// ErrTxConflict instead of clobbering.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoDoc is the DynamoDB item layout. The tenant/branch/status
// attributes are denormalized out of the JSON body so equality queries
// can run as filter expressions.
type dynamoDoc struct {
	Collection string `dynamodbav:"collection"`
	ID         string `dynamodbav:"id"`
	Doc        string `dynamodbav:"doc"`
	Version    int64  `dynamodbav:"version"`
	BusinessID string `dynamodbav:"business_id,omitempty"`
	BranchID   string `dynamodbav:"branch_id,omitempty"`
	Status     string `dynamodbav:"status,omitempty"`
}

func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	doc, _, err := s.getVersioned(ctx, collection, id)
	return doc, err
}

func (s *DynamoStore) getVersioned(ctx context.Context, collection, id string) (json.RawMessage, int64, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            dynamoKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("dynamo get: %w", err)
	}
	if out.Item == nil {
		return nil, 0, ErrNotFound
	}
	var item dynamoDoc
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, 0, fmt.Errorf("unmarshal dynamo item: %w", err)
	}
	return json.RawMessage(item.Doc), item.Version, nil
}

func (s *DynamoStore) Query(ctx context.Context, collection string, preds ...Predicate) ([]json.RawMessage, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#c = :collection"),
		ExpressionAttributeNames: map[string]string{
			"#c": "collection",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":collection": &types.AttributeValueMemberS{Value: collection},
		},
	}

	var filters []string
	for i, p := range preds {
		name := fmt.Sprintf("#f%d", i)
		value := fmt.Sprintf(":v%d", i)
		input.ExpressionAttributeNames[name] = p.Field
		av, err := attributevalue.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal predicate %s: %w", p.Field, err)
		}
		input.ExpressionAttributeValues[value] = av
		filters = append(filters, fmt.Sprintf("%s = %s", name, value))
	}
	if len(filters) > 0 {
		input.FilterExpression = aws.String(joinAnd(filters))
	}

	var docs []json.RawMessage
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo query: %w", err)
		}
		for _, raw := range page.Items {
			var item dynamoDoc
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshal dynamo item: %w", err)
			}
			docs = append(docs, json.RawMessage(item.Doc))
		}
	}
	return docs, nil
}

func (s *DynamoStore) Set(ctx context.Context, collection, id string, doc any) error {
	item, err := buildDynamoDoc(collection, id, doc, 0)
	if err != nil {
		return err
	}
	// Version 0 means unconditional overwrite from the caller's
	// perspective; the stored version still advances monotonically.
	_, current, err := s.getVersioned(ctx, collection, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	item.Version = current + 1

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal dynamo item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamo put: %w", err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	current, version, err := s.getVersioned(ctx, collection, id)
	if err != nil {
		return err
	}
	merged, err := mergeFields(current, fields)
	if err != nil {
		return err
	}
	item, err := buildDynamoDoc(collection, id, json.RawMessage(merged), version+1)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal dynamo item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("version = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: fmt.Sprint(version)},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrTxConflict
		}
		return fmt.Errorf("dynamo update: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(collection, id),
	})
	if err != nil {
		return fmt.Errorf("dynamo delete: %w", err)
	}
	return nil
}

// RunTransaction buffers reads and writes, then commits them with
// TransactWriteItems guarded by version conditions on every document the
// transaction read. A lost race cancels the whole batch and the pass is
// retried a bounded number of times.
func (s *DynamoStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < dynamoTxMaxAttempts; attempt++ {
		tx := &dynamoTx{
			store:    s,
			ctx:      ctx,
			reads:    make(map[string]int64),
			writes:   make(map[string]*stagedWrite),
			misses:   make(map[string]bool),
			overlays: make(map[string]json.RawMessage),
		}
		if err := fn(tx); err != nil {
			return err
		}
		err := tx.commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

type stagedWrite struct {
	collection string
	id         string
	doc        json.RawMessage // nil means delete
}

type dynamoTx struct {
	store    *DynamoStore
	ctx      context.Context
	reads    map[string]int64           // key -> version observed
	misses   map[string]bool            // key -> read returned not-found
	writes   map[string]*stagedWrite    // key -> staged write
	overlays map[string]json.RawMessage // key -> doc visible inside the tx
}

func txKey(collection, id string) string { return collection + "/" + id }

func (tx *dynamoTx) Get(collection, id string) (json.RawMessage, error) {
	key := txKey(collection, id)
	if w, ok := tx.writes[key]; ok {
		if w.doc == nil {
			return nil, ErrNotFound
		}
		return w.doc, nil
	}
	if doc, ok := tx.overlays[key]; ok {
		return doc, nil
	}
	if tx.misses[key] {
		return nil, ErrNotFound
	}

	doc, version, err := tx.store.getVersioned(tx.ctx, collection, id)
	if errors.Is(err, ErrNotFound) {
		tx.misses[key] = true
		tx.reads[key] = 0
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tx.reads[key] = version
	tx.overlays[key] = doc
	return doc, nil
}

func (tx *dynamoTx) Query(collection string, preds ...Predicate) ([]json.RawMessage, error) {
	docs, err := tx.store.Query(tx.ctx, collection, preds...)
	if err != nil {
		return nil, err
	}
	// Record versions for every doc the query observed so the commit
	// detects concurrent rewrites of them.
	var out []json.RawMessage
	for _, doc := range docs {
		id, err := docID(doc)
		if err != nil {
			return nil, err
		}
		key := txKey(collection, id)
		if w, ok := tx.writes[key]; ok {
			if w.doc == nil {
				continue
			}
			out = append(out, w.doc)
			continue
		}
		if _, tracked := tx.reads[key]; !tracked {
			if _, err := tx.Get(collection, id); err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		out = append(out, doc)
	}
	for key, w := range tx.writes {
		if w == nil || w.doc == nil {
			continue
		}
		if _, seen := tx.overlays[key]; seen {
			continue
		}
		match, err := docMatches(w.doc, preds)
		if err != nil {
			return nil, err
		}
		if match && w.collection == collection {
			out = append(out, w.doc)
		}
	}
	return out, nil
}

func (tx *dynamoTx) Set(collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	tx.writes[txKey(collection, id)] = &stagedWrite{collection: collection, id: id, doc: raw}
	return nil
}

func (tx *dynamoTx) Update(collection, id string, fields map[string]any) error {
	current, err := tx.Get(collection, id)
	if err != nil {
		return err
	}
	merged, err := mergeFields(current, fields)
	if err != nil {
		return err
	}
	tx.writes[txKey(collection, id)] = &stagedWrite{collection: collection, id: id, doc: merged}
	return nil
}

func (tx *dynamoTx) Delete(collection, id string) error {
	tx.writes[txKey(collection, id)] = &stagedWrite{collection: collection, id: id, doc: nil}
	return nil
}

func (tx *dynamoTx) commit() error {
	if len(tx.writes) == 0 {
		return nil
	}

	var items []types.TransactWriteItem
	for key, w := range tx.writes {
		version, read := tx.reads[key]
		condition, values := versionCondition(version, read)

		if w.doc == nil {
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName:                 aws.String(tx.store.tableName),
					Key:                       dynamoKey(w.collection, w.id),
					ConditionExpression:       condition,
					ExpressionAttributeValues: values,
				},
			})
			continue
		}

		item, err := buildDynamoDoc(w.collection, w.id, json.RawMessage(w.doc), version+1)
		if err != nil {
			return err
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("marshal dynamo item: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                 aws.String(tx.store.tableName),
				Item:                      av,
				ConditionExpression:       condition,
				ExpressionAttributeValues: values,
			},
		})
	}

	_, err := tx.store.client.TransactWriteItems(tx.ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrTxConflict
		}
		return fmt.Errorf("dynamo transact write: %w", err)
	}
	return nil
}

func versionCondition(version int64, read bool) (*string, map[string]types.AttributeValue) {
	if !read {
		// Blind write: no precondition.
		return nil, nil
	}
	if version == 0 {
		return aws.String("attribute_not_exists(id)"), nil
	}
	return aws.String("version = :expected"), map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberN{Value: fmt.Sprint(version)},
	}
}

func buildDynamoDoc(collection, id string, doc any, version int64) (dynamoDoc, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return dynamoDoc{}, err
	}
	var denorm struct {
		BusinessID string `json:"business_id"`
		BranchID   string `json:"branch_id"`
		Status     string `json:"status"`
	}
	// Best-effort: not every collection carries these fields.
	_ = json.Unmarshal(raw, &denorm)

	return dynamoDoc{
		Collection: collection,
		ID:         id,
		Doc:        string(raw),
		Version:    version,
		BusinessID: denorm.BusinessID,
		BranchID:   denorm.BranchID,
		Status:     denorm.Status,
	}, nil
}

func dynamoKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"collection": &types.AttributeValueMemberS{Value: collection},
		"id":         &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionalFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var txCancelled *types.TransactionCanceledException
	return errors.As(err, &txCancelled)
}

func joinAnd(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " AND " + p
	}
	return out
}
