// Package dynamostore adapts store.SagaStore to a single-table DynamoDB
// layout (§6): partition key SAGA#<saga_id>, a status GSI for
// ListPending/ListByStatus, and a conditional PutItem enforcing optimistic
// concurrency on the version attribute.
package dynamostore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	orcherrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/store"
)

const (
	statusIndexName      = "status-updated_at-index"
	correlationIndexName = "correlation_id-updated_at-index"
	pkAttr               = "pk"
	skAttr               = "sk"
	statusAttr           = "status"
	versionAttr          = "version"
	sagaDocAttr          = "saga_doc"
	correlationAttr      = "correlation_id"
)

// Store is a DynamoDB-backed store.SagaStore.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// New returns a Store bound to tableName.
func New(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

func pk(sagaID string) string { return "SAGA#" + sagaID }

// item is the on-wire row shape: an envelope carrying the marshaled saga as
// a JSON blob plus the handful of scalar attributes the GSI and conditional
// write need as first-class attributes.
type item struct {
	PK            string `dynamodbav:"pk"`
	SK            string `dynamodbav:"sk"`
	SagaID        string `dynamodbav:"saga_id"`
	Status        string `dynamodbav:"status"`
	CorrelationID string `dynamodbav:"correlation_id,omitempty"`
	Version       int64  `dynamodbav:"version"`
	UpdatedAt     string `dynamodbav:"updated_at"`
	SagaDoc       string `dynamodbav:"saga_doc"`
}

func (s *Store) Save(ctx context.Context, sg *saga.Saga) error {
	if err := sg.Validate(); err != nil {
		return err
	}

	doc, err := json.Marshal(sg)
	if err != nil {
		return orcherrors.NewError(orcherrors.StoreError, "marshal saga").WithSaga(sg.SagaID).WithCause(err).Build()
	}

	it := item{
		PK:            pk(sg.SagaID),
		SK:            "META",
		SagaID:        sg.SagaID,
		Status:        string(sg.Status),
		CorrelationID: sg.CorrelationID,
		Version:       sg.Version,
		UpdatedAt:     sg.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		SagaDoc:       string(doc),
	}

	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return orcherrors.NewError(orcherrors.StoreError, "marshal item").WithSaga(sg.SagaID).WithCause(err).Build()
	}

	var cond expression.ConditionBuilder
	if sg.Version == 0 {
		cond = expression.AttributeNotExists(expression.Name(pkAttr))
	} else {
		cond = expression.Name(versionAttr).Equal(expression.Value(sg.Version - 1))
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return orcherrors.NewError(orcherrors.StoreError, "build condition expression").WithSaga(sg.SagaID).WithCause(err).Build()
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return orcherrors.NewError(orcherrors.StaleVersion, "saga version conflict").WithSaga(sg.SagaID).WithCause(err).Build()
		}
		return orcherrors.NewError(orcherrors.StoreError, "put saga item").WithSaga(sg.SagaID).WithCause(err).Build()
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sagaID string) (*saga.Saga, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			pkAttr: &types.AttributeValueMemberS{Value: pk(sagaID)},
			skAttr: &types.AttributeValueMemberS{Value: "META"},
		},
	})
	if err != nil {
		return nil, orcherrors.NewError(orcherrors.StoreError, "get saga item").WithSaga(sagaID).WithCause(err).Build()
	}
	if len(out.Item) == 0 {
		return nil, &store.NotFoundError{SagaID: sagaID}
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, orcherrors.NewError(orcherrors.StoreError, "unmarshal item").WithSaga(sagaID).WithCause(err).Build()
	}

	var sg saga.Saga
	if err := json.Unmarshal([]byte(it.SagaDoc), &sg); err != nil {
		return nil, orcherrors.NewError(orcherrors.StoreError, "unmarshal saga doc").WithSaga(sagaID).WithCause(err).Build()
	}
	return &sg, nil
}

func (s *Store) Delete(ctx context.Context, sagaID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			pkAttr: &types.AttributeValueMemberS{Value: pk(sagaID)},
			skAttr: &types.AttributeValueMemberS{Value: "META"},
		},
	})
	if err != nil {
		return orcherrors.NewError(orcherrors.StoreError, "delete saga item").WithSaga(sagaID).WithCause(err).Build()
	}
	return nil
}

// ListPending queries the status GSI for every non-terminal status in
// turn; DynamoDB has no OR-across-partition-key query, so the fan-out is
// explicit rather than hidden behind a single Scan.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*saga.Saga, error) {
	pending := []saga.Status{
		saga.StatusCreated, saga.StatusRunning, saga.StatusRetrying,
		saga.StatusPaused, saga.StatusCompensating,
	}
	var out []*saga.Saga
	for _, st := range pending {
		batch, err := s.ListByStatus(ctx, st, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}

func (s *Store) ListByStatus(ctx context.Context, status saga.Status, limit int) ([]*saga.Saga, error) {
	keyCond := expression.Key(statusAttr).Equal(expression.Value(string(status)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, orcherrors.NewError(orcherrors.StoreError, "build query expression").WithCause(err).Build()
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(statusIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, orcherrors.NewError(orcherrors.StoreError, "query status index").WithCause(err).Build()
	}

	sagas := make([]*saga.Saga, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var it item
		if err := attributevalue.UnmarshalMap(rawItem, &it); err != nil {
			return nil, orcherrors.NewError(orcherrors.StoreError, "unmarshal query item").WithCause(err).Build()
		}
		var sg saga.Saga
		if err := json.Unmarshal([]byte(it.SagaDoc), &sg); err != nil {
			return nil, orcherrors.NewError(orcherrors.StoreError, "unmarshal saga doc").WithCause(err).Build()
		}
		sagas = append(sagas, &sg)
	}
	return sagas, nil
}

// ListByCorrelation queries the correlation_id GSI, the same shape as
// ListByStatus but keyed on the business-transaction identifier instead of
// saga status.
func (s *Store) ListByCorrelation(ctx context.Context, correlationID string, limit int) ([]*saga.Saga, error) {
	keyCond := expression.Key(correlationAttr).Equal(expression.Value(correlationID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, orcherrors.NewError(orcherrors.StoreError, "build query expression").WithCause(err).Build()
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(correlationIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, orcherrors.NewError(orcherrors.StoreError, "query correlation index").WithCause(err).Build()
	}

	sagas := make([]*saga.Saga, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var it item
		if err := attributevalue.UnmarshalMap(rawItem, &it); err != nil {
			return nil, orcherrors.NewError(orcherrors.StoreError, "unmarshal query item").WithCause(err).Build()
		}
		var sg saga.Saga
		if err := json.Unmarshal([]byte(it.SagaDoc), &sg); err != nil {
			return nil, orcherrors.NewError(orcherrors.StoreError, "unmarshal saga doc").WithCause(err).Build()
		}
		sagas = append(sagas, &sg)
	}
	return sagas, nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

