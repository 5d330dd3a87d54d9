package appointments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/radiology-ops/pkg/logging"
)

const casAttempts = 3

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps appointments in a DynamoDB table keyed by id. Writes
// that must not interleave use a version compare-and-swap.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	now       func() time.Time
}

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("appointments: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("appointments: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *DynamoStore) Create(ctx context.Context, a *Appointment) error {
	now := s.now()
	a.Version = 1
	a.UpdatedAt = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	err := s.put(ctx, a, "attribute_not_exists(id)", nil)
	if isConditionFailed(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

func (s *DynamoStore) MergeMany(ctx context.Context, patches []Appointment) error {
	for _, patch := range patches {
		patch := patch
		err := s.cas(ctx, patch.ID, func(existing *Appointment) (*Appointment, error) {
			if existing == nil {
				rec := patch.Clone()
				if rec.Status == "" {
					rec.Status = StatusPending
				}
				return &rec, nil
			}
			merged := Merge(*existing, patch)
			return &merged, nil
		})
		if err != nil {
			return fmt.Errorf("appointments: merge %s: %w", patch.ID, err)
		}
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, a *Appointment) error {
	existing, err := s.get(ctx, a.ID)
	if err != nil {
		return err
	}
	a.Version = existing.Version + 1
	a.UpdatedAt = s.now()
	if err := s.put(ctx, a, "attribute_exists(id)", nil); err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("appointments: update: %w", err)
	}
	return nil
}

func (s *DynamoStore) Transact(ctx context.Context, id string, fn MutateFunc) (*Appointment, error) {
	var result *Appointment
	err := s.cas(ctx, id, func(existing *Appointment) (*Appointment, error) {
		if existing == nil {
			return nil, ErrNotFound
		}
		working := existing.Clone()
		if err := fn(&working); err != nil {
			return nil, err
		}
		working.ID = id
		result = &working
		return &working, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*Appointment, error) {
	return s.get(ctx, id)
}

func (s *DynamoStore) List(ctx context.Context, q Query) ([]Appointment, error) {
	var (
		filters []string
		names   = map[string]string{}
		values  = map[string]types.AttributeValue{}
	)
	add := func(attr, op, value string) {
		n := "#f" + strconv.Itoa(len(filters))
		v := ":f" + strconv.Itoa(len(filters))
		names[n] = attr
		values[v] = &types.AttributeValueMemberS{Value: value}
		filters = append(filters, n+" "+op+" "+v)
	}
	if q.Status != "" {
		add("status", "=", string(q.Status))
	}
	if q.ExamType != "" {
		add("examType", "=", string(q.ExamType))
	}
	if q.Date != "" {
		add("date", "=", q.Date)
	}
	if q.ScheduledDate != "" {
		add("scheduledDate", "=", q.ScheduledDate)
	}
	if q.From != "" {
		add("date", ">=", q.From)
	}
	if q.To != "" {
		add("date", "<=", q.To)
	}

	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}
	if len(filters) > 0 {
		input.FilterExpression = aws.String(strings.Join(filters, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var out []Appointment
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		var items []Appointment
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("appointments: decode scan: %w", err)
		}
		out = append(out, items...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	SortQueue(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 itemKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	return nil
}

func (s *DynamoStore) DeleteMany(ctx context.Context, ids []string) ([]string, error) {
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		err := s.Delete(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

// cas reads the current item, applies next and writes it back conditioned on
// the version it read. Lost races are retried a bounded number of times.
func (s *DynamoStore) cas(ctx context.Context, id string, next func(existing *Appointment) (*Appointment, error)) error {
	for attempt := 1; attempt <= casAttempts; attempt++ {
		existing, err := s.get(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if errors.Is(err, ErrNotFound) {
			existing = nil
		}

		rec, err := next(existing)
		if err != nil {
			return err
		}
		rec.UpdatedAt = s.now()

		var condition string
		var values map[string]types.AttributeValue
		if existing == nil {
			rec.Version = 1
			condition = "attribute_not_exists(id)"
		} else {
			rec.Version = existing.Version + 1
			condition = "#version = :expected"
			values = map[string]types.AttributeValue{
				":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(existing.Version, 10)},
			}
		}

		err = s.put(ctx, rec, condition, values)
		if err == nil {
			return nil
		}
		if !isConditionFailed(err) {
			return fmt.Errorf("appointments: write %s: %w", id, err)
		}
		s.logger.Debug("appointments: version conflict, retrying", "id", id, "attempt", attempt)
	}
	return ErrConflict
}

func (s *DynamoStore) get(ctx context.Context, id string) (*Appointment, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var a Appointment
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("appointments: decode item: %w", err)
	}
	return &a, nil
}

func (s *DynamoStore) put(ctx context.Context, a *Appointment, condition string, values map[string]types.AttributeValue) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("appointments: marshal: %w", err)
	}
	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String(condition),
	}
	if len(values) > 0 {
		input.ExpressionAttributeNames = map[string]string{"#version": "version"}
		input.ExpressionAttributeValues = values
	}
	_, err = s.client.PutItem(ctx, input)
	return err
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
