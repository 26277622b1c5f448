package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/creatorpay/tracker/internal/models"
)

// dynamodbAPI is the subset of the DynamoDB client used by DynamoStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps payments in a DynamoDB table whose partition key is video_id.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a DynamoDB-backed store.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("payments: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("payments: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

func videoKey(videoID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"video_id": &types.AttributeValueMemberS{Value: videoID},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// Lookup returns the payment for videoID.
func (s *DynamoStore) Lookup(ctx context.Context, videoID string) (*models.Payment, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            videoKey(videoID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("lookup payment: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	p, err := itemToPayment(out.Item)
	if err != nil {
		return nil, fmt.Errorf("lookup payment: %w", err)
	}
	return p, nil
}

// InsertIfAbsent writes p with a conditional put on attribute_not_exists(video_id).
func (s *DynamoStore) InsertIfAbsent(ctx context.Context, p *models.Payment) (InsertResult, error) {
	now := s.now().UTC()
	stored := *p
	if stored.SubmittedAt.IsZero() {
		stored.SubmittedAt = now
	}
	stored.UpdatedAt = now

	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                paymentItem(&stored),
			ConditionExpression: aws.String("attribute_not_exists(video_id)"),
		})
		if err == nil {
			p.SubmittedAt = stored.SubmittedAt
			p.UpdatedAt = stored.UpdatedAt
			return InsertResult{Outcome: Inserted}, nil
		}
		if !isConditionFailed(err) {
			return InsertResult{}, fmt.Errorf("insert payment: %w", err)
		}
		existing, err := s.Lookup(ctx, p.VideoID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return InsertResult{}, err
		}
		return InsertResult{Outcome: Conflict, Existing: existing}, nil
	}
	return InsertResult{}, fmt.Errorf("insert payment %s: conflicting item vanished %d times", p.VideoID, maxInsertAttempts)
}

// Update applies patch to an existing payment.
func (s *DynamoStore) Update(ctx context.Context, videoID string, patch models.PaymentPatch) (*models.Payment, error) {
	if patch.Empty() {
		return s.Lookup(ctx, videoID)
	}
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var sets []string
	set := func(attr string, v types.AttributeValue) {
		names["#"+attr] = attr
		values[":"+attr] = v
		sets = append(sets, "#"+attr+" = :"+attr)
	}
	if patch.CreatorName != nil {
		set("creator_name", &types.AttributeValueMemberS{Value: *patch.CreatorName})
	}
	if patch.Amount != nil {
		set("amount", &types.AttributeValueMemberN{Value: patch.Amount.StringFixed(2)})
	}
	if patch.Currency != nil {
		set("currency", &types.AttributeValueMemberS{Value: *patch.Currency})
	}
	if patch.Notes != nil {
		set("notes", &types.AttributeValueMemberS{Value: *patch.Notes})
	}
	if patch.URL != nil {
		set("url", &types.AttributeValueMemberS{Value: *patch.URL})
	}
	set("updated_at", &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)})

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       videoKey(videoID),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(video_id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	p, err := itemToPayment(out.Attributes)
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return p, nil
}

// Delete removes the payment for videoID.
func (s *DynamoStore) Delete(ctx context.Context, videoID string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 videoKey(videoID),
		ConditionExpression: aws.String("attribute_exists(video_id)"),
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}

// List scans the table and filters in process. The table is small: one row per paid video.
func (s *DynamoStore) List(ctx context.Context, filter models.ListFilter) ([]models.Payment, error) {
	var (
		list  []models.Payment
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan payments: %w", err)
		}
		for _, item := range out.Items {
			p, err := itemToPayment(item)
			if err != nil {
				return nil, fmt.Errorf("scan payments: %w", err)
			}
			if filter.Matches(p) {
				list = append(list, *p)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sortNewestFirst(list)
	if filter.Limit > 0 && len(list) > filter.Limit {
		list = list[:filter.Limit]
	}
	return list, nil
}

func paymentItem(p *models.Payment) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"video_id":     &types.AttributeValueMemberS{Value: p.VideoID},
		"url":          &types.AttributeValueMemberS{Value: p.URL},
		"creator_name": &types.AttributeValueMemberS{Value: p.CreatorName},
		"amount":       &types.AttributeValueMemberN{Value: p.Amount.StringFixed(2)},
		"currency":     &types.AttributeValueMemberS{Value: p.Currency},
		"notes":        &types.AttributeValueMemberS{Value: p.Notes},
		"resolved":     &types.AttributeValueMemberBOOL{Value: p.Resolved},
		"submitted_by": &types.AttributeValueMemberS{Value: p.SubmittedBy},
		"submitted_at": &types.AttributeValueMemberS{Value: p.SubmittedAt.UTC().Format(time.RFC3339Nano)},
		"updated_at":   &types.AttributeValueMemberS{Value: p.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func itemToPayment(item map[string]types.AttributeValue) (*models.Payment, error) {
	var p models.Payment
	var err error
	if p.VideoID, err = strAttr(item, "video_id"); err != nil {
		return nil, err
	}
	if p.CreatorName, err = strAttr(item, "creator_name"); err != nil {
		return nil, err
	}
	if p.Currency, err = strAttr(item, "currency"); err != nil {
		return nil, err
	}
	p.URL, _ = strAttr(item, "url")
	p.Notes, _ = strAttr(item, "notes")
	p.SubmittedBy, _ = strAttr(item, "submitted_by")

	n, ok := item["amount"].(*types.AttributeValueMemberN)
	if !ok {
		return nil, errors.New("attribute \"amount\" is not a number")
	}
	if p.Amount, err = decimal.NewFromString(n.Value); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if b, ok := item["resolved"].(*types.AttributeValueMemberBOOL); ok {
		p.Resolved = b.Value
	}
	if p.SubmittedAt, err = timeAttr(item, "submitted_at"); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = timeAttr(item, "updated_at"); err != nil {
		return nil, err
	}
	return &p, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return t, nil
}
