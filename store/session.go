package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/scandesk/scandesk-services-sessions/internal/apperrors"
	"github.com/scandesk/scandesk-services-sessions/internal/health"
	"github.com/scandesk/scandesk-services-sessions/internal/retries"
	"github.com/scandesk/scandesk-services-sessions/models"
)

type SessionStore interface {
	Create(ctx context.Context, session models.ScanSession) error
	Get(ctx context.Context, sessionID string) (*models.ScanSession, error)
	// UpdateStatus performs a conditional write keyed on the previously
	// observed status. Exactly one of two racing callers succeeds; the loser
	// gets apperrors.ErrConflict.
	UpdateStatus(ctx context.Context, sessionID string, expected, next models.Status, filePath string, expiresAt time.Time) (*models.ScanSession, error)
	Delete(ctx context.Context, sessionID string) error
	ListExpired(ctx context.Context, now time.Time) ([]models.ScanSession, error)

	health.ReadinessCheck
}

type SessionStoreImpl struct {
	client    *dynamodb.Client
	tableName string
}

func NewSessionStoreImpl(client *dynamodb.Client, tableName string) *SessionStoreImpl {
	return &SessionStoreImpl{
		client:    client,
		tableName: tableName,
	}
}

func (s *SessionStoreImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return retries.Retry(
		ctx,
		retries.HealthAttempts,
		retries.HealthBaseDelay,
		func() error {
			_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: aws.String(s.tableName),
			})

			return err
		},
		retries.IsRetriableDBError,
	)
}

func (s *SessionStoreImpl) Name() string {
	return fmt.Sprintf("SessionStore[%s]", s.tableName)
}

func (s *SessionStoreImpl) Create(ctx context.Context, session models.ScanSession) error {
	item, err := attributevalue.MarshalMap(session)
	if err != nil {
		return err
	}

	err = retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName:           aws.String(s.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(session_id)"),
			})
			return err
		},
		retries.IsRetriableDBError,
	)

	return s.classify(err)
}

func (s *SessionStoreImpl) Get(ctx context.Context, sessionID string) (*models.ScanSession, error) {
	var session models.ScanSession

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"session_id": &types.AttributeValueMemberS{
						Value: sessionID,
					},
				},
			})
			if err != nil {
				return err
			}

			if out.Item == nil {
				return apperrors.ErrSessionNotFound
			}

			return attributevalue.UnmarshalMap(out.Item, &session)
		},
		retries.IsRetriableDBError,
	)

	if err != nil {
		return nil, s.classify(err)
	}

	return &session, nil
}

func (s *SessionStoreImpl) UpdateStatus(ctx context.Context, sessionID string, expected, next models.Status, filePath string, expiresAt time.Time) (*models.ScanSession, error) {
	update := "SET #st = :next, expires_at = :exp"
	values := map[string]types.AttributeValue{
		":next":     &types.AttributeValueMemberS{Value: next.String()},
		":expected": &types.AttributeValueMemberS{Value: expected.String()},
		":exp":      &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
	}
	if filePath != "" {
		update += ", file_path = :fp"
		values[":fp"] = &types.AttributeValueMemberS{Value: filePath}
	}

	var updated models.ScanSession

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"session_id": &types.AttributeValueMemberS{Value: sessionID},
				},
				UpdateExpression:    aws.String(update),
				ConditionExpression: aws.String("attribute_exists(session_id) AND #st = :expected"),
				ExpressionAttributeNames: map[string]string{
					"#st": "status",
				},
				ExpressionAttributeValues: values,
				ReturnValues:              types.ReturnValueAllNew,
			})
			if err != nil {
				return err
			}

			return attributevalue.UnmarshalMap(out.Attributes, &updated)
		},
		retries.IsRetriableDBError,
	)

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		// distinguish a lost race from a deleted session
		if _, gerr := s.Get(ctx, sessionID); errors.Is(gerr, apperrors.ErrSessionNotFound) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, apperrors.ErrConflict
	}
	if err != nil {
		return nil, s.classify(err)
	}

	return &updated, nil
}

// Delete is unconditional and idempotent: deleting an absent session
// succeeds, which keeps concurrent cleanup and sweep runs safe.
func (s *SessionStoreImpl) Delete(ctx context.Context, sessionID string) error {
	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"session_id": &types.AttributeValueMemberS{Value: sessionID},
				},
			})
			return err
		},
		retries.IsRetriableDBError,
	)

	return s.classify(err)
}

func (s *SessionStoreImpl) ListExpired(ctx context.Context, now time.Time) ([]models.ScanSession, error) {
	var sessions []models.ScanSession

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})

	for paginator.HasMorePages() {
		var page *dynamodb.ScanOutput

		err := retries.Retry(
			ctx,
			retries.DefaultAttempts,
			retries.DefaultBaseDelay,
			func() error {
				var err error
				page, err = paginator.NextPage(ctx)
				return err
			},
			retries.IsRetriableDBError,
		)
		if err != nil {
			return nil, s.classify(err)
		}

		var batch []models.ScanSession
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		sessions = append(sessions, batch...)
	}

	return sessions, nil
}

// classify wraps exhausted transient failures in ErrStoreUnavailable so
// callers can map them to a retryable response.
func (s *SessionStoreImpl) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return err
	}

	// a duplicate id on Create is a conflict, same as a lost conditional
	// update; UpdateStatus intercepts its own conditional failures first
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%w: %v", apperrors.ErrConflict, err)
	}

	if retries.IsRetriableDBError(err) {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return err
}
