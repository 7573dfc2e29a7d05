package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/scandesk/scandesk-services-sessions/internal/health"
	"github.com/scandesk/scandesk-services-sessions/internal/logging"
	"github.com/scandesk/scandesk-services-sessions/internal/retries"
	"github.com/scandesk/scandesk-services-sessions/models"
)

// deleteBatchSize is the S3 DeleteObjects per-request limit.
const deleteBatchSize = 1000

// BatchDeleteResult carries the per-key outcome of a batch delete. Partial
// failure is data here, never an error: callers decide what a failed key
// means.
type BatchDeleteResult struct {
	Deleted  int
	Failures []models.DeletionFailure
}

// ScanStorage is the object-storage collaborator holding scanned documents.
// Objects for a session live under the `{sessionID}/` prefix.
type ScanStorage interface {
	ListSessionObjects(ctx context.Context, sessionID string) ([]string, error)
	DeleteObjects(ctx context.Context, keys []string) (BatchDeleteResult, error)

	health.ReadinessCheck
}

type S3ScanStorageImpl struct {
	client     *s3.Client
	bucketName string

	logger logging.Logger
}

func NewS3ScanStorageImpl(client *s3.Client, bucketName string, l logging.Logger) *S3ScanStorageImpl {
	return &S3ScanStorageImpl{
		client:     client,
		bucketName: bucketName,
		logger:     l,
	}
}

func (s *S3ScanStorageImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})

	return err
}

func (s *S3ScanStorageImpl) Name() string {
	return fmt.Sprintf("ScanStorage[%s]", s.bucketName)
}

func (s *S3ScanStorageImpl) ListSessionObjects(ctx context.Context, sessionID string) ([]string, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	prefix := sessionID + "/"
	s.logger.Debug("listing session objects", "prefix", prefix)

	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output

		err := retries.Retry(
			ctx,
			retries.DefaultAttempts,
			retries.DefaultBaseDelay,
			func() error {
				var err error
				page, err = paginator.NextPage(ctx)
				return err
			},
			retries.IsRetriableStorageError,
		)
		if err != nil {
			s.logger.Error("failed to list session objects", "prefix", prefix, "error", err)
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
	}

	s.logger.Debug("listed session objects", "prefix", prefix, "count", len(keys))
	return keys, nil
}

// DeleteObjects removes keys in batches, collecting per-key failures without
// aborting the batch. A failed API call marks that batch's keys failed and
// moves on; only context cancellation stops the loop early.
func (s *S3ScanStorageImpl) DeleteObjects(ctx context.Context, keys []string) (BatchDeleteResult, error) {
	var result BatchDeleteResult

	for start := 0; start < len(keys); start += deleteBatchSize {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		end := min(start+deleteBatchSize, len(keys))
		batch := keys[start:end]

		objects := make([]types.ObjectIdentifier, len(batch))
		for i, key := range batch {
			objects[i] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		var out *s3.DeleteObjectsOutput

		err := retries.Retry(
			ctx,
			retries.DefaultAttempts,
			retries.DefaultBaseDelay,
			func() error {
				var err error
				out, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
					Bucket: aws.String(s.bucketName),
					Delete: &types.Delete{
						Objects: objects,
						Quiet:   aws.Bool(false),
					},
				})
				return err
			},
			retries.IsRetriableStorageError,
		)
		if err != nil {
			s.logger.Error("batch delete failed", "batch_size", len(batch), "error", err)
			for _, key := range batch {
				result.Failures = append(result.Failures, models.DeletionFailure{
					Key:    key,
					Reason: err.Error(),
				})
			}
			continue
		}

		result.Deleted += len(out.Deleted)
		for _, derr := range out.Errors {
			failure := models.DeletionFailure{}
			if derr.Key != nil {
				failure.Key = *derr.Key
			}
			if derr.Message != nil {
				failure.Reason = *derr.Message
			} else if derr.Code != nil {
				failure.Reason = *derr.Code
			}
			result.Failures = append(result.Failures, failure)
		}
	}

	if len(result.Failures) > 0 {
		s.logger.Warn("batch delete finished with failures", "deleted", result.Deleted, "failed", len(result.Failures))
	} else {
		s.logger.Debug("batch delete finished", "deleted", result.Deleted)
	}

	return result, nil
}
