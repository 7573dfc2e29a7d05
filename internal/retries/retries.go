package retries

import (
	"context"
	"errors"
	"time"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/scandesk/scandesk-services-sessions/internal/apperrors"
)

const (
	DefaultAttempts = 3
	HealthAttempts  = 2
)

const (
	DefaultBaseDelay = 100 * time.Millisecond
	HealthBaseDelay  = 50 * time.Millisecond
)

// Retry runs fn up to attempts times with exponential backoff, retrying only
// errors isRetriable accepts. The last error is returned unchanged.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error, isRetriable func(error) bool) error {
	var err error
	delay := baseDelay

	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}

		if !isRetriable(err) || i == attempts-1 {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}

var retriableCodes = map[string]bool{
	"ThrottlingException":                    true,
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"SlowDown":                               true,
}

// IsRetriableDBError accepts throttling and server faults from DynamoDB.
// Conditional check failures are the optimistic concurrency signal and must
// surface immediately.
func IsRetriableDBError(err error) bool {
	var ccf *ddbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return false
	}
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return false
	}
	return isRetriableAPIError(err)
}

func IsRetriableStorageError(err error) bool {
	return isRetriableAPIError(err)
}

func isRetriableAPIError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return retriableCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer
	}

	// transport-level failure, worth another attempt
	return true
}
