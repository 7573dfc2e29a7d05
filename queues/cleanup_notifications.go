package queues

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/scandesk/scandesk-services-sessions/internal/logging"
	"github.com/scandesk/scandesk-services-sessions/models"
	"github.com/scandesk/scandesk-services-sessions/services"
)

// CleanupNotifyReceiver consumes cleanup requests published by other
// services (account deletion, document purge) and runs session cleanup for
// each. Cleanup is idempotent, so redelivered messages are harmless.
type CleanupNotifyReceiver interface {
	Start()
	Shutdown(ctx context.Context) error
}

type CleanupNotifyReceiverImpl struct {
	client    *sqs.Client
	lifecycle services.LifecycleService
	queueUrl  string

	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCleanupNotifyReceiverImpl(
	parent context.Context,
	client *sqs.Client,
	lifecycle services.LifecycleService,
	l logging.Logger,
	queueUrl string,
) *CleanupNotifyReceiverImpl {

	ctx, cancel := context.WithCancel(parent)

	return &CleanupNotifyReceiverImpl{
		client:    client,
		lifecycle: lifecycle,
		queueUrl:  queueUrl,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *CleanupNotifyReceiverImpl) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.pollLoop()
	}()
}

func (r *CleanupNotifyReceiverImpl) pollLoop() error {
	for {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}

		out, err := r.client.ReceiveMessage(r.ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueUrl),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     20, // long poll
			VisibilityTimeout:   30,
		})
		if err != nil {
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range out.Messages {
			r.handleMessage(r.ctx, msg)
		}
	}
}

func (r *CleanupNotifyReceiverImpl) deleteMessage(ctx context.Context, msg types.Message) error {
	_, err := r.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueUrl),
		ReceiptHandle: msg.ReceiptHandle,
	})
	return err
}

func (r *CleanupNotifyReceiverImpl) handleMessage(ctx context.Context, msg types.Message) {
	if msg.Body == nil {
		r.deleteMessage(ctx, msg)
		return
	}

	var evt models.CleanupRequestedEvent
	if err := json.Unmarshal([]byte(*msg.Body), &evt); err != nil {
		// poison message
		r.logger.Warn("dropping unparsable cleanup request", "error", err)
		r.deleteMessage(ctx, msg)
		return
	}

	if evt.SessionID == "" {
		r.deleteMessage(ctx, msg)
		return
	}

	summary, err := r.lifecycle.Cleanup(ctx, evt.SessionID)
	if err != nil {
		r.logger.Error("queued cleanup failed, message left for redelivery", "session_id", evt.SessionID, "error", err)
		return // retry
	}

	r.logger.Info("queued cleanup done", "session_id", evt.SessionID, "files_deleted", summary.FilesDeleted)
	r.deleteMessage(ctx, msg)
}

func (r *CleanupNotifyReceiverImpl) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
