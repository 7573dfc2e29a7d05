package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/scandesk/scandesk-services-sessions/handlers"
	"github.com/scandesk/scandesk-services-sessions/queues"
	"github.com/scandesk/scandesk-services-sessions/services"
	"github.com/scandesk/scandesk-services-sessions/store"
	"github.com/scandesk/scandesk-services-sessions/workers"
)

type Stores struct {
	sessions store.SessionStore
	scans    store.ScanStorage
}

type Services struct {
	Sessions  services.SessionService
	Lifecycle services.LifecycleService
	Cleanups  queues.CleanupNotifyReceiver
	Sweeper   *workers.Sweeper

	Stores *Stores

	HTTPHandler *handlers.HTTPHandler
}

type Shutdowner interface {
	Shutdown(context.Context) error
}

func BuildServices(app *App) *Services {

	sessStore := store.NewSessionStoreImpl(app.DynamoDB, app.Config.DynamoDBConfig.SessionsTableName)
	scanStorage := store.NewS3ScanStorageImpl(app.S3, app.Config.S3Config.ScansBucketName, app.Logger)

	sessSvc := services.NewSessionServiceImpl(sessStore)
	lifecycleSvc := services.NewLifecycleServiceImpl(sessStore, scanStorage, app.Logger)

	queueUrl := fmt.Sprintf("https://sqs.%s.amazonaws.com/%s/%s", app.Config.AWSConfig.Region, app.Config.AWSConfig.AccountID, app.Config.ServiceConfig.CleanupQueueName)
	cleanupsReceiver := queues.NewCleanupNotifyReceiverImpl(context.Background(), app.Sqs, lifecycleSvc, app.Logger, queueUrl)
	cleanupsReceiver.Start()

	locker := workers.NewRedisLocker(app.Redis, uuid.NewString())
	sweeper := workers.NewSweeper(
		context.Background(),
		lifecycleSvc,
		locker,
		app.Config.ServiceConfig.SweepInterval,
		app.Config.ServiceConfig.SweepLeaseTTL,
		app.Logger,
	)
	sweeper.Start()

	handler := handlers.NewHTTPHandler(sessSvc, lifecycleSvc, app.Logger)

	return &Services{
		Sessions:  sessSvc,
		Lifecycle: lifecycleSvc,
		Cleanups:  cleanupsReceiver,
		Sweeper:   sweeper,

		Stores: &Stores{
			sessions: sessStore,
			scans:    scanStorage,
		},

		HTTPHandler: handler,
	}
}

func (s *Services) Shutdown(ctx context.Context) error {
	log.Println("shutting down services")

	if s.Sweeper != nil {
		if err := s.Sweeper.Shutdown(ctx); err != nil {
			log.Printf("sweeper shutdown error: %v", err)
		}
	}

	if s.Cleanups != nil {
		if err := s.Cleanups.Shutdown(ctx); err != nil {
			log.Printf("cleanup receiver shutdown error: %v", err)
		}
	}

	if s.Stores != nil {
		if err := s.Stores.Shutdown(ctx); err != nil {
			log.Printf("stores shutdown error: %v", err)
		}
	}

	log.Println("services shutdown complete")
	return nil
}

func (s *Stores) Shutdown(ctx context.Context) error {
	shutdownIfPossible := func(name string, v any) {
		if sh, ok := v.(Shutdowner); ok {
			if err := sh.Shutdown(ctx); err != nil {
				log.Printf("%s store shutdown error: %v", name, err)
			}
		}
	}

	shutdownIfPossible("sessions", s.sessions)
	shutdownIfPossible("scans", s.scans)

	return nil
}
