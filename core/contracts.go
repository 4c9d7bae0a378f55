package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger is the shared logging contract, aliased from go-logger.
type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// CredentialStore persists tenant credentials per adapter. Implementations
// must treat Set as a wholesale replacement of the record.
type CredentialStore interface {
	Get(ctx context.Context, key TenantKey) (AuthCredentials, error)
	Set(ctx context.Context, creds AuthCredentials) error
	Delete(ctx context.Context, key TenantKey) error
	List(ctx context.Context, adapterName string) ([]AuthCredentials, error)
}

// Adapter is the outbound calling contract the registry holds. The adapter
// package provides the pipeline implementation.
type Adapter interface {
	Name() string
	Request(ctx context.Context, tenantID string, req AdapterRequest) (AdapterResponse, error)
}

// JobExecutionMessage describes one maintenance job run. The jobs
// package defines the known JobID values and their parameters.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

// JobEnqueuer and JobDequeuer abstract the queue backend so schedulers
// never import go-job directly; adapters/gojob bridges both directions.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
