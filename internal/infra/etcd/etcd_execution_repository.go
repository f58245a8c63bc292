// internal/infra/etcd/etcd_execution_repository.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"tasks-pizza/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ExecutionHistoryDir = KeyRoot + "history/"
)

type etcdExecutionRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdExecutionRepository stores worker execution records in etcd.
func NewEtcdExecutionRepository(client *clientv3.Client, logger *slog.Logger) domain.ExecutionRepository {
	return &etcdExecutionRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("tasks-pizza-etcd-execution-repo"),
	}
}

// Save persists a single execution record to etcd.
// The key is structured as {ExecutionHistoryDir}/{taskName}/{executionID}.
func (r *etcdExecutionRepository) Save(ctx context.Context, record *domain.ExecutionRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveExecution")
	defer span.End()

	recordJSON, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal execution record")
		return fmt.Errorf("failed to marshal execution record %s to JSON: %w", record.ID, err)
	}

	key := path.Join(ExecutionHistoryDir, record.TaskName, record.ID)
	span.SetAttributes(
		attribute.String("execution.id", record.ID),
		attribute.String("task.name", record.TaskName),
		attribute.String("etcd.key", key),
	)

	_, err = r.client.Put(ctx, key, string(recordJSON))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put execution record to etcd")
		return fmt.Errorf("failed to save execution record %s to etcd: %w", record.ID, err)
	}
	return nil
}

// ListByTaskName returns one page of a task's execution records, newest first.
func (r *etcdExecutionRepository) ListByTaskName(ctx context.Context, taskName string, page, pageSize int) ([]*domain.ExecutionRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListExecutions")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.name", taskName),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	prefix := path.Join(ExecutionHistoryDir, taskName) + "/"
	resp, err := r.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list execution records from etcd")
		return nil, fmt.Errorf("failed to list execution records for task %s from etcd: %w", taskName, err)
	}

	records := make([]*domain.ExecutionRecord, 0, len(resp.Kvs))
	// etcd has no offsets; page over the sorted keys.
	startIdx := (page - 1) * pageSize
	endIdx := startIdx + pageSize

	for i, kv := range resp.Kvs {
		if i < startIdx {
			continue
		}
		if i >= endIdx {
			break
		}

		var record domain.ExecutionRecord
		if err := json.Unmarshal(kv.Value, &record); err != nil {
			r.logger.Warn("failed to unmarshal execution record from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		records = append(records, &record)
	}
	span.SetAttributes(attribute.Int("records_returned", len(records)))
	return records, nil
}
