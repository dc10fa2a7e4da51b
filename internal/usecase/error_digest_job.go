package usecase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	applogger "RollSwap/pkg/logger"
	pkgqueue "RollSwap/pkg/queue"
)

// ErrorDigestTopic is the queue message type carrying aggregated error logs.
const ErrorDigestTopic = "error_digest"

// ErrorDigestJob persists aggregated error log batches flushed by the log
// collector into ClickHouse for offline inspection.
type ErrorDigestJob struct {
	db    *sql.DB
	table string
}

func NewErrorDigestJob(db *sql.DB, table string) *ErrorDigestJob {
	return &ErrorDigestJob{db: db, table: table}
}

func (j *ErrorDigestJob) Name() string { return "store-error-digest" }

func (j *ErrorDigestJob) Type() string { return ErrorDigestTopic }

func (j *ErrorDigestJob) Handle(ctx context.Context, payload interface{}) error {
	entries, err := pkgqueue.ParsePayload[[]applogger.AggregatedLogEntry](payload)
	if err != nil {
		return err
	}
	if len(*entries) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (level, message, caller, fields, count, first_seen, last_seen) VALUES (?, ?, ?, ?, ?, ?, ?)",
		j.table,
	)
	for _, e := range *entries {
		fields, _ := json.Marshal(e.Fields)
		if _, err := j.db.ExecContext(ctx, query,
			e.Level, e.Message, e.Caller, string(fields), e.Count, e.FirstSeen, e.LastSeen,
		); err != nil {
			return fmt.Errorf("store error digest: %w", err)
		}
	}
	return nil
}

var _ pkgqueue.Job = (*ErrorDigestJob)(nil)
