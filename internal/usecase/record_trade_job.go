package usecase

import (
	"context"

	"RollSwap/internal/domain/models"
	pkgqueue "RollSwap/pkg/queue"
)

// RecordTradeJob drains queued settled trades into the recording backend.
type RecordTradeJob struct {
	recorder *TradeRecorder
}

func NewRecordTradeJob(recorder *TradeRecorder) *RecordTradeJob {
	return &RecordTradeJob{recorder: recorder}
}

func (j *RecordTradeJob) Name() string { return "record-settled-trade" }

func (j *RecordTradeJob) Type() string { return recordTradeMsgType }

func (j *RecordTradeJob) Handle(ctx context.Context, payload interface{}) error {
	t, err := pkgqueue.ParsePayload[models.SettledTrade](payload)
	if err != nil {
		return err
	}
	return j.recorder.Record(ctx, t)
}

var _ pkgqueue.Job = (*RecordTradeJob)(nil)
