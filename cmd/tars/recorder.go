package main

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/hpungsan/tars/internal/ops"
	"github.com/hpungsan/tars/internal/orchestrator"
)

// turnRecorder appends completed exchanges to the turn log under one
// session id per overlay run.
type turnRecorder struct {
	db        *sql.DB
	sessionID string
}

func newTurnRecorder(db *sql.DB) *turnRecorder {
	return &turnRecorder{db: db, sessionID: uuid.NewString()}
}

func (r *turnRecorder) Record(ctx context.Context, ex orchestrator.Exchange) error {
	_, err := ops.Record(ctx, r.db, ops.RecordInput{
		SessionID: r.sessionID,
		Question:  ex.Question,
		Response:  ex.Response,
		Context:   ex.Context,
		Mode:      string(ex.Mode),
		Model:     ex.Model,
		OneShot:   ex.OneShot,
		At:        ex.At,
	})
	return err
}
