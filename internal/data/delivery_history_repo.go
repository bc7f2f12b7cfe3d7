package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/target/report-runner/internal/data/pgxutil"
	"github.com/target/report-runner/internal/domain/model"
	apperrors "github.com/target/report-runner/internal/errors"
)

// DeliveryHistoryRepo persists one delivery_history row per job.
type DeliveryHistoryRepo struct {
	DB *sql.DB
}

// NewDeliveryHistoryRepo constructs a DeliveryHistoryRepo.
func NewDeliveryHistoryRepo(db *sql.DB) *DeliveryHistoryRepo {
	return &DeliveryHistoryRepo{DB: db}
}

// Upsert stores the outcome of a job invocation, replacing the row of an earlier
// invocation of the same job.
func (r *DeliveryHistoryRepo) Upsert(ctx context.Context, rec *model.DeliveryRecord) error {
	if r == nil || r.DB == nil {
		return ErrHistoryNotConfigured
	}
	if rec == nil || rec.JobID == "" {
		return ErrJobIDRequired
	}

	const query = `
		INSERT INTO delivery_history (
			job_id, report_name, output_format, state, channel, artifact_name,
			failure_kind, detail, recipients, started_at, finished_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (job_id)
		DO UPDATE SET
			report_name = EXCLUDED.report_name,
			output_format = EXCLUDED.output_format,
			state = EXCLUDED.state,
			channel = EXCLUDED.channel,
			artifact_name = EXCLUDED.artifact_name,
			failure_kind = EXCLUDED.failure_kind,
			detail = EXCLUDED.detail,
			recipients = EXCLUDED.recipients,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			updated_at = now()`

	recipients := rec.Recipients
	if recipients == nil {
		recipients = []string{}
	}

	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, query,
			rec.JobID, rec.ReportName, rec.OutputFormat, rec.State, rec.Channel, rec.ArtifactName,
			rec.FailureKind, rec.Detail, recipients, rec.StartedAt, rec.FinishedAt,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert delivery_history: %w", apperrors.MapDBError(err))
	}
	return nil
}

// GetByJobID retrieves the history row for a job.
func (r *DeliveryHistoryRepo) GetByJobID(ctx context.Context, jobID string) (*model.DeliveryRecord, error) {
	if r == nil || r.DB == nil {
		return nil, ErrHistoryNotConfigured
	}
	if jobID == "" {
		return nil, ErrJobIDRequired
	}

	const query = `
		SELECT job_id::text AS job_id, report_name, output_format, state, channel, artifact_name,
			failure_kind, detail, recipients, started_at, finished_at, created_at, updated_at
		FROM delivery_history
		WHERE job_id = $1`

	var out *model.DeliveryRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, jobID)
		if err != nil {
			return err
		}
		defer rows.Close()
		rec, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.DeliveryRecord])
		if err != nil {
			return err
		}
		out = &rec
		return nil
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery_history: %w", apperrors.MapDBError(err))
	}
	return out, nil
}
