package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"certtrack-backend/internal/models"
)

type ProgressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

const progressColumns = "user_id, course_id, status, due_date, completed_date, updated_at"

func scanProgress(rows pgx.Rows) ([]models.ProgressRecord, error) {
	defer rows.Close()

	records := []models.ProgressRecord{}
	for rows.Next() {
		var p models.ProgressRecord
		if err := rows.Scan(&p.UserID, &p.CourseID, &p.Status, &p.DueDate, &p.CompletedDate, &p.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

func (r *ProgressRepo) ListAll(ctx context.Context) ([]models.ProgressRecord, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+progressColumns+" FROM user_course_progress")
	if err != nil {
		return nil, err
	}
	return scanProgress(rows)
}

func (r *ProgressRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ProgressRecord, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+progressColumns+" FROM user_course_progress WHERE user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	return scanProgress(rows)
}

func (r *ProgressRepo) Get(ctx context.Context, userID, courseID uuid.UUID) (*models.ProgressRecord, error) {
	p := &models.ProgressRecord{}
	err := r.pool.QueryRow(ctx, "SELECT "+progressColumns+" FROM user_course_progress WHERE user_id = $1 AND course_id = $2",
		userID, courseID,
	).Scan(&p.UserID, &p.CourseID, &p.Status, &p.DueDate, &p.CompletedDate, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// RecordResult stores the outcome of a finished attempt. A pass completes the
// course; a fail leaves it in progress. A course already completed stays
// completed and keeps its original completion date.
func (r *ProgressRepo) RecordResult(ctx context.Context, userID, courseID uuid.UUID, passed bool, at time.Time) (*models.ProgressRecord, error) {
	status := models.ProgressInProgress
	var completed *time.Time
	if passed {
		status = models.ProgressCompleted
		completed = &at
	}

	p := &models.ProgressRecord{}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_course_progress (user_id, course_id, status, completed_date, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			status = CASE WHEN user_course_progress.status = 'completed' THEN 'completed' ELSE EXCLUDED.status END,
			completed_date = COALESCE(user_course_progress.completed_date, EXCLUDED.completed_date),
			updated_at = EXCLUDED.updated_at
		RETURNING `+progressColumns,
		userID, courseID, status, completed, at,
	).Scan(&p.UserID, &p.CourseID, &p.Status, &p.DueDate, &p.CompletedDate, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Override applies an administrator's change. Nil fields are left alone; an
// empty due date clears it.
func (r *ProgressRepo) Override(ctx context.Context, userID, courseID uuid.UUID, req models.ProgressOverrideRequest, at time.Time) (*models.ProgressRecord, error) {
	var status *string
	var completed *time.Time
	if req.Status != nil {
		s := string(*req.Status)
		status = &s
		if *req.Status == models.ProgressCompleted {
			completed = &at
		}
	}

	p := &models.ProgressRecord{}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_course_progress (user_id, course_id, status, due_date, completed_date, updated_at)
		VALUES ($1, $2, COALESCE($3, 'not-started'), NULLIF($4, ''), $5, $6)
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			status = COALESCE($3, user_course_progress.status),
			due_date = CASE WHEN $4::TEXT IS NULL THEN user_course_progress.due_date ELSE NULLIF($4, '') END,
			completed_date = CASE
				WHEN $3::TEXT IS NULL THEN user_course_progress.completed_date
				WHEN $3 = 'completed' THEN COALESCE(user_course_progress.completed_date, $5)
				ELSE NULL
			END,
			updated_at = $6
		RETURNING `+progressColumns,
		userID, courseID, status, req.DueDate, completed, at,
	).Scan(&p.UserID, &p.CourseID, &p.Status, &p.DueDate, &p.CompletedDate, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProgressRepo) Delete(ctx context.Context, userID, courseID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM user_course_progress WHERE user_id = $1 AND course_id = $2", userID, courseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
