package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"certtrack-backend/internal/models"
)

type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func (r *ActivityRepo) List(ctx context.Context) ([]models.ActivityLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, login_count, last_login, quiz_attempts, quiz_passes, quiz_fails, total_training_seconds
		FROM activity_logs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.ActivityLog{}
	for rows.Next() {
		var l models.ActivityLog
		if err := rows.Scan(&l.UserID, &l.LoginCount, &l.LastLogin, &l.QuizAttempts, &l.QuizPasses, &l.QuizFails, &l.TotalTrainingSeconds); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// RecordAttempt counts one finished attempt and the time spent on it.
func (r *ActivityRepo) RecordAttempt(ctx context.Context, userID uuid.UUID, passed bool, seconds int64) error {
	pass, fail := 0, 1
	if passed {
		pass, fail = 1, 0
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_logs (user_id, quiz_attempts, quiz_passes, quiz_fails, total_training_seconds)
		VALUES ($1, 1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			quiz_attempts = activity_logs.quiz_attempts + 1,
			quiz_passes = activity_logs.quiz_passes + EXCLUDED.quiz_passes,
			quiz_fails = activity_logs.quiz_fails + EXCLUDED.quiz_fails,
			total_training_seconds = activity_logs.total_training_seconds + EXCLUDED.total_training_seconds
	`, userID, pass, fail, max(seconds, 0))
	return err
}
