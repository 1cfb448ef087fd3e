package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"certtrack-backend/internal/models"
)

type TrackRepo struct {
	pool *pgxpool.Pool
}

func NewTrackRepo(pool *pgxpool.Pool) *TrackRepo {
	return &TrackRepo{pool: pool}
}

func (r *TrackRepo) List(ctx context.Context) ([]models.Track, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, icon, required_course_ids, created_at
		FROM tracks ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tracks := []models.Track{}
	for rows.Next() {
		var t models.Track
		if err := rows.Scan(&t.ID, &t.Name, &t.Icon, &t.RequiredCourseIDs, &t.CreatedAt); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}
