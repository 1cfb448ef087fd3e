package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"certtrack-backend/internal/models"
)

var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type CourseRepo struct {
	pool *pgxpool.Pool
}

func NewCourseRepo(pool *pgxpool.Pool) *CourseRepo {
	return &CourseRepo{pool: pool}
}

func (r *CourseRepo) List(ctx context.Context) ([]models.Course, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, title, description, quiz_length, created_at
		FROM courses ORDER BY created_at, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := []models.Course{}
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.QuizLength, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (r *CourseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	c := &models.Course{}
	err := r.pool.QueryRow(ctx, `SELECT id, title, description, quiz_length, created_at
		FROM courses WHERE id = $1`, id).Scan(&c.ID, &c.Title, &c.Description, &c.QuizLength, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListQuestions returns the course's whole pool.
func (r *CourseRepo) ListQuestions(ctx context.Context, courseID uuid.UUID) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, course_id, text, options, correct_index, created_at
		FROM questions WHERE course_id = $1 ORDER BY created_at, id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pool := []models.Question{}
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.CourseID, &q.Text, &q.Options, &q.CorrectIndex, &q.CreatedAt); err != nil {
			return nil, err
		}
		pool = append(pool, q)
	}
	return pool, rows.Err()
}

// AddQuestions appends questions to a course's pool in one transaction and
// returns the new pool size.
func (r *CourseRepo) AddQuestions(ctx context.Context, courseID uuid.UUID, questions []models.Question) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := range questions {
		questions[i].ID = uuid.New()
		questions[i].CourseID = courseID
		batch.Queue(`INSERT INTO questions (id, course_id, text, options, correct_index)
			VALUES ($1, $2, $3, $4, $5)`,
			questions[i].ID, courseID, questions[i].Text, questions[i].Options, questions[i].CorrectIndex)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to insert questions: %w", err)
	}

	var total int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM questions WHERE course_id = $1", courseID).Scan(&total); err != nil {
		return 0, err
	}
	return total, tx.Commit(ctx)
}
