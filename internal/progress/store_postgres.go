package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const selectRecord = `SELECT student_id, topic_id, total_lessons, current_lesson, completed_lessons,
	test_attempted, last_test_score, best_test_score, last_test_passed, badge_unlocked, last_activity
	FROM progress`

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, studentID, topicID string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rec, err := scanRecord(s.pool.QueryRow(ctx,
		selectRecord+` WHERE student_id = $1 AND topic_id = $2`,
		studentID, topicID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get progress: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	completed := make([]int32, len(rec.CompletedLessons))
	for i, n := range rec.CompletedLessons {
		completed[i] = int32(n)
	}
	lastActivity := rec.LastActivity
	if lastActivity.IsZero() {
		lastActivity = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO progress (student_id, topic_id, total_lessons, current_lesson, completed_lessons,
			test_attempted, last_test_score, best_test_score, last_test_passed, badge_unlocked, last_activity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (student_id, topic_id) DO UPDATE SET
			total_lessons     = EXCLUDED.total_lessons,
			current_lesson    = EXCLUDED.current_lesson,
			completed_lessons = EXCLUDED.completed_lessons,
			test_attempted    = EXCLUDED.test_attempted,
			last_test_score   = EXCLUDED.last_test_score,
			best_test_score   = EXCLUDED.best_test_score,
			last_test_passed  = EXCLUDED.last_test_passed,
			badge_unlocked    = EXCLUDED.badge_unlocked,
			last_activity     = EXCLUDED.last_activity`,
		rec.StudentID,
		rec.TopicID,
		rec.TotalLessons,
		rec.CurrentLesson,
		completed,
		rec.TestAttempted,
		rec.LastTestScore,
		rec.BestTestScore,
		rec.LastTestPassed,
		rec.BadgeUnlocked,
		lastActivity,
	)
	if err != nil {
		return fmt.Errorf("put progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectRecord+` WHERE student_id = $1 ORDER BY topic_id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var completed []int32
	err := row.Scan(
		&rec.StudentID,
		&rec.TopicID,
		&rec.TotalLessons,
		&rec.CurrentLesson,
		&completed,
		&rec.TestAttempted,
		&rec.LastTestScore,
		&rec.BestTestScore,
		&rec.LastTestPassed,
		&rec.BadgeUnlocked,
		&rec.LastActivity,
	)
	if err != nil {
		return Record{}, err
	}
	rec.CompletedLessons = make([]int, len(completed))
	for i, n := range completed {
		rec.CompletedLessons[i] = int(n)
	}
	return rec, nil
}
