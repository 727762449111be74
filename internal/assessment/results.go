package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// ResultQuery filters the result log. Empty fields match everything.
type ResultQuery struct {
	StudentID string
	TopicID   string
	Limit     int
}

func (q ResultQuery) matches(r Result) bool {
	return (q.StudentID == "" || r.StudentID == q.StudentID) &&
		(q.TopicID == "" || r.TopicID == q.TopicID)
}

// ResultLog is the append-only record of graded attempts.
type ResultLog interface {
	Append(ctx context.Context, r Result) (Result, error)
	// Query returns matching results, newest first.
	Query(ctx context.Context, q ResultQuery) ([]Result, error)
}

func prepare(r Result) (Result, error) {
	if r.StudentID == "" || r.TopicID == "" {
		return Result{}, fmt.Errorf("result needs student_id and topic_id")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return r, nil
}

// MemoryResultLog is an in-memory ResultLog.
type MemoryResultLog struct {
	mu      sync.RWMutex
	results []Result
}

// NewMemoryResultLog creates an empty in-memory result log.
func NewMemoryResultLog() *MemoryResultLog {
	return &MemoryResultLog{}
}

func (l *MemoryResultLog) Append(_ context.Context, r Result) (Result, error) {
	r, err := prepare(r)
	if err != nil {
		return Result{}, err
	}
	r.Answers = slices.Clone(r.Answers)

	l.mu.Lock()
	l.results = append(l.results, r)
	l.mu.Unlock()
	return r, nil
}

func (l *MemoryResultLog) Query(_ context.Context, q ResultQuery) ([]Result, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Result
	for i := len(l.results) - 1; i >= 0; i-- {
		if q.matches(l.results[i]) {
			out = append(out, l.results[i])
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
	}
	return out, nil
}

// PostgresResultLog stores results in the test_results table.
type PostgresResultLog struct {
	pool *pgxpool.Pool
}

// NewPostgresResultLog creates a PostgreSQL-backed result log.
func NewPostgresResultLog(pool *pgxpool.Pool) (*PostgresResultLog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresResultLog{pool: pool}, nil
}

func (l *PostgresResultLog) Append(ctx context.Context, r Result) (Result, error) {
	r, err := prepare(r)
	if err != nil {
		return Result{}, err
	}
	answers := r.Answers
	if answers == nil {
		answers = []Answer{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return Result{}, fmt.Errorf("marshal answers: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO test_results (id, test_id, student_id, topic_id, score, passed, answers, elapsed_seconds, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)`,
		r.ID,
		r.TestID,
		r.StudentID,
		r.TopicID,
		r.Score,
		r.Passed,
		string(data),
		r.ElapsedSeconds,
		r.CreatedAt,
	)
	if err != nil {
		return Result{}, fmt.Errorf("insert test result: %w", err)
	}
	return r, nil
}

func (l *PostgresResultLog) Query(ctx context.Context, q ResultQuery) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id::text, test_id, student_id, topic_id, score, passed, answers, elapsed_seconds, created_at
		 FROM test_results
		 WHERE ($1 = '' OR student_id = $1)
		   AND ($2 = '' OR topic_id = $2)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		q.StudentID,
		q.TopicID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query test results: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var r Result
		var answers []byte
		if err := row.Scan(&r.ID, &r.TestID, &r.StudentID, &r.TopicID, &r.Score, &r.Passed,
			&answers, &r.ElapsedSeconds, &r.CreatedAt); err != nil {
			return Result{}, err
		}
		if err := json.Unmarshal(answers, &r.Answers); err != nil {
			return Result{}, fmt.Errorf("decode answers: %w", err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan test results: %w", err)
	}
	return out, nil
}
