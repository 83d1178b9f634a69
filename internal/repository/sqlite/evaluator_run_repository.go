package sqlite

import (
	"fmt"

	"obstaclecam/internal/model"
)

// EvaluatorRunRepository implements repository.EvaluatorRunRepository for SQLite.
type EvaluatorRunRepository struct {
	db *DB
}

func NewEvaluatorRunRepository(db *DB) *EvaluatorRunRepository {
	return &EvaluatorRunRepository{db: db}
}

func (r *EvaluatorRunRepository) Insert(run *model.EvaluatorRun) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO evaluator_runs (camera, session, execution, evaluations, failures, avg_latency_ms, p95_latency_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Camera, run.Session, run.Execution, run.Evaluations, run.Failures,
		run.AverageLatencyMs, run.P95LatencyMs, run.RecordedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert evaluator run: %w", err)
	}

	return result.LastInsertId()
}

// GetRecent returns the newest runs first. An empty camera matches all cameras.
func (r *EvaluatorRunRepository) GetRecent(camera string, limit int) ([]model.EvaluatorRun, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, camera, session, execution, evaluations, failures, avg_latency_ms, p95_latency_ms, recorded_at
		FROM evaluator_runs
	`
	args := []interface{}{}
	if camera != "" {
		query += " WHERE camera = ?"
		args = append(args, camera)
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluator runs: %w", err)
	}
	defer rows.Close()

	var runs []model.EvaluatorRun
	for rows.Next() {
		var run model.EvaluatorRun
		if err := rows.Scan(&run.ID, &run.Camera, &run.Session, &run.Execution, &run.Evaluations,
			&run.Failures, &run.AverageLatencyMs, &run.P95LatencyMs, &run.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluator run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
