// Package db persists run results (evaluations, confusion matrices and grid
// search candidates) in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"digitlab/ml"
	"digitlab/search"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    seed INTEGER NOT NULL,
    samples INTEGER NOT NULL,
    train_size INTEGER NOT NULL,
    test_size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    model_name VARCHAR(50) NOT NULL,
    accuracy REAL,
    precision REAL,
    recall REAL,
    f1 REAL,
    status TEXT NOT NULL,
    error TEXT,
    trained_at DATETIME NOT NULL,
    data_points INTEGER,
    UNIQUE(run_id, model_name)
);
CREATE TABLE IF NOT EXISTS confusion (
    run_id INTEGER NOT NULL,
    model_name VARCHAR(50) NOT NULL,
    true_label INTEGER NOT NULL,
    predicted_label INTEGER NOT NULL,
    count INTEGER NOT NULL,
    UNIQUE(run_id, model_name, true_label, predicted_label)
);
CREATE TABLE IF NOT EXISTS search_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    candidate INTEGER NOT NULL,
    c REAL NOT NULL,
    gamma TEXT NOT NULL,
    kernel TEXT NOT NULL,
    mean_score REAL,
    std_score REAL,
    rank INTEGER,
    status TEXT NOT NULL,
    error TEXT,
    is_best INTEGER DEFAULT 0,
    UNIQUE(run_id, candidate)
);
CREATE INDEX IF NOT EXISTS idx_training_log_run ON training_log(run_id);
CREATE INDEX IF NOT EXISTS idx_search_results_run ON search_results(run_id);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Run describes one pipeline execution.
type Run struct {
	ID        int64
	StartedAt time.Time
	Seed      int64
	Samples   int
	TrainSize int
	TestSize  int
}

// CreateRun inserts r and returns its id.
func (s *Store) CreateRun(ctx context.Context, r Run) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO runs (started_at, seed, samples, train_size, test_size)
        VALUES (?, ?, ?, ?, ?)`,
		r.StartedAt.UTC(), r.Seed, r.Samples, r.TrainSize, r.TestSize)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SaveEvaluations writes one training_log row per evaluation plus the
// non-zero confusion cells of every successful one.
func (s *Store) SaveEvaluations(ctx context.Context, runID int64, evals []*ml.Evaluation, dataPoints int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	logStmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO training_log (
            run_id, model_name, accuracy, precision, recall, f1, status, error, trained_at, data_points
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer logStmt.Close()

	cellStmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO confusion (run_id, model_name, true_label, predicted_label, count)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer cellStmt.Close()

	now := time.Now().UTC()
	for _, e := range evals {
		if e == nil {
			continue
		}
		status, errText := "completed", ""
		if e.Err != nil {
			status, errText = "failed", e.Err.Error()
		}
		if _, err := logStmt.ExecContext(ctx, runID, e.Model, e.Accuracy,
			e.Macro.Precision, e.Macro.Recall, e.Macro.F1, status, errText, now, dataPoints); err != nil {
			return err
		}
		if e.Err != nil {
			continue
		}
		for t := range e.Confusion {
			for p, count := range e.Confusion[t] {
				if count == 0 {
					continue
				}
				if _, err := cellStmt.ExecContext(ctx, runID, e.Model, t, p, count); err != nil {
					return err
				}
			}
		}
	}
	return tx.Commit()
}

// SaveSearch writes every grid candidate of a search result.
func (s *Store) SaveSearch(ctx context.Context, runID int64, result *search.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO search_results (
            run_id, candidate, c, gamma, kernel, mean_score, std_score, rank, status, error, is_best
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range result.Candidates {
		best := 0
		if c.ID == result.Best.ID {
			best = 1
		}
		if _, err := stmt.ExecContext(ctx, runID, c.ID, c.Params.C, c.Params.Gamma.String(), string(c.Params.Kernel),
			c.MeanScore, c.StdScore, c.Rank, string(c.Status), c.Error, best); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TrainingLog is one stored model evaluation.
type TrainingLog struct {
	RunID      int64     `json:"run_id"`
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1         float64   `json:"f1"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

// LoadTrainingLog returns stored evaluations, newest run first.
func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, model_name, accuracy, precision, recall, f1, status, error, trained_at, data_points
        FROM training_log
        ORDER BY run_id DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var l TrainingLog
		var errText sql.NullString
		if err := rows.Scan(&l.RunID, &l.ModelName, &l.Accuracy, &l.Precision, &l.Recall, &l.F1,
			&l.Status, &errText, &l.TrainedAt, &l.DataPoints); err != nil {
			return nil, err
		}
		l.Error = errText.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// LoadConfusion rebuilds the stored confusion matrix of a model in a run.
func (s *Store) LoadConfusion(ctx context.Context, runID int64, model string) (ml.ConfusionMatrix, error) {
	var m ml.ConfusionMatrix
	rows, err := s.db.QueryContext(ctx, `
        SELECT true_label, predicted_label, count
        FROM confusion
        WHERE run_id = ? AND model_name = ?`, runID, model)
	if err != nil {
		return m, err
	}
	defer rows.Close()
	for rows.Next() {
		var t, p, count int
		if err := rows.Scan(&t, &p, &count); err != nil {
			return m, err
		}
		if t < 0 || t >= ml.NumClasses || p < 0 || p >= ml.NumClasses {
			return m, fmt.Errorf("stored label out of range: %d/%d", t, p)
		}
		m[t][p] = count
	}
	return m, rows.Err()
}

// StoredCandidate is one stored grid search row.
type StoredCandidate struct {
	Candidate int
	C         float64
	Gamma     string
	Kernel    string
	MeanScore float64
	StdScore  float64
	Rank      int
	Status    string
	Best      bool
}

// LoadSearchResults returns the grid candidates of a run in enumeration order.
func (s *Store) LoadSearchResults(ctx context.Context, runID int64) ([]StoredCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT candidate, c, gamma, kernel, mean_score, std_score, rank, status, is_best
        FROM search_results
        WHERE run_id = ?
        ORDER BY candidate`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredCandidate
	for rows.Next() {
		var c StoredCandidate
		var best int
		if err := rows.Scan(&c.Candidate, &c.C, &c.Gamma, &c.Kernel, &c.MeanScore, &c.StdScore,
			&c.Rank, &c.Status, &best); err != nil {
			return nil, err
		}
		c.Best = best == 1
		out = append(out, c)
	}
	return out, rows.Err()
}
