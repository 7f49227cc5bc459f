package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/washtrade-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time.
// This ensures schema init works inside the Docker runtime image which
// does not copy internal/db/schema.sql into the final stage.
//
//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Wash-Trade Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Wash-Trade Analysis Schema initialized")
	return nil
}

// StoredRun is the persisted form of one analysis run.
type StoredRun struct {
	RunID         string               `json:"runId"`
	Token         string               `json:"token"`
	Chain         string               `json:"chain"`
	CreatedAt     time.Time            `json:"createdAt"`
	TransferCount int                  `json:"transferCount"`
	RejectedCount int                  `json:"rejectedCount"`
	TotalVolume   float64              `json:"totalVolumeUsd"`
	Truncated     bool                 `json:"truncated"`
	Summary       models.Summary       `json:"summary"`
	Findings      []models.Finding     `json:"findings,omitempty"`
	Scores        []StoredAddressScore `json:"scores,omitempty"`
}

// StoredAddressScore is one row of the per-address score table.
type StoredAddressScore struct {
	Address   string           `json:"address"`
	Score     float64          `json:"score"`
	RiskLevel models.RiskLevel `json:"riskLevel"`
}

// SaveAnalysisResult persists a full run: the summary row, every
// finding, and every per-address score, in one transaction.
func (s *PostgresStore) SaveAnalysisResult(ctx context.Context, runID uuid.UUID, token, chain string, result *models.AnalysisResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %v", err)
	}

	insertRunSQL := `
		INSERT INTO analysis_runs (run_id, token, chain, transfer_count, rejected_count, total_volume_usd, truncated, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err = tx.Exec(ctx, insertRunSQL, runID, token, chain,
		result.Summary.TotalTransfers, result.Summary.RejectedTransfers,
		result.Summary.TotalVolumeUSD, result.Summary.Truncated, summaryJSON)
	if err != nil {
		return fmt.Errorf("failed to insert analysis_runs: %v", err)
	}

	insertFindingSQL := `
		INSERT INTO findings (finding_id, run_id, kind, severity, addresses, transfer_ids, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	for _, f := range result.Findings {
		_, err = tx.Exec(ctx, insertFindingSQL, uuid.New(), runID,
			string(f.Kind), f.Severity, f.Addresses, f.TransferIDs, f.Description)
		if err != nil {
			return fmt.Errorf("failed to insert finding: %v", err)
		}
	}

	insertScoreSQL := `
		INSERT INTO address_scores (run_id, address, score, risk_level)
		VALUES ($1, $2, $3, $4);
	`
	for addr, score := range result.AddressScores {
		_, err = tx.Exec(ctx, insertScoreSQL, runID, addr, score, string(models.RiskLevelForScore(score)))
		if err != nil {
			return fmt.Errorf("failed to insert address score: %v", err)
		}
	}

	return tx.Commit(ctx)
}

// GetRun loads one stored run with its findings and address scores.
func (s *PostgresStore) GetRun(ctx context.Context, runID uuid.UUID) (*StoredRun, error) {
	run := &StoredRun{}
	var summaryJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT run_id::text, token, chain, created_at, transfer_count, rejected_count, total_volume_usd, truncated, summary
		FROM analysis_runs WHERE run_id = $1;
	`, runID).Scan(&run.RunID, &run.Token, &run.Chain, &run.CreatedAt,
		&run.TransferCount, &run.RejectedCount, &run.TotalVolume, &run.Truncated, &summaryJSON)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(summaryJSON, &run.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %v", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT kind, severity, addresses, transfer_ids, description
		FROM findings WHERE run_id = $1 ORDER BY severity DESC, kind;
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f models.Finding
		var kind string
		if err := rows.Scan(&kind, &f.Severity, &f.Addresses, &f.TransferIDs, &f.Description); err != nil {
			return nil, err
		}
		f.Kind = models.FindingKind(kind)
		run.Findings = append(run.Findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scoreRows, err := s.pool.Query(ctx, `
		SELECT address, score, risk_level FROM address_scores WHERE run_id = $1 ORDER BY score DESC;
	`, runID)
	if err != nil {
		return nil, err
	}
	defer scoreRows.Close()
	for scoreRows.Next() {
		var sc StoredAddressScore
		var level string
		if err := scoreRows.Scan(&sc.Address, &sc.Score, &level); err != nil {
			return nil, err
		}
		sc.RiskLevel = models.RiskLevel(level)
		run.Scores = append(run.Scores, sc)
	}
	return run, scoreRows.Err()
}

// ListRuns returns run summaries, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]StoredRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id::text, token, chain, created_at, transfer_count, rejected_count, total_volume_usd, truncated, summary
		FROM analysis_runs ORDER BY created_at DESC LIMIT $1;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []StoredRun
	for rows.Next() {
		var run StoredRun
		var summaryJSON []byte
		if err := rows.Scan(&run.RunID, &run.Token, &run.Chain, &run.CreatedAt,
			&run.TransferCount, &run.RejectedCount, &run.TotalVolume, &run.Truncated, &summaryJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(summaryJSON, &run.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %v", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
