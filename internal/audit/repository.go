package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/regimelab/backend/internal/backtest"
	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/internal/regimeconfig"
	"github.com/wonny/regimelab/backend/pkg/database"
)

// ErrNotFound no stored row matched
var ErrNotFound = errors.New("audit record not found")

// Repository persists detections and backtest runs to Postgres
// ⭐ SSOT: Audit 데이터 저장/조회는 여기서만
type Repository struct {
	db *database.DB
}

// NewRepository creates a new audit repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

var schemaDDL = []string{
	`CREATE SCHEMA IF NOT EXISTS regime`,
	`CREATE TABLE IF NOT EXISTS regime.detections (
		month            TEXT             NOT NULL,
		config_hash      TEXT             NOT NULL,
		data_snapshot_id TEXT             NOT NULL DEFAULT '',
		dominant         TEXT             NOT NULL,
		natural_leader   TEXT             NOT NULL,
		confidence       DOUBLE PRECISION NOT NULL,
		is_sticky        BOOLEAN          NOT NULL,
		block_reason     TEXT             NOT NULL DEFAULT '',
		probabilities    JSONB            NOT NULL,
		detection        JSONB            NOT NULL,
		created_at       TIMESTAMPTZ      NOT NULL DEFAULT now(),
		PRIMARY KEY (month, config_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS regime.backtest_runs (
		run_id            TEXT PRIMARY KEY,
		config_hash       TEXT             NOT NULL,
		data_snapshot_id  TEXT             NOT NULL DEFAULT '',
		start_month       TEXT             NOT NULL,
		end_month         TEXT             NOT NULL,
		rebalance         TEXT             NOT NULL,
		total_return      DOUBLE PRECISION NOT NULL,
		annualized_return DOUBLE PRECISION NOT NULL,
		max_drawdown      DOUBLE PRECISION NOT NULL,
		sharpe            DOUBLE PRECISION NOT NULL,
		params            JSONB            NOT NULL,
		summary           JSONB            NOT NULL,
		transitions       JSONB            NOT NULL,
		created_at        TIMESTAMPTZ      NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS regime.backtest_months (
		run_id           TEXT             NOT NULL REFERENCES regime.backtest_runs(run_id) ON DELETE CASCADE,
		month            TEXT             NOT NULL,
		regime           TEXT             NOT NULL,
		confidence       DOUBLE PRECISION NOT NULL,
		portfolio_return DOUBLE PRECISION NOT NULL,
		portfolio_value  DOUBLE PRECISION NOT NULL,
		drawdown         DOUBLE PRECISION NOT NULL,
		rebalanced       BOOLEAN          NOT NULL,
		weights          JSONB            NOT NULL,
		PRIMARY KEY (run_id, month)
	)`,
	`CREATE TABLE IF NOT EXISTS regime.risk_reports (
		run_id      TEXT PRIMARY KEY,
		var_95      DOUBLE PRECISION,
		cvar_95     DOUBLE PRECISION,
		passed      BOOLEAN,
		report      JSONB       NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_created ON regime.detections (config_hash, month DESC)`,
}

// EnsureSchema creates the regime schema and tables if missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schemaDDL {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		return nil
	})
}

// StoredDetection one persisted detection
type StoredDetection struct {
	Month          string           `json:"month"`
	ConfigHash     string           `json:"config_hash"`
	DataSnapshotID string           `json:"data_snapshot_id"`
	Detection      regime.Detection `json:"detection"`
	CreatedAt      time.Time        `json:"created_at"`
}

// SaveDetections upserts every month of a replay under the snapshot's config hash
func (r *Repository) SaveDetections(ctx context.Context, snap regimeconfig.Snapshot, history regime.History) error {
	if len(history) == 0 {
		return nil
	}

	query := `
		INSERT INTO regime.detections (
			month, config_hash, data_snapshot_id, dominant, natural_leader,
			confidence, is_sticky, block_reason, probabilities, detection
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (month, config_hash) DO UPDATE SET
			data_snapshot_id = EXCLUDED.data_snapshot_id,
			dominant = EXCLUDED.dominant,
			natural_leader = EXCLUDED.natural_leader,
			confidence = EXCLUDED.confidence,
			is_sticky = EXCLUDED.is_sticky,
			block_reason = EXCLUDED.block_reason,
			probabilities = EXCLUDED.probabilities,
			detection = EXCLUDED.detection,
			created_at = now()
	`

	batch := &pgx.Batch{}
	for _, d := range history {
		probsJSON, err := json.Marshal(d.Probabilities)
		if err != nil {
			return fmt.Errorf("failed to marshal probabilities: %w", err)
		}
		detJSON, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to marshal detection: %w", err)
		}
		batch.Queue(query,
			d.Date, snap.ConfigHash, snap.DataSnapshotID, string(d.Dominant), string(d.NaturalLeader),
			d.Confidence, d.IsSticky, d.BlockReason, probsJSON, detJSON,
		)
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save detections: %w", err)
		}
		return nil
	})
}

const detectionColumns = `month, config_hash, data_snapshot_id, detection, created_at`

func scanDetection(row pgx.Row) (*StoredDetection, error) {
	var (
		s       StoredDetection
		detJSON []byte
	)
	if err := row.Scan(&s.Month, &s.ConfigHash, &s.DataSnapshotID, &detJSON, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(detJSON, &s.Detection); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detection: %w", err)
	}
	return &s, nil
}

// LatestDetection most recent month stored for a config hash
func (r *Repository) LatestDetection(ctx context.Context, configHash string) (*StoredDetection, error) {
	query := `SELECT ` + detectionColumns + `
		FROM regime.detections
		WHERE config_hash = $1
		ORDER BY month DESC
		LIMIT 1`

	s, err := scanDetection(r.db.Pool.QueryRow(ctx, query, configHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest detection: %w", err)
	}
	return s, nil
}

// DetectionHistory stored months for a config hash in ascending order.
// limit <= 0 returns everything; otherwise the most recent limit months.
func (r *Repository) DetectionHistory(ctx context.Context, configHash string, limit int) ([]StoredDetection, error) {
	query := `SELECT ` + detectionColumns + ` FROM (
			SELECT * FROM regime.detections
			WHERE config_hash = $1
			ORDER BY month DESC
			LIMIT NULLIF($2, 0)
		) recent
		ORDER BY month ASC`

	if limit < 0 {
		limit = 0
	}
	rows, err := r.db.Pool.Query(ctx, query, configHash, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	out := make([]StoredDetection, 0)
	for rows.Next() {
		s, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// StoredRun one persisted backtest run (months not included)
type StoredRun struct {
	RunID          string             `json:"run_id"`
	ConfigHash     string             `json:"config_hash"`
	DataSnapshotID string             `json:"data_snapshot_id"`
	Params         backtest.RunParams `json:"params"`
	Summary        backtest.Summary   `json:"summary"`
	CreatedAt      time.Time          `json:"created_at"`
}

// SaveBacktestRun stores the run and its monthly records in one transaction
func (r *Repository) SaveBacktestRun(ctx context.Context, snap regimeconfig.Snapshot, res *backtest.Result) error {
	paramsJSON, err := json.Marshal(res.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	summaryJSON, err := json.Marshal(res.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	transitionsJSON, err := json.Marshal(res.Transitions)
	if err != nil {
		return fmt.Errorf("failed to marshal transitions: %w", err)
	}

	rows := make([][]interface{}, 0, len(res.Records))
	for _, m := range res.Records {
		weightsJSON, err := json.Marshal(m.Weights)
		if err != nil {
			return fmt.Errorf("failed to marshal weights: %w", err)
		}
		rows = append(rows, []interface{}{
			res.RunID, m.Date, string(m.Regime), m.Confidence, m.PortfolioReturn,
			m.PortfolioValue, m.Drawdown, m.Rebalanced, string(weightsJSON),
		})
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO regime.backtest_runs (
				run_id, config_hash, data_snapshot_id, start_month, end_month, rebalance,
				total_return, annualized_return, max_drawdown, sharpe,
				params, summary, transitions
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			res.RunID, snap.ConfigHash, snap.DataSnapshotID, res.Params.Start, res.Params.End,
			string(res.Params.Rebalance), res.Summary.TotalReturn, res.Summary.AnnualizedReturn,
			res.Summary.MaxDrawdown, res.Summary.Sharpe, paramsJSON, summaryJSON, transitionsJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert backtest run: %w", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"regime", "backtest_months"},
			[]string{"run_id", "month", "regime", "confidence", "portfolio_return",
				"portfolio_value", "drawdown", "rebalanced", "weights"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy backtest months: %w", err)
		}
		return nil
	})
}

// GetBacktestRun loads one run by id
func (r *Repository) GetBacktestRun(ctx context.Context, runID string) (*StoredRun, error) {
	query := `
		SELECT run_id, config_hash, data_snapshot_id, params, summary, created_at
		FROM regime.backtest_runs
		WHERE run_id = $1`

	var (
		s                       StoredRun
		paramsJSON, summaryJSON []byte
	)
	err := r.db.Pool.QueryRow(ctx, query, runID).Scan(
		&s.RunID, &s.ConfigHash, &s.DataSnapshotID, &paramsJSON, &summaryJSON, &s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest run: %w", err)
	}
	if err := json.Unmarshal(paramsJSON, &s.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	if err := json.Unmarshal(summaryJSON, &s.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &s, nil
}

// BacktestMonthReturns stored monthly portfolio returns of a run, in order
func (r *Repository) BacktestMonthReturns(ctx context.Context, runID string) ([]float64, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT portfolio_return
		FROM regime.backtest_months
		WHERE run_id = $1
		ORDER BY month ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest months: %w", err)
	}
	defer rows.Close()

	returns := make([]float64, 0)
	for rows.Next() {
		var ret float64
		if err := rows.Scan(&ret); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return returns, nil
}

// SaveRiskReport upserts a risk report keyed by its run id
func (r *Repository) SaveRiskReport(ctx context.Context, report *RiskReport) error {
	reportJSON, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal risk report: %w", err)
	}

	var var95, cvar95 *float64
	if report.Portfolio != nil {
		var95, cvar95 = &report.Portfolio.VaR95, &report.Portfolio.CVaR95
	}
	var passed *bool
	if report.Limits != nil {
		passed = &report.Limits.Passed
	}

	query := `
		INSERT INTO regime.risk_reports (run_id, var_95, cvar_95, passed, report)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			var_95 = EXCLUDED.var_95,
			cvar_95 = EXCLUDED.cvar_95,
			passed = EXCLUDED.passed,
			report = EXCLUDED.report,
			created_at = now()
	`
	if _, err := r.db.Pool.Exec(ctx, query, report.RunID, var95, cvar95, passed, reportJSON); err != nil {
		return fmt.Errorf("failed to save risk report: %w", err)
	}
	return nil
}
