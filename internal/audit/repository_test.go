package audit

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/regimelab/backend/internal/macro"
	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/internal/regimeconfig"
	"github.com/wonny/regimelab/backend/pkg/config"
	"github.com/wonny/regimelab/backend/pkg/database"
)

func integrationRepo(t *testing.T) *Repository {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	db, err := database.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := NewRepository(db)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestDataSnapshotID(t *testing.T) {
	records := []macro.Record{{Date: "2020-01", RepoRate: macro.Float(4)}, {Date: "2020-02"}}

	id, err := DataSnapshotID(records)
	require.NoError(t, err)
	assert.Regexp(t, `^macro-2020-01-2020-02-[0-9a-f]{12}$`, id)

	again, _ := DataSnapshotID(records)
	assert.Equal(t, id, again)

	records[1].RepoRate = macro.Float(5)
	changed, _ := DataSnapshotID(records)
	assert.NotEqual(t, id, changed)

	_, err = DataSnapshotID(nil)
	assert.ErrorIs(t, err, macro.ErrNoData)
}

func TestRepositoryDetectionsRoundTrip(t *testing.T) {
	repo := integrationRepo(t)
	ctx := context.Background()

	snap := regimeconfig.Snapshot{ConfigHash: "test-" + uuid.NewString(), DataSnapshotID: "macro-test"}
	t.Cleanup(func() {
		_, _ = repo.db.Pool.Exec(context.Background(), `DELETE FROM regime.detections WHERE config_hash = $1`, snap.ConfigHash)
	})

	history := regime.History{
		{Date: "2020-01", Dominant: regime.RegimeA, NaturalLeader: regime.RegimeA, Confidence: 0.6,
			Probabilities: map[regime.ID]float64{regime.RegimeA: 0.6, regime.RegimeB: 0.2, regime.RegimeC: 0.1, regime.RegimeD: 0.1}},
		{Date: "2020-02", Dominant: regime.RegimeD, NaturalLeader: regime.RegimeD, Confidence: 0.5,
			Probabilities: map[regime.ID]float64{regime.RegimeA: 0.2, regime.RegimeB: 0.1, regime.RegimeC: 0.2, regime.RegimeD: 0.5}},
	}
	require.NoError(t, repo.SaveDetections(ctx, snap, history))
	// idempotent upsert
	require.NoError(t, repo.SaveDetections(ctx, snap, history))

	latest, err := repo.LatestDetection(ctx, snap.ConfigHash)
	require.NoError(t, err)
	assert.Equal(t, "2020-02", latest.Month)
	assert.Equal(t, regime.RegimeD, latest.Detection.Dominant)

	all, err := repo.DetectionHistory(ctx, snap.ConfigHash, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2020-01", all[0].Month)

	recent, err := repo.DetectionHistory(ctx, snap.ConfigHash, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "2020-02", recent[0].Month)

	_, err = repo.LatestDetection(ctx, "missing-"+uuid.NewString())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRepositoryBacktestRunRoundTrip(t *testing.T) {
	repo := integrationRepo(t)
	ctx := context.Background()

	res := twoRegimeResult()
	res.RunID = uuid.NewString()
	t.Cleanup(func() {
		_, _ = repo.db.Pool.Exec(context.Background(), `DELETE FROM regime.backtest_runs WHERE run_id = $1`, res.RunID)
		_, _ = repo.db.Pool.Exec(context.Background(), `DELETE FROM regime.risk_reports WHERE run_id = $1`, res.RunID)
	})

	snap := regimeconfig.Snapshot{ConfigHash: "test-hash", DataSnapshotID: "macro-test"}
	require.NoError(t, repo.SaveBacktestRun(ctx, snap, res))

	stored, err := repo.GetBacktestRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "test-hash", stored.ConfigHash)
	assert.Equal(t, res.Params.Start, stored.Params.Start)
	assert.InDelta(t, res.Summary.TotalReturn, stored.Summary.TotalReturn, 1e-12)

	returns, err := repo.BacktestMonthReturns(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.10, -0.05}, returns)

	report := &RiskReport{RunID: res.RunID, Portfolio: &PortfolioRiskSummary{VaR95: 0.04}}
	require.NoError(t, repo.SaveRiskReport(ctx, report))

	_, err = repo.GetBacktestRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
