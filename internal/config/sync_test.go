package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultSyncTuning(t *testing.T) {
	cfg := DefaultSyncTuning()

	require.Equal(t, 500, cfg.MaxCandidates)
	require.Equal(t, 24*time.Hour, cfg.RecencyWindow)
	require.Equal(t, 50, cfg.BatchSize)
	require.Equal(t, 500, cfg.MegaBatchSize)
	require.Equal(t, 5, cfg.BatchConcurrency)
	require.Equal(t, 10*time.Minute, cfg.LockTTL)
	require.Equal(t, 5*time.Minute, cfg.DedupWindow)
	require.Equal(t, 5*time.Minute, cfg.RunTimeoutFloor)
	require.Equal(t, time.Second, cfg.RunTimeoutPerItem)
}

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	cfg := SyncTuning{BatchSize: 10}.withDefaults()

	require.Equal(t, 10, cfg.BatchSize)
	require.Equal(t, 500, cfg.MaxCandidates)
	require.Equal(t, 2, cfg.WorkerCount)
	require.Equal(t, 90*24*time.Hour, cfg.HistoryRetention)
}

func TestValidateSyncTuning(t *testing.T) {
	valid := DefaultSyncTuning()
	require.NoError(t, validateSyncTuning(valid))

	bad := valid
	bad.BatchSize = bad.MegaBatchSize + 1
	require.Error(t, validateSyncTuning(bad))

	bad = valid
	bad.BatchConcurrency = bad.BatchSize + 1
	require.Error(t, validateSyncTuning(bad))
}

func TestStaticHolderAppliesDefaults(t *testing.T) {
	holder := NewStaticSyncTuningHolder(SyncTuning{WorkerCount: 4})
	cfg := holder.Get()

	require.Equal(t, 4, cfg.WorkerCount)
	require.Equal(t, 500, cfg.MaxCandidates)
}
