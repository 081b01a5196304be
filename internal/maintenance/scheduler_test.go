package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/database"
)

func TestDisabledSchedulerIsNil(t *testing.T) {
	s, err := New(&config.MaintenanceConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSchedulerRejectsBadSpecs(t *testing.T) {
	_, err := New(&config.MaintenanceConfig{
		Enabled:            true,
		CheckpointSchedule: "not a cron spec",
	}, nil)
	require.Error(t, err)
}

func TestSchedulerRunsJobs(t *testing.T) {
	db, err := database.Open(database.MemoryPath, &config.DatabaseConfig{
		BusyTimeout:  time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	defer db.Close()

	s, err := New(&config.MaintenanceConfig{
		Enabled:            true,
		CheckpointSchedule: "@every 1h",
		StatsSchedule:      "@every 1h",
	}, []Target{{Name: "test", DB: db}})
	require.NoError(t, err)
	require.NotNil(t, s)

	// Drive the jobs directly; the cron wiring is robfig's concern.
	s.checkpointAll()
	s.sampleStats()

	s.Start()
	s.Stop()
}
