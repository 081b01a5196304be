// Package maintenance runs the background housekeeping jobs: periodic WAL
// checkpoints across every store file and connection-pool stat sampling for
// the metrics endpoint.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/database"
	"github.com/watzon/syncstore/internal/metrics"
)

// Target is one store file under maintenance.
type Target struct {
	Name string
	DB   *database.DB
}

// Scheduler owns the cron runner. Jobs are registered at construction and
// run until Stop.
type Scheduler struct {
	cron    *cron.Cron
	targets []Target
}

// New builds a scheduler over the given store files. A nil return means
// maintenance is disabled in config.
func New(cfg *config.MaintenanceConfig, targets []Target) (*Scheduler, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	c := cron.New()
	s := &Scheduler{cron: c, targets: targets}

	if cfg.CheckpointSchedule != "" {
		if _, err := c.AddFunc(cfg.CheckpointSchedule, s.checkpointAll); err != nil {
			return nil, err
		}
	}
	if cfg.StatsSchedule != "" {
		if _, err := c.AddFunc(cfg.StatsSchedule, s.sampleStats); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("targets", len(s.targets)).Msg("Maintenance scheduler started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Maintenance jobs did not finish before shutdown timeout")
	}
}

func (s *Scheduler) checkpointAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, t := range s.targets {
		if err := t.DB.Checkpoint(ctx); err != nil {
			log.Error().Err(err).Str("store", t.Name).Msg("WAL checkpoint failed")
		}
	}
}

func (s *Scheduler) sampleStats() {
	for _, t := range s.targets {
		stats := t.DB.Stats()
		metrics.RecordPoolStats(t.Name, metrics.PoolStats{
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			WaitDuration:    stats.WaitDuration,
		})
	}
}
