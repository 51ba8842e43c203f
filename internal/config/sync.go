package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SyncTuning holds the operator-adjustable knobs of the price sync pipeline.
// It lives in its own file (sync.yml) so ops can retune batch pressure
// without a redeploy.
type SyncTuning struct {
	MaxCandidates     int           `mapstructure:"maxCandidates"`
	RecencyWindow     time.Duration `mapstructure:"recencyWindow"`
	BatchSize         int           `mapstructure:"batchSize"`
	MegaBatchSize     int           `mapstructure:"megaBatchSize"`
	BatchConcurrency  int           `mapstructure:"batchConcurrency"`
	PerItemDelay      time.Duration `mapstructure:"perItemDelay"`
	MegaBatchDelay    time.Duration `mapstructure:"megaBatchDelay"`
	FileTimeout       time.Duration `mapstructure:"fileTimeout"`
	LockTTL           time.Duration `mapstructure:"lockTTL"`
	DedupWindow       time.Duration `mapstructure:"dedupWindow"`
	HistoryRetention  time.Duration `mapstructure:"historyRetention"`
	WorkerCount       int           `mapstructure:"workerCount"`
	EventQueueSize    int           `mapstructure:"eventQueueSize"`
	RunTimeoutFloor   time.Duration `mapstructure:"runTimeoutFloor"`
	RunTimeoutPerItem time.Duration `mapstructure:"runTimeoutPerItem"`
}

func DefaultSyncTuning() SyncTuning {
	return SyncTuning{
		MaxCandidates:     500,
		RecencyWindow:     24 * time.Hour,
		BatchSize:         50,
		MegaBatchSize:     500,
		BatchConcurrency:  5,
		PerItemDelay:      100 * time.Millisecond,
		MegaBatchDelay:    10 * time.Second,
		FileTimeout:       40 * time.Second,
		LockTTL:           10 * time.Minute,
		DedupWindow:       5 * time.Minute,
		HistoryRetention:  90 * 24 * time.Hour,
		WorkerCount:       2,
		EventQueueSize:    64,
		RunTimeoutFloor:   5 * time.Minute,
		RunTimeoutPerItem: time.Second,
	}
}

// SyncTuningHolder hot-reloads sync.yml and hands out the current snapshot.
type SyncTuningHolder struct {
	current atomic.Value // holds SyncTuning
}

func NewSyncTuningHolder() (*SyncTuningHolder, error) {
	v := viper.New()

	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/cruisesync/config")
	v.AddConfigPath("/etc/cruisesync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CRUISESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSyncTuning()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := defaults
	if err := v.UnmarshalKey("sync", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validateSyncTuning(cfg); err != nil {
		return nil, err
	}

	holder := &SyncTuningHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultSyncTuning()
		if err := v.UnmarshalKey("sync", &updated); err != nil {
			log.Printf("[sync-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validateSyncTuning(updated); err != nil {
			log.Printf("[sync-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[sync-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SyncTuningHolder) Get() SyncTuning {
	return h.current.Load().(SyncTuning)
}

// NewStaticSyncTuningHolder wraps a fixed tuning, for tests.
func NewStaticSyncTuningHolder(cfg SyncTuning) *SyncTuningHolder {
	holder := &SyncTuningHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func (c SyncTuning) withDefaults() SyncTuning {
	d := DefaultSyncTuning()
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = d.RecencyWindow
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MegaBatchSize <= 0 {
		c.MegaBatchSize = d.MegaBatchSize
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = d.BatchConcurrency
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = d.FileTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = d.DedupWindow
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = d.HistoryRetention
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = d.EventQueueSize
	}
	if c.RunTimeoutFloor <= 0 {
		c.RunTimeoutFloor = d.RunTimeoutFloor
	}
	if c.RunTimeoutPerItem <= 0 {
		c.RunTimeoutPerItem = d.RunTimeoutPerItem
	}
	return c
}

func validateSyncTuning(cfg SyncTuning) error {
	if cfg.BatchSize > cfg.MegaBatchSize {
		return errors.New("sync.batchSize cannot exceed sync.megaBatchSize")
	}
	if cfg.BatchConcurrency > cfg.BatchSize {
		return errors.New("sync.batchConcurrency cannot exceed sync.batchSize")
	}
	return nil
}
