// Package journal persists session events and results asynchronously.
package journal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/session"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/model"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/plugin/hook"
)

// Config tunes batching.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	return c
}

// Service writes journal records in batches from a background worker.
type Service struct {
	db      *gorm.DB
	cfg     Config
	events  chan *model.SessionEvent
	results chan *model.SessionResult
	stopCh  chan struct{}
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates a Service and starts its worker.
func New(db *gorm.DB, cfg Config, logger *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	svc := &Service{
		db:      db,
		cfg:     cfg,
		events:  make(chan *model.SessionEvent, cfg.QueueSize),
		results: make(chan *model.SessionResult, cfg.QueueSize),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Register subscribes the service to session hooks. Tick events are
// skipped.
func (svc *Service) Register(hooks *hook.Center) {
	hooks.Register(hook.OnSessionEvent, 100, "journal", func(_ context.Context, _ string, data any) (any, error) {
		if env, ok := data.(world.Envelope); ok && env.Type != session.TypeTick {
			svc.RecordEvent(env)
		}
		return data, nil
	})
	hooks.Register(hook.OnSessionFinished, 100, "journal", func(_ context.Context, _ string, data any) (any, error) {
		if res, ok := data.(world.Result); ok {
			svc.RecordResult(res, nil)
		}
		return data, nil
	})
}

// RecordEvent enqueues one event.
func (svc *Service) RecordEvent(env world.Envelope) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		svc.logger.Warn("journal event not encodable, dropping entry",
			zap.String("session_id", env.SessionID), zap.String("type", env.Type), zap.Error(err))
		return
	}
	rec := &model.SessionEvent{
		SessionID: env.SessionID,
		Type:      env.Type,
		Payload:   datatypes.JSON(payload),
		At:        env.At,
	}
	select {
	case svc.events <- rec:
	default:
		svc.logger.Warn("journal event queue full, dropping entry",
			zap.String("session_id", env.SessionID), zap.String("type", env.Type))
	}
}

// RecordResult enqueues the result of a finished session. summary is
// stored as JSON alongside it.
func (svc *Service) RecordResult(res world.Result, summary any) {
	var raw []byte
	if summary != nil {
		var err error
		if raw, err = json.Marshal(summary); err != nil {
			svc.logger.Warn("journal result summary not encodable, dropping result",
				zap.String("session_id", res.SessionID), zap.Error(err))
			return
		}
	}
	rec := &model.SessionResult{
		SessionID:  res.SessionID,
		PlayerName: res.PlayerName,
		Outcome:    string(res.Outcome),
		Difficulty: string(res.Difficulty),
		Score:      res.Score,
		Total:      res.Total,
		Lives:      res.Lives,
		ElapsedMs:  res.ElapsedMs,
		Summary:    datatypes.JSON(raw),
		FinishedAt: res.FinishedAt,
	}
	select {
	case svc.results <- rec:
	default:
		svc.logger.Warn("journal result queue full, dropping entry",
			zap.String("session_id", res.SessionID))
	}
}

// Stop flushes queued records and shuts the worker down. It blocks until
// the worker has finished.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.cfg.FlushInterval)
	defer ticker.Stop()

	events := make([]*model.SessionEvent, 0, svc.cfg.BatchSize)
	results := make([]*model.SessionResult, 0, svc.cfg.BatchSize)

	flush := func() {
		if len(events) > 0 {
			if err := svc.db.Create(&events).Error; err != nil {
				svc.logger.Error("journal event batch write failed", zap.Error(err), zap.Int("n", len(events)))
			}
			events = events[:0]
		}
		if len(results) > 0 {
			// a restarted session may finish twice under the same id
			err := svc.db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}},
				UpdateAll: true,
			}).Create(&results).Error
			if err != nil {
				svc.logger.Error("journal result batch write failed", zap.Error(err), zap.Int("n", len(results)))
			}
			results = results[:0]
		}
	}

	for {
		select {
		case rec := <-svc.events:
			events = append(events, rec)
			if len(events) >= svc.cfg.BatchSize {
				flush()
			}
		case rec := <-svc.results:
			results = append(results, rec)
			if len(results) >= svc.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case rec := <-svc.events:
					events = append(events, rec)
				case rec := <-svc.results:
					results = append(results, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}
