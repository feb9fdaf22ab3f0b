// Package ranking keeps the fastest victories per difficulty and the most
// recent results.
package ranking

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/cache"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/session"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/world"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/model"
	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/plugin/hook"
)

const (
	fastestKeyPrefix = "ranking:fastest:"
	resultKeyPrefix  = "ranking:result:"
	recentKey        = "ranking:recent"
	resultTTL        = 30 * 24 * time.Hour

	// MaxLimit caps every listing.
	MaxLimit = 100
)

// Entry is one row of a leaderboard.
type Entry struct {
	Rank       int       `json:"rank"`
	SessionID  string    `json:"session_id"`
	PlayerName string    `json:"player_name"`
	Outcome    string    `json:"outcome"`
	Difficulty string    `json:"difficulty"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

func entryFromResult(r world.Result) Entry {
	return Entry{
		SessionID:  r.SessionID,
		PlayerName: r.PlayerName,
		Outcome:    string(r.Outcome),
		Difficulty: string(r.Difficulty),
		Score:      r.Score,
		Total:      r.Total,
		ElapsedMs:  r.ElapsedMs,
		FinishedAt: r.FinishedAt,
	}
}

func entryFromModel(m model.SessionResult) Entry {
	return Entry{
		SessionID:  m.SessionID,
		PlayerName: m.PlayerName,
		Outcome:    m.Outcome,
		Difficulty: m.Difficulty,
		Score:      m.Score,
		Total:      m.Total,
		ElapsedMs:  m.ElapsedMs,
		FinishedAt: m.FinishedAt,
	}
}

// Board serves leaderboards from the cache and falls back to the database
// when the cache is cold.
type Board struct {
	db     *gorm.DB
	cache  cache.Cache
	recent int
	logger *zap.Logger
}

// NewBoard creates a Board keeping recent results in a list capped at
// recent entries.
func NewBoard(db *gorm.DB, c cache.Cache, recent int, logger *zap.Logger) *Board {
	if recent <= 0 {
		recent = 50
	}
	return &Board{db: db, cache: c, recent: recent, logger: logger}
}

// Register subscribes the board to finished sessions.
func (b *Board) Register(hooks *hook.Center) {
	hooks.Register(hook.OnSessionFinished, 10, "ranking", func(ctx context.Context, _ string, data any) (any, error) {
		if res, ok := data.(world.Result); ok {
			if err := b.Record(ctx, res); err != nil {
				return data, err
			}
		}
		return data, nil
	})
}

// Record adds a finished session. Only victories enter the fastest board;
// every outcome enters the recent list.
func (b *Board) Record(ctx context.Context, res world.Result) error {
	raw, err := json.Marshal(entryFromResult(res))
	if err != nil {
		return err
	}
	if err := b.cache.Set(ctx, resultKeyPrefix+res.SessionID, string(raw), resultTTL); err != nil {
		return err
	}
	if res.Outcome == session.OutcomeVictory {
		// a restarted session keeps its best time
		key := fastestKeyPrefix + string(res.Difficulty)
		best, err := b.cache.ZScore(ctx, key, res.SessionID)
		switch {
		case err == nil && best <= float64(res.ElapsedMs):
		case err == nil || cache.IsNotFound(err):
			if err := b.cache.ZAdd(ctx, key, float64(res.ElapsedMs), res.SessionID); err != nil {
				return err
			}
		default:
			return err
		}
	}
	if err := b.cache.LPush(ctx, recentKey, string(raw)); err != nil {
		return err
	}
	return b.cache.LTrim(ctx, recentKey, 0, int64(b.recent-1))
}

// Fastest returns the quickest victories at difficulty, best first.
func (b *Board) Fastest(ctx context.Context, difficulty session.Difficulty, limit int) ([]Entry, error) {
	limit = clamp(limit)
	members, err := b.cache.ZRange(ctx, fastestKeyPrefix+string(difficulty), 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		entries := make([]Entry, 0, len(members))
		for _, m := range members {
			e, ok := b.lookup(ctx, m.Member)
			if !ok {
				e = Entry{SessionID: m.Member, Outcome: string(session.OutcomeVictory), Difficulty: string(difficulty)}
			}
			e.ElapsedMs = int64(m.Score)
			e.Rank = len(entries) + 1
			entries = append(entries, e)
		}
		return entries, nil
	}
	if err != nil {
		b.logger.Warn("ranking cache read failed, using database", zap.Error(err))
	}

	var rows []model.SessionResult
	if err := b.db.WithContext(ctx).
		Where("outcome = ? AND difficulty = ?", string(session.OutcomeVictory), string(difficulty)).
		Order("elapsed_ms ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = entryFromModel(r)
		entries[i].Rank = i + 1
		// warm the cache
		if err := b.cache.ZAdd(ctx, fastestKeyPrefix+string(difficulty), float64(r.ElapsedMs), r.SessionID); err != nil {
			b.logger.Warn("ranking cache warm-up failed",
				zap.String("session_id", r.SessionID), zap.Error(err))
		}
	}
	return entries, nil
}

func (b *Board) lookup(ctx context.Context, sessionID string) (Entry, bool) {
	raw, err := b.cache.Get(ctx, resultKeyPrefix+sessionID)
	if err == nil {
		var e Entry
		if json.Unmarshal([]byte(raw), &e) == nil {
			return e, true
		}
	}
	var row model.SessionResult
	if err := b.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error; err != nil {
		return Entry{}, false
	}
	return entryFromModel(row), true
}

// Recent returns the latest results, newest first.
func (b *Board) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = clamp(limit)
	items, err := b.cache.LRange(ctx, recentKey, 0, int64(limit-1))
	if err == nil && len(items) > 0 {
		entries := make([]Entry, 0, len(items))
		for _, it := range items {
			var e Entry
			if json.Unmarshal([]byte(it), &e) == nil {
				entries = append(entries, e)
			}
		}
		return entries, nil
	}

	var rows []model.SessionResult
	if err := b.db.WithContext(ctx).Order("finished_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = entryFromModel(r)
	}
	return entries, nil
}

// Rebuild reloads the fastest boards from the database. Called by the
// scheduler and the admin endpoint.
func (b *Board) Rebuild(ctx context.Context) (int, error) {
	n := 0
	for _, d := range []session.Difficulty{session.Easy, session.Normal, session.Hard} {
		var rows []model.SessionResult
		if err := b.db.WithContext(ctx).
			Where("outcome = ? AND difficulty = ?", string(session.OutcomeVictory), string(d)).
			Order("elapsed_ms ASC").
			Limit(MaxLimit).
			Find(&rows).Error; err != nil {
			return n, err
		}
		if err := b.cache.Del(ctx, fastestKeyPrefix+string(d)); err != nil {
			return n, err
		}
		for _, r := range rows {
			if err := b.cache.ZAdd(ctx, fastestKeyPrefix+string(d), float64(r.ElapsedMs), r.SessionID); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func clamp(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
