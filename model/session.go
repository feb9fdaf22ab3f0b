package model

import (
	"time"

	"gorm.io/datatypes"
)

// SessionResult is the outcome of one finished run.
type SessionResult struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string         `gorm:"uniqueIndex;size:36;not null" json:"session_id"`
	PlayerName string         `gorm:"index:idx_result_player;size:32" json:"player_name"`
	Outcome    string         `gorm:"index:idx_result_outcome;size:16;not null" json:"outcome"`
	Difficulty string         `gorm:"size:8" json:"difficulty"`
	Score      int            `json:"score"`
	Total      int            `json:"total"`
	Lives      int            `json:"lives"`
	ElapsedMs  int64          `gorm:"index:idx_result_elapsed" json:"elapsed_ms"`
	Summary    datatypes.JSON `json:"summary"`
	FinishedAt time.Time      `gorm:"index:idx_result_finished" json:"finished_at"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// SessionEvent is one journaled gameplay event. Tick events are not
// journaled.
type SessionEvent struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"index:idx_event_session;size:36;not null" json:"session_id"`
	Type      string         `gorm:"size:32;not null" json:"type"`
	Payload   datatypes.JSON `json:"payload"`
	At        time.Time      `gorm:"index:idx_event_at" json:"at"`
	CreatedAt time.Time      `gorm:"autoCreateTime:milli" json:"created_at"`
}
