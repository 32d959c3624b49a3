// Package events provides in-process event publishing for pipeline activity.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	ErrorOccurred     EventType = "ERROR_OCCURRED"
	OutcomeReceived   EventType = "OUTCOME_RECEIVED"
	HistoryRefreshed  EventType = "HISTORY_REFRESHED"
	PredictionMade    EventType = "PREDICTION_MADE"
	PredictionScored  EventType = "PREDICTION_SCORED"
	BacktestCompleted EventType = "BACKTEST_COMPLETED"
	FeedStatusChanged EventType = "FEED_STATUS_CHANGED"
	StatsSaved        EventType = "STATS_SAVED"
	BackupCompleted   EventType = "BACKUP_COMPLETED"
)

// AllTypes lists every event type, for subscribers that want everything
var AllTypes = []EventType{
	ErrorOccurred,
	OutcomeReceived,
	HistoryRefreshed,
	PredictionMade,
	PredictionScored,
	BacktestCompleted,
	FeedStatusChanged,
	StatsSaved,
	BackupCompleted,
}

// Event represents a system event
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Module    string                 `json:"module"`
}
