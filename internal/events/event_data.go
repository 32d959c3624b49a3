package events

import (
	"encoding/json"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// OutcomeReceivedData contains data for OutcomeReceived events
type OutcomeReceivedData struct {
	Game   string `json:"game"`
	Source string `json:"source"`
	Color  string `json:"color,omitempty"`
	Number int    `json:"number,omitempty"`
	Mines  []int  `json:"mines,omitempty"`
}

// EventType returns the event type for OutcomeReceivedData
func (d *OutcomeReceivedData) EventType() EventType {
	return OutcomeReceived
}

// HistoryRefreshedData contains data for HistoryRefreshed events
type HistoryRefreshedData struct {
	Game  string `json:"game"`
	Mode  string `json:"mode"`
	Added int    `json:"added"`
	Size  int    `json:"size"`
}

// EventType returns the event type for HistoryRefreshedData
func (d *HistoryRefreshedData) EventType() EventType {
	return HistoryRefreshed
}

// PredictionMadeData contains data for PredictionMade events
type PredictionMadeData struct {
	Game          string  `json:"game"`
	Candidate     string  `json:"candidate"`
	Rule          string  `json:"rule,omitempty"`
	Confidence    float64 `json:"confidence"`
	RawConfidence float64 `json:"raw_confidence"`
	Simulated     bool    `json:"simulated"`
}

// EventType returns the event type for PredictionMadeData
func (d *PredictionMadeData) EventType() EventType {
	return PredictionMade
}

// PredictionScoredData contains data for PredictionScored events
type PredictionScoredData struct {
	Game    string  `json:"game"`
	Result  string  `json:"result"`
	WinRate float64 `json:"win_rate"`
}

// EventType returns the event type for PredictionScoredData
func (d *PredictionScoredData) EventType() EventType {
	return PredictionScored
}

// BacktestCompletedData contains data for BacktestCompleted events
type BacktestCompletedData struct {
	Game       string  `json:"game"`
	Trials     int     `json:"trials"`
	WinRate    float64 `json:"win_rate"`
	RawWinRate float64 `json:"raw_win_rate"`
	Clamped    bool    `json:"clamped"`
}

// EventType returns the event type for BacktestCompletedData
func (d *BacktestCompletedData) EventType() EventType {
	return BacktestCompleted
}

// FeedStatusData contains data for FeedStatusChanged events
type FeedStatusData struct {
	Game      string `json:"game"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// EventType returns the event type for FeedStatusData
func (d *FeedStatusData) EventType() EventType {
	return FeedStatusChanged
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ToMap converts typed event data to the generic map carried by Event
func ToMap(data EventData) map[string]interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
