package models

import "time"

// HistoryRequest binds GET /history.
type HistoryRequest struct {
	Days int `query:"days" default:"30" validate:"gte=1,lte=365"`
}

// CollectRequest binds POST /collect. The body is optional.
type CollectRequest struct {
	Reason string `json:"reason" query:"reason" default:"manual" validate:"max=64"`
}

// TriggerMessage is the payload on the Kafka trigger topic.
type TriggerMessage struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// HistorySeries is the column-oriented history the charting frontend expects.
type HistorySeries struct {
	Timestamps     []time.Time `json:"timestamps"`
	GoldPrices     []float64   `json:"gold_prices"`
	SilverPrices   []float64   `json:"silver_prices"`
	PlatinumPrices []*float64  `json:"platinum_prices"`
	Count          int         `json:"count"`
}

// LatestView bundles the newest stored entity of each kind. Missing kinds are nil.
type LatestView struct {
	Observation *Observation        `json:"observation"`
	Statistics  *StatisticsSnapshot `json:"statistics"`
	Narrative   *NarrativeSummary   `json:"narrative"`
}

type HealthStatus struct {
	Status           string    `json:"status"`
	SchedulerRunning bool      `json:"scheduler_running"`
	Store            string    `json:"store"`
	LastRunAt        time.Time `json:"last_run_at,omitempty"`
	LastRunSuccess   bool      `json:"last_run_success"`
}
