package models

import "time"

// NarrativeContext is the structured input handed to a summarizer.
type NarrativeContext struct {
	Observation Observation        `json:"observation"`
	Statistics  StatisticsSnapshot `json:"statistics"`
	Trend       TrendSignal        `json:"trend"`
}

type NarrativeSummary struct {
	Timestamp        time.Time `json:"timestamp"`
	MarketAnalysis   string    `json:"market_analysis"`
	TrendPrediction  string    `json:"trend_prediction"`
	InvestmentAdvice string    `json:"investment_advice"`
	RiskWarning      string    `json:"risk_warning"`
	SourceModel      string    `json:"source_model"`
	Confidence       float64   `json:"confidence"`
	Fallback         bool      `json:"fallback"`
}
