package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MetalPulse/internal/domain/models"
	pkgch "MetalPulse/pkg/clickhouse"
	applogger "MetalPulse/pkg/logger"
)

// Schema returns the append-only tables for database db.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.observations (
            ts             DateTime64(3, 'UTC'),
            gold_price     Float64,
            silver_price   Float64,
            platinum_price Nullable(Float64),
            source         LowCardinality(String)
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY ts`, db),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.statistics_snapshots (
            ts          DateTime64(3, 'UTC'),
            period      String,
            per_metal   String,
            data_points UInt32
        ) ENGINE = MergeTree
        ORDER BY ts`, db),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.narrative_summaries (
            ts                DateTime64(3, 'UTC'),
            market_analysis   String,
            trend_prediction  String,
            investment_advice String,
            risk_warning      String,
            source_model      LowCardinality(String),
            confidence        Float64,
            fallback          UInt8
        ) ENGINE = MergeTree
        ORDER BY ts`, db),
	}
}

// ClickHouseStore implements repository.Store on MergeTree tables.
type ClickHouseStore struct {
	client *pkgch.Client
	db     *sql.DB
	schema string
	l      *applogger.Logger
}

func NewClickHouseStore(client *pkgch.Client, logger *applogger.Logger) *ClickHouseStore {
	return &ClickHouseStore{client: client, db: client.DB(), schema: client.Database(), l: logger}
}

// Init creates the tables if they do not exist.
func (s *ClickHouseStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, Schema(s.schema))
}

func (s *ClickHouseStore) table(name string) string {
	return s.schema + "." + name
}

func (s *ClickHouseStore) SaveObservation(ctx context.Context, o models.Observation) error {
	var platinum sql.NullFloat64
	if o.PlatinumPrice != nil {
		platinum = sql.NullFloat64{Float64: *o.PlatinumPrice, Valid: true}
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, gold_price, silver_price, platinum_price, source) VALUES (?, ?, ?, ?, ?)", s.table("observations"))
	if _, err := s.db.ExecContext(ctx, q, o.Timestamp.UTC(), o.GoldPrice, o.SilverPrice, platinum, o.Source); err != nil {
		s.l.Error("clickhouse save_observation error", applogger.Error(err))
		return fmt.Errorf("save observation: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) SaveSnapshot(ctx context.Context, snap models.StatisticsSnapshot) error {
	perMetal, err := json.Marshal(snap.PerMetal)
	if err != nil {
		return fmt.Errorf("encode per_metal: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, period, per_metal, data_points) VALUES (?, ?, ?, ?)", s.table("statistics_snapshots"))
	if _, err := s.db.ExecContext(ctx, q, snap.Timestamp.UTC(), snap.Period, string(perMetal), uint32(snap.DataPoints)); err != nil {
		s.l.Error("clickhouse save_snapshot error", applogger.Error(err))
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) SaveNarrative(ctx context.Context, n models.NarrativeSummary) error {
	var fallback uint8
	if n.Fallback {
		fallback = 1
	}
	q := fmt.Sprintf(`INSERT INTO %s (ts, market_analysis, trend_prediction, investment_advice, risk_warning, source_model, confidence, fallback)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table("narrative_summaries"))
	_, err := s.db.ExecContext(ctx, q, n.Timestamp.UTC(), n.MarketAnalysis, n.TrendPrediction, n.InvestmentAdvice,
		n.RiskWarning, n.SourceModel, n.Confidence, fallback)
	if err != nil {
		s.l.Error("clickhouse save_narrative error", applogger.Error(err))
		return fmt.Errorf("save narrative: %w", err)
	}
	return nil
}

const observationColumns = "ts, gold_price, silver_price, platinum_price, source"

func scanObservation(sc interface{ Scan(...any) error }) (models.Observation, error) {
	var (
		o        models.Observation
		platinum sql.NullFloat64
	)
	if err := sc.Scan(&o.Timestamp, &o.GoldPrice, &o.SilverPrice, &platinum, &o.Source); err != nil {
		return models.Observation{}, err
	}
	if platinum.Valid {
		o.PlatinumPrice = models.Float(platinum.Float64)
	}
	return o, nil
}

func (s *ClickHouseStore) QueryWindow(ctx context.Context, start, end time.Time) ([]models.Observation, error) {
	begin := time.Now()
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE ts >= ? AND ts <= ?
        ORDER BY ts ASC`, observationColumns, s.table("observations"))

	rows, err := s.db.QueryContext(ctx, q, start.UTC(), end.UTC())
	if err != nil {
		s.l.Error("clickhouse query_window query error", applogger.Error(err))
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 256)
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			s.l.Error("clickhouse query_window scan error", applogger.Error(err))
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse query_window ok",
		applogger.Time("start", start),
		applogger.Time("end", end),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(begin)),
	)
	return out, nil
}

func (s *ClickHouseStore) LatestObservation(ctx context.Context) (models.Observation, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY ts DESC LIMIT 1", observationColumns, s.table("observations"))
	o, err := scanObservation(s.db.QueryRowContext(ctx, q))
	if err != nil {
		return models.Observation{}, notFound("latest observation", err)
	}
	return o, nil
}

func (s *ClickHouseStore) LatestSnapshot(ctx context.Context) (models.StatisticsSnapshot, error) {
	q := fmt.Sprintf("SELECT ts, period, per_metal, data_points FROM %s ORDER BY ts DESC LIMIT 1", s.table("statistics_snapshots"))

	var (
		snap     models.StatisticsSnapshot
		perMetal string
		points   uint32
	)
	if err := s.db.QueryRowContext(ctx, q).Scan(&snap.Timestamp, &snap.Period, &perMetal, &points); err != nil {
		return models.StatisticsSnapshot{}, notFound("latest snapshot", err)
	}
	if err := json.Unmarshal([]byte(perMetal), &snap.PerMetal); err != nil {
		return models.StatisticsSnapshot{}, fmt.Errorf("decode per_metal: %w", err)
	}
	snap.DataPoints = int(points)
	return snap, nil
}

func (s *ClickHouseStore) LatestNarrative(ctx context.Context) (models.NarrativeSummary, error) {
	q := fmt.Sprintf(`SELECT ts, market_analysis, trend_prediction, investment_advice, risk_warning, source_model, confidence, fallback
        FROM %s ORDER BY ts DESC LIMIT 1`, s.table("narrative_summaries"))

	var (
		n        models.NarrativeSummary
		fallback uint8
	)
	err := s.db.QueryRowContext(ctx, q).Scan(&n.Timestamp, &n.MarketAnalysis, &n.TrendPrediction, &n.InvestmentAdvice,
		&n.RiskWarning, &n.SourceModel, &n.Confidence, &fallback)
	if err != nil {
		return models.NarrativeSummary{}, notFound("latest narrative", err)
	}
	n.Fallback = fallback == 1
	return n, nil
}

func (s *ClickHouseStore) Name() string { return "clickhouse" }

func (s *ClickHouseStore) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *ClickHouseStore) Close() error { return s.client.Close() }

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}
