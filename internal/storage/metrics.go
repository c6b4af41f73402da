package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MetricsRepo runs the read-only aggregate queries behind the goal
// dashboard. All date parameters are YYYY-MM-DD strings.
type MetricsRepo struct {
	db DBTX
}

// NewMetricsRepo creates a new MetricsRepo.
func NewMetricsRepo(db DBTX) *MetricsRepo {
	return &MetricsRepo{db: db}
}

// AvgSteps7d returns the average daily step count over the 7 days ending at
// the given date, counting only days with an activity observation.
func (r *MetricsRepo) AvgSteps7d(ctx context.Context, today string) (float64, error) {
	return r.avg7d(ctx, ObservationActivity, "steps", today)
}

// AvgSleepMinutes7d returns the average sleep minutes over the 7 days ending
// at the given date.
func (r *MetricsRepo) AvgSleepMinutes7d(ctx context.Context, today string) (float64, error) {
	return r.avg7d(ctx, ObservationSleep, "minutes", today)
}

func (r *MetricsRepo) avg7d(ctx context.Context, kind, column, today string) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT AVG(%s) FROM observations
		 WHERE is_current = 1 AND kind = ? AND date >= date(?, '-6 days') AND date <= ?`, column),
		kind, today, today,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to compute 7-day %s average: %w", kind, err)
	}
	return avg.Float64, nil
}

// LoggingCompleteness7d returns the fraction of the last 7 days with at
// least one captured entry.
func (r *MetricsRepo) LoggingCompleteness7d(ctx context.Context, today string) (float64, error) {
	var days int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT substr(created_at, 1, 10)) FROM entries_index
		 WHERE substr(created_at, 1, 10) >= date(?, '-6 days') AND substr(created_at, 1, 10) <= ?`,
		today, today,
	).Scan(&days)
	if err != nil {
		return 0, fmt.Errorf("failed to compute logging completeness: %w", err)
	}
	return float64(days) / 7.0, nil
}

// StepStreak counts consecutive days with an activity observation, walking
// backward from the most recent observation date.
func (r *MetricsRepo) StepStreak(ctx context.Context) (int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT date FROM observations
		 WHERE is_current = 1 AND kind = ? AND date != ''
		 ORDER BY date DESC`,
		ObservationActivity,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to query activity dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return 0, fmt.Errorf("failed to scan activity date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(dates) == 0 {
		return 0, nil
	}

	streak := 1
	prev, err := time.Parse("2006-01-02", dates[0])
	if err != nil {
		return 0, fmt.Errorf("failed to parse activity date %q: %w", dates[0], err)
	}
	for _, d := range dates[1:] {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			return 0, fmt.Errorf("failed to parse activity date %q: %w", d, err)
		}
		if prev.Sub(day) != 24*time.Hour {
			break
		}
		streak++
		prev = day
	}
	return streak, nil
}

// WeightDelta30d returns the weight change between the oldest and newest
// weight observations in the 30 days ending at the given date. The bool
// result is false when fewer than two observations exist in the window.
func (r *MetricsRepo) WeightDelta30d(ctx context.Context, today string) (float64, bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT weight_kg FROM observations
		 WHERE is_current = 1 AND kind = ? AND date >= date(?, '-29 days') AND date <= ?
		 ORDER BY date`,
		ObservationWeight, today, today,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query weight observations: %w", err)
	}
	defer rows.Close()

	var weights []float64
	for rows.Next() {
		var w float64
		if err := rows.Scan(&w); err != nil {
			return 0, false, fmt.Errorf("failed to scan weight: %w", err)
		}
		weights = append(weights, w)
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	if len(weights) < 2 {
		return 0, false, nil
	}
	return weights[len(weights)-1] - weights[0], true, nil
}

// OpenTaskCounts returns the number of open and done current tasks.
func (r *MetricsRepo) OpenTaskCounts(ctx context.Context) (open, done int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0)
		 FROM tasks WHERE is_current = 1`,
	).Scan(&open, &done)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return open, done, nil
}
