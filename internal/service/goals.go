package service

import (
	"context"
	"errors"
	"time"

	"lifevault/internal/storage"
	"lifevault/internal/timeutil"
)

// GoalService aggregates goal progress, health metrics and attention
// reminders from the index. Read-only: goals themselves live as vault files
// and are edited there.
type GoalService struct {
	goals        *storage.GoalRepo
	tasks        *storage.TaskRepo
	metrics      *storage.MetricsRepo
	reviews      *storage.ReviewRepo
	conflicts    *storage.ConflictRepo
	improvements *storage.ImprovementRepo
	timezone     string
}

// NewGoalService creates a new GoalService.
func NewGoalService(
	goals *storage.GoalRepo,
	tasks *storage.TaskRepo,
	metrics *storage.MetricsRepo,
	reviews *storage.ReviewRepo,
	conflicts *storage.ConflictRepo,
	improvements *storage.ImprovementRepo,
	timezone string,
) *GoalService {
	return &GoalService{
		goals:        goals,
		tasks:        tasks,
		metrics:      metrics,
		reviews:      reviews,
		conflicts:    conflicts,
		improvements: improvements,
		timezone:     timezone,
	}
}

// List returns indexed goals, optionally filtered by status.
func (s *GoalService) List(ctx context.Context, status string) ([]*storage.GoalRecord, error) {
	return s.goals.List(ctx, status)
}

// Get returns one goal.
func (s *GoalService) Get(ctx context.Context, id string) (*storage.GoalRecord, error) {
	rec, err := s.goals.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// GoalProgress is one goal with its task and entry counts.
type GoalProgress struct {
	Goal          *storage.GoalRecord `json:"goal"`
	OpenTasks     int                 `json:"open_tasks"`
	DoneTasks     int                 `json:"done_tasks"`
	LinkedEntries int                 `json:"linked_entries"`
}

// HealthMetrics is the health slice of the dashboard, derived from
// observations over rolling windows.
type HealthMetrics struct {
	AvgSteps7d            float64  `json:"avg_steps_7d"`
	AvgSleepMinutes7d     float64  `json:"avg_sleep_minutes_7d"`
	LoggingCompleteness7d float64  `json:"logging_completeness_7d"`
	StepStreak            int      `json:"step_streak"`
	WeightDelta30d        *float64 `json:"weight_delta_30d"`
	OpenTasks             int      `json:"open_tasks"`
	DoneTasks             int      `json:"done_tasks"`
}

// Dashboard is the goal dashboard payload.
type Dashboard struct {
	Goals        []*GoalProgress       `json:"goals"`
	Metrics      HealthMetrics         `json:"metrics"`
	LatestReview *storage.ReviewRecord `json:"latest_review"`
}

// Dashboard assembles active goal progress and 7- and 30-day health metrics.
func (s *GoalService) Dashboard(ctx context.Context) (*Dashboard, error) {
	today := timeutil.LocalToday(s.timezone)

	goals, err := s.goals.List(ctx, "active")
	if err != nil {
		return nil, err
	}
	dashboard := &Dashboard{}
	for _, goal := range goals {
		progress := &GoalProgress{Goal: goal}
		tasks, err := s.tasks.ListCurrent(ctx, storage.TaskFilter{GoalID: goal.ID})
		if err != nil {
			return nil, err
		}
		for _, task := range tasks {
			if task.Status == storage.TaskStatusDone {
				progress.DoneTasks++
			} else {
				progress.OpenTasks++
			}
		}
		linked, err := s.goals.LinkedEntryIDs(ctx, goal.ID)
		if err != nil {
			return nil, err
		}
		progress.LinkedEntries = len(linked)
		dashboard.Goals = append(dashboard.Goals, progress)
	}

	if dashboard.Metrics.AvgSteps7d, err = s.metrics.AvgSteps7d(ctx, today); err != nil {
		return nil, err
	}
	if dashboard.Metrics.AvgSleepMinutes7d, err = s.metrics.AvgSleepMinutes7d(ctx, today); err != nil {
		return nil, err
	}
	if dashboard.Metrics.LoggingCompleteness7d, err = s.metrics.LoggingCompleteness7d(ctx, today); err != nil {
		return nil, err
	}
	if dashboard.Metrics.StepStreak, err = s.metrics.StepStreak(ctx); err != nil {
		return nil, err
	}
	delta, ok, err := s.metrics.WeightDelta30d(ctx, today)
	if err != nil {
		return nil, err
	}
	if ok {
		dashboard.Metrics.WeightDelta30d = &delta
	}
	if dashboard.Metrics.OpenTasks, dashboard.Metrics.DoneTasks, err = s.metrics.OpenTaskCounts(ctx); err != nil {
		return nil, err
	}

	review, err := s.reviews.Latest(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	dashboard.LatestReview = review
	return dashboard, nil
}

// Reminders is the attention list: unresolved conflicts, stale improvement
// suggestions and whether the weekly review is due.
type Reminders struct {
	OpenConflicts     []*storage.ConflictRecord    `json:"open_conflicts"`
	StaleImprovements []*storage.ImprovementRecord `json:"stale_improvements"`
	ReviewDue         bool                         `json:"review_due"`
	WeekStart         string                       `json:"week_start"`
}

// Reminders assembles what needs the user's attention. An improvement is
// stale when it is open and has not been surfaced for a week.
func (s *GoalService) Reminders(ctx context.Context) (*Reminders, error) {
	reminders := &Reminders{WeekStart: currentWeekStart(s.timezone)}

	conflicts, err := s.conflicts.List(ctx, storage.ConflictOpen)
	if err != nil {
		return nil, err
	}
	reminders.OpenConflicts = conflicts

	open, err := s.improvements.ListCurrent(ctx, "open")
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -7).Format(time.RFC3339)
	for _, imp := range open {
		if imp.LastNudgedAt == "" || imp.LastNudgedAt <= cutoff {
			reminders.StaleImprovements = append(reminders.StaleImprovements, imp)
		}
	}

	review, err := s.reviews.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		reminders.ReviewDue = true
		return reminders, nil
	}
	if err != nil {
		return nil, err
	}
	reminders.ReviewDue = review.WeekStart < reminders.WeekStart
	return reminders, nil
}

// currentWeekStart returns the Monday of the current week in the user's
// timezone as YYYY-MM-DD.
func currentWeekStart(tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	offset := (int(now.Weekday()) + 6) % 7
	return now.AddDate(0, 0, -offset).Format("2006-01-02")
}
