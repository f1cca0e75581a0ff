// Package domain orchestrates progression workflows around the pure engine.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/progression/internal/progression"
)

var (
	// ErrProfileNotFound is returned when no progression profile exists for a user.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrActivityAlreadyReversed indicates the activity's effect was undone previously.
	ErrActivityAlreadyReversed = errors.New("activity already reversed")
	// ErrUnknownActivityType is returned for activity types outside the ruleset.
	ErrUnknownActivityType = errors.New("unknown activity type")
)

// Repository captures persistence operations. Mutating methods persist the
// updated profile, the activity record, and the corresponding outbox events
// inside one transaction.
type Repository interface {
	GetProfile(ctx context.Context, tenantID, userID string) (*Profile, error)
	CreateProfile(ctx context.Context, profile Profile) error
	SaveProfile(ctx context.Context, profile Profile) error
	FindActivityByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*ActivityAggregate, error)
	CreateActivity(ctx context.Context, aggregate ActivityAggregate, profile Profile, transition progression.LevelTransition, idempotencyKey string) error
	GetActivity(ctx context.Context, tenantID, activityID string) (*ActivityAggregate, error)
	MarkActivityReversed(ctx context.Context, aggregate ActivityAggregate, profile Profile, outcome progression.ReversalOutcome) error
	ListActivitiesByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]ActivityAggregate, *Cursor, error)
	SaveDegradation(ctx context.Context, profile Profile, warnings []progression.DegradationWarning) error
}

// Service orchestrates logging, reversal, and decay workflows.
type Service struct {
	repo  Repository
	stats progression.StatEngine
	undo  progression.ReversalCoordinator
	mode  progression.DegradationMode
}

// NewService constructs a Service using the default formula table.
func NewService(repo Repository, mode progression.DegradationMode) *Service {
	return NewServiceWithFormulas(repo, mode, nil)
}

// NewServiceWithFormulas constructs a Service over a custom ruleset, e.g. for
// per-settings increment tuning.
func NewServiceWithFormulas(repo Repository, mode progression.DegradationMode, table progression.FormulaTable) *Service {
	stats := progression.NewStatEngine(table)
	if mode != progression.ModeRelaxed {
		mode = progression.ModeStrict
	}
	return &Service{
		repo:  repo,
		stats: stats,
		undo:  progression.NewReversalCoordinator(stats),
		mode:  mode,
	}
}

// LogActivityInput captures the payload from the API layer.
type LogActivityInput struct {
	TenantID       string
	UserID         string
	ActivityType   string
	StartedAt      time.Time
	DurationMin    int
	Source         string
	IdempotencyKey string
}

// LogActivityResult bundles the stored aggregate with the level outcome.
type LogActivityResult struct {
	Activity   *ActivityAggregate
	Transition progression.LevelTransition
	Replay     bool
}

// LogActivity applies one activity to the user's progression state and
// persists record, profile, and events atomically. Replays via idempotency
// key return the existing record without reapplying anything.
func (s *Service) LogActivity(ctx context.Context, input LogActivityInput) (*LogActivityResult, error) {
	activityType := progression.ActivityType(input.ActivityType)
	if !s.stats.Formulas().Knows(activityType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActivityType, input.ActivityType)
	}

	if existing, err := s.repo.FindActivityByIdempotency(ctx, input.TenantID, input.UserID, input.IdempotencyKey); err == nil && existing != nil {
		return &LogActivityResult{Activity: existing, Replay: true}, nil
	}

	profile, err := s.ensureProfile(ctx, input.TenantID, input.UserID)
	if err != nil {
		return nil, err
	}

	gains, err := s.stats.ComputeGains(activityType, input.DurationMin)
	if err != nil {
		return nil, err
	}
	exp := progression.EXPAward(s.stats.Formulas(), activityType, input.DurationMin)

	afterStats, err := s.stats.ApplyGains(profile.State, gains)
	if err != nil {
		return nil, err
	}
	afterEXP, transition, err := progression.ApplyEXPDelta(afterStats, exp)
	if err != nil {
		return nil, err
	}
	if category, ok := activityType.Category(); ok {
		afterEXP.LastActivity[category] = input.StartedAt.UTC()
	}

	now := time.Now().UTC()
	aggregate := ActivityAggregate{
		ID:            uuid.NewString(),
		TenantID:      input.TenantID,
		UserID:        input.UserID,
		ActivityType:  activityType,
		StartedAt:     input.StartedAt.UTC(),
		DurationMin:   input.DurationMin,
		Source:        input.Source,
		Version:       "v1",
		RecordedEXP:   exp,
		RecordedGains: gains,
		State:         ActivityStateLogged,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	profile.State = progression.SanitizeStats(afterEXP)
	profile.UpdatedAt = now

	if err := s.repo.CreateActivity(ctx, aggregate, *profile, transition, input.IdempotencyKey); err != nil {
		return nil, err
	}

	return &LogActivityResult{Activity: &aggregate, Transition: transition}, nil
}

// UndoActivityResult bundles the reversed aggregate with the reversal outcome.
type UndoActivityResult struct {
	Activity *ActivityAggregate
	Outcome  progression.ReversalOutcome
}

// UndoActivity removes one activity's combined stat and EXP effect. The
// activity record is kept, flagged reversed, so the audit trail survives.
func (s *Service) UndoActivity(ctx context.Context, tenantID, activityID string) (*UndoActivityResult, error) {
	aggregate, err := s.repo.GetActivity(ctx, tenantID, activityID)
	if err != nil {
		return nil, err
	}
	if aggregate == nil {
		return nil, ErrActivityNotFound
	}
	if aggregate.State == ActivityStateReversed {
		return nil, ErrActivityAlreadyReversed
	}

	profile, err := s.repo.GetProfile(ctx, tenantID, aggregate.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	restored, outcome, err := s.undo.UndoActivity(profile.State, aggregate.Descriptor())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	aggregate.State = ActivityStateReversed
	aggregate.UpdatedAt = now
	profile.State = progression.SanitizeStats(restored)
	profile.UpdatedAt = now

	if err := s.repo.MarkActivityReversed(ctx, *aggregate, *profile, outcome); err != nil {
		return nil, err
	}

	return &UndoActivityResult{Activity: aggregate, Outcome: outcome}, nil
}

// CheckDegradation evaluates and applies inactivity decay as of the given
// date. The engine itself is pure; the once-per-calendar-day guarantee lives
// here, keyed on the profile's last check marker.
func (s *Service) CheckDegradation(ctx context.Context, tenantID, userID string, asOf time.Time) ([]progression.DegradationWarning, bool, error) {
	profile, err := s.repo.GetProfile(ctx, tenantID, userID)
	if err != nil {
		return nil, false, err
	}
	if profile == nil {
		return nil, false, ErrProfileNotFound
	}

	if profile.LastDegradationCheck != nil && sameCalendarDay(*profile.LastDegradationCheck, asOf) {
		return nil, false, nil
	}

	warnings := progression.EvaluateDegradation(asOf, profile.State.LastActivity, s.mode)
	next := progression.ApplyDegradation(profile.State, warnings)

	checkedAt := asOf.UTC()
	profile.State = progression.SanitizeStats(next)
	profile.LastDegradationCheck = &checkedAt
	profile.UpdatedAt = time.Now().UTC()

	if err := s.repo.SaveDegradation(ctx, *profile, warnings); err != nil {
		return nil, false, err
	}

	return warnings, true, nil
}

// CreateProfile provisions a progression profile, optionally seeding stats
// from onboarding questionnaire values in [1, 5]. An existing profile is
// returned as a replay.
func (s *Service) CreateProfile(ctx context.Context, tenantID, userID string, initialStats map[progression.Attribute]float64) (*Profile, bool, error) {
	if existing, err := s.repo.GetProfile(ctx, tenantID, userID); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, true, nil
	}

	state, err := progression.NewUserStateWithStats(initialStats)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	profile := Profile{
		TenantID:  tenantID,
		UserID:    userID,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		return nil, false, err
	}
	return &profile, false, nil
}

// ResetProfile returns a user to the onboarding state: level 1, zero EXP,
// all stats at the floor. The activity history is left alone.
func (s *Service) ResetProfile(ctx context.Context, tenantID, userID string) (*Profile, error) {
	profile, err := s.repo.GetProfile(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	profile.State = progression.NewUserState()
	profile.LastDegradationCheck = nil
	profile.UpdatedAt = time.Now().UTC()

	if err := s.repo.SaveProfile(ctx, *profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetProfile fetches a user's progression profile.
func (s *Service) GetProfile(ctx context.Context, tenantID, userID string) (*Profile, error) {
	profile, err := s.repo.GetProfile(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, tenantID, activityID string) (*ActivityAggregate, error) {
	aggregate, err := s.repo.GetActivity(ctx, tenantID, activityID)
	if err != nil {
		return nil, err
	}
	if aggregate == nil {
		return nil, ErrActivityNotFound
	}
	return aggregate, nil
}

// ListActivitiesByUser fetches activities with cursor pagination.
func (s *Service) ListActivitiesByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]ActivityAggregate, *Cursor, error) {
	return s.repo.ListActivitiesByUser(ctx, tenantID, userID, cursor, limit)
}

func (s *Service) ensureProfile(ctx context.Context, tenantID, userID string) (*Profile, error) {
	profile, err := s.repo.GetProfile(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	now := time.Now().UTC()
	created := Profile{
		TenantID:  tenantID,
		UserID:    userID,
		State:     progression.NewUserState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateProfile(ctx, created); err != nil {
		return nil, err
	}
	return &created, nil
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
