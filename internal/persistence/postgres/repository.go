package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/observability"
	"example.com/progression/internal/progression"
)

// Repository provides Postgres-backed persistence for profiles, activities,
// and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `tenant_id, user_id, level, current_exp, stats, last_activity, last_degradation_check, created_at, updated_at`

// GetProfile loads the progression snapshot for a user.
func (r *Repository) GetProfile(ctx context.Context, tenantID, userID string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE tenant_id=$1 AND user_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	profile, err := scanProfile(tx.QueryRow(ctx, query, tenantID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateProfile inserts a fresh progression profile.
func (r *Repository) CreateProfile(ctx context.Context, profile domain.Profile) error {
	stats, lastActivity, err := marshalState(profile.State)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO user_profiles (tenant_id, user_id, level, current_exp, stats, last_activity, last_degradation_check, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", profile.TenantID); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, stmt,
		profile.TenantID,
		profile.UserID,
		profile.State.Level,
		profile.State.CurrentEXP,
		stats,
		lastActivity,
		profile.LastDegradationCheck,
		profile.CreatedAt,
		profile.UpdatedAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SaveProfile overwrites the stored snapshot.
func (r *Repository) SaveProfile(ctx context.Context, profile domain.Profile) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", profile.TenantID); err != nil {
		return err
	}

	if err = updateProfile(ctx, tx, profile); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func updateProfile(ctx context.Context, tx pgx.Tx, profile domain.Profile) error {
	stats, lastActivity, err := marshalState(profile.State)
	if err != nil {
		return err
	}

	const stmt = `UPDATE user_profiles
        SET level=$3, current_exp=$4, stats=$5, last_activity=$6, last_degradation_check=$7, updated_at=$8
        WHERE tenant_id=$1 AND user_id=$2`

	tag, err := tx.Exec(ctx, stmt,
		profile.TenantID,
		profile.UserID,
		profile.State.Level,
		profile.State.CurrentEXP,
		stats,
		lastActivity,
		profile.LastDegradationCheck,
		profile.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

const activityColumns = `activity_id, tenant_id, user_id, activity_type, started_at, duration_min, source, version, recorded_exp, recorded_gains, state, created_at, updated_at`

// FindActivityByIdempotency checks if an activity already exists for the supplied idempotency key.
func (r *Repository) FindActivityByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.ActivityAggregate, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND user_id=$2 AND idempotency_key=$3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	agg, err := scanActivity(tx.QueryRow(ctx, query, tenantID, userID, idempotencyKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return agg, nil
}

// CreateActivity persists the activity, the updated profile, and the outbox
// events inside a single transaction.
func (r *Repository) CreateActivity(ctx context.Context, aggregate domain.ActivityAggregate, profile domain.Profile, transition progression.LevelTransition, idempotencyKey string) error {
	gains, err := json.Marshal(aggregate.RecordedGains)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", aggregate.TenantID); err != nil {
		return err
	}

	const insertActivity = `INSERT INTO activities (activity_id, tenant_id, user_id, activity_type, started_at, duration_min, source, idempotency_key, version, recorded_exp, recorded_gains, state, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	if _, err = tx.Exec(ctx, insertActivity,
		aggregate.ID,
		aggregate.TenantID,
		aggregate.UserID,
		string(aggregate.ActivityType),
		aggregate.StartedAt,
		aggregate.DurationMin,
		aggregate.Source,
		nullIfEmpty(idempotencyKey),
		aggregate.Version,
		aggregate.RecordedEXP,
		gains,
		string(aggregate.State),
		aggregate.CreatedAt,
		aggregate.UpdatedAt,
	); err != nil {
		return err
	}

	if err = updateProfile(ctx, tx, profile); err != nil {
		return err
	}

	scope := eventScope{TenantID: aggregate.TenantID, UserID: aggregate.UserID, ActivityID: aggregate.ID}
	if err = insertOutbox(ctx, tx, scope, "activity.logged", events.ActivityLogged{
		ActivityID:   aggregate.ID,
		TenantID:     aggregate.TenantID,
		UserID:       aggregate.UserID,
		ActivityType: string(aggregate.ActivityType),
		StartedAt:    aggregate.StartedAt,
		DurationMin:  aggregate.DurationMin,
		EXPAwarded:   aggregate.RecordedEXP,
		StatGains:    attributeMap(aggregate.RecordedGains),
		Source:       aggregate.Source,
		Version:      aggregate.Version,
	}); err != nil {
		return err
	}

	if transition.LeveledUp {
		if err = insertOutbox(ctx, tx, scope, "level.changed", events.LevelChanged{
			TenantID:      aggregate.TenantID,
			UserID:        aggregate.UserID,
			PreviousLevel: transition.FinalLevel - transition.LevelsChanged,
			NewLevel:      transition.FinalLevel,
			LevelsChanged: transition.LevelsChanged,
			OccurredAt:    aggregate.UpdatedAt,
		}); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityLogged(aggregate.UpdatedAt, levelsGained(transition))
	return nil
}

// MarkActivityReversed flips the activity record to reversed, stores the
// restored profile, and emits the reversal events, all in one transaction.
func (r *Repository) MarkActivityReversed(ctx context.Context, aggregate domain.ActivityAggregate, profile domain.Profile, outcome progression.ReversalOutcome) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", aggregate.TenantID); err != nil {
		return err
	}

	const stmt = `UPDATE activities SET state=$3, updated_at=$4 WHERE tenant_id=$1 AND activity_id=$2`
	tag, err := tx.Exec(ctx, stmt, aggregate.TenantID, aggregate.ID, string(aggregate.State), aggregate.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrActivityNotFound
		return err
	}

	if err = updateProfile(ctx, tx, profile); err != nil {
		return err
	}

	scope := eventScope{TenantID: aggregate.TenantID, UserID: aggregate.UserID, ActivityID: aggregate.ID}
	if err = insertOutbox(ctx, tx, scope, "activity.reversed", events.ActivityReversed{
		ActivityID:  aggregate.ID,
		TenantID:    aggregate.TenantID,
		UserID:      aggregate.UserID,
		LeveledDown: outcome.LeveledDown,
		LevelsLost:  outcome.LevelsLost,
		StatDeltas:  attributeMap(outcome.StatDeltas),
		OccurredAt:  aggregate.UpdatedAt,
	}); err != nil {
		return err
	}

	if outcome.LeveledDown {
		// The forward level.changed already used this aggregate's dedupe slot.
		scope.Qualifier = "reversal"
		if err = insertOutbox(ctx, tx, scope, "level.changed", events.LevelChanged{
			TenantID:      aggregate.TenantID,
			UserID:        aggregate.UserID,
			PreviousLevel: profile.State.Level + outcome.LevelsLost,
			NewLevel:      profile.State.Level,
			LevelsChanged: outcome.LevelsLost,
			OccurredAt:    aggregate.UpdatedAt,
		}); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityReversed(aggregate.UpdatedAt, outcome.LevelsLost)
	return nil
}

// SaveDegradation persists the decayed profile and emits one event per
// applied penalty.
func (r *Repository) SaveDegradation(ctx context.Context, profile domain.Profile, warnings []progression.DegradationWarning) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", profile.TenantID); err != nil {
		return err
	}

	if err = updateProfile(ctx, tx, profile); err != nil {
		return err
	}

	occurredAt := profile.UpdatedAt
	for _, warning := range warnings {
		scope := eventScope{
			TenantID:  profile.TenantID,
			UserID:    profile.UserID,
			Qualifier: fmt.Sprintf("%s:%d", warning.Category, occurredAt.Unix()),
		}
		if err = insertOutbox(ctx, tx, scope, "stats.degraded", events.StatsDegraded{
			TenantID:   profile.TenantID,
			UserID:     profile.UserID,
			Category:   string(warning.Category),
			DaysMissed: warning.DaysMissed,
			Penalty:    warning.PenaltyApplied,
			OccurredAt: occurredAt,
		}); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	for _, warning := range warnings {
		observability.RecordDegradation(string(warning.Category))
	}
	return nil
}

// GetActivity retrieves an activity by ID.
func (r *Repository) GetActivity(ctx context.Context, tenantID, activityID string) (*domain.ActivityAggregate, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND activity_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	agg, err := scanActivity(tx.QueryRow(ctx, query, tenantID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return agg, nil
}

// ListActivitiesByUser returns activities for a user ordered by time.
func (r *Repository) ListActivitiesByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityAggregate, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (started_at, activity_id) < ($4, $5)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}

	query += ` ORDER BY started_at DESC, activity_id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityAggregate, 0, limit)
	for rows.Next() {
		agg, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *agg)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}

	return results, nextCursor, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var (
		profile      domain.Profile
		stats        []byte
		lastActivity []byte
		lastCheck    *time.Time
	)
	if err := row.Scan(
		&profile.TenantID,
		&profile.UserID,
		&profile.State.Level,
		&profile.State.CurrentEXP,
		&stats,
		&lastActivity,
		&lastCheck,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, err
	}

	profile.State.Stats = make(map[progression.Attribute]float64)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &profile.State.Stats); err != nil {
			return nil, err
		}
	}
	profile.State.LastActivity = make(map[progression.Category]time.Time)
	if len(lastActivity) > 0 {
		if err := json.Unmarshal(lastActivity, &profile.State.LastActivity); err != nil {
			return nil, err
		}
	}
	profile.LastDegradationCheck = lastCheck
	return &profile, nil
}

func scanActivity(row rowScanner) (*domain.ActivityAggregate, error) {
	var (
		agg          domain.ActivityAggregate
		activityType string
		gains        []byte
		state        string
	)
	if err := row.Scan(
		&agg.ID,
		&agg.TenantID,
		&agg.UserID,
		&activityType,
		&agg.StartedAt,
		&agg.DurationMin,
		&agg.Source,
		&agg.Version,
		&agg.RecordedEXP,
		&gains,
		&state,
		&agg.CreatedAt,
		&agg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	agg.ActivityType = progression.ActivityType(activityType)
	agg.State = domain.ActivityState(state)
	if len(gains) > 0 {
		agg.RecordedGains = make(map[progression.Attribute]float64)
		if err := json.Unmarshal(gains, &agg.RecordedGains); err != nil {
			return nil, err
		}
	}
	return &agg, nil
}

func marshalState(state progression.UserState) ([]byte, []byte, error) {
	stats, err := json.Marshal(state.Stats)
	if err != nil {
		return nil, nil, err
	}
	lastActivity, err := json.Marshal(state.LastActivity)
	if err != nil {
		return nil, nil, err
	}
	return stats, lastActivity, nil
}

func attributeMap(in map[progression.Attribute]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for attr, value := range in {
		out[string(attr)] = value
	}
	return out
}

func levelsGained(transition progression.LevelTransition) int {
	if !transition.LeveledUp {
		return 0
	}
	return transition.LevelsChanged
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// eventScope carries the identifiers partition and dedupe keys are derived
// from. Qualifier disambiguates events that share an aggregate and type.
type eventScope struct {
	TenantID   string
	UserID     string
	ActivityID string
	Qualifier  string
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(eventScope) string
}

var eventCatalog = map[string]EventMetadata{
	"activity.logged": {
		Topic:         "progression_activity_logged",
		SchemaSubject: "progression_activity_logged-value",
		PartitionKeyFn: func(s eventScope) string {
			return fmt.Sprintf("%s:%s", s.TenantID, s.UserID)
		},
	},
	"activity.reversed": {
		Topic:         "progression_activity_reversed",
		SchemaSubject: "progression_activity_reversed-value",
		PartitionKeyFn: func(s eventScope) string {
			return s.ActivityID
		},
	},
	"level.changed": {
		Topic:         "progression_level_changed",
		SchemaSubject: "progression_level_changed-value",
		PartitionKeyFn: func(s eventScope) string {
			return fmt.Sprintf("%s:%s", s.TenantID, s.UserID)
		},
	},
	"stats.degraded": {
		Topic:         "progression_stats_degraded",
		SchemaSubject: "progression_stats_degraded-value",
		PartitionKeyFn: func(s eventScope) string {
			return fmt.Sprintf("%s:%s", s.TenantID, s.UserID)
		},
	},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, scope eventScope, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	aggregateID := scope.ActivityID
	if aggregateID == "" {
		aggregateID = scope.UserID
	}
	partitionKey := meta.PartitionKeyFn(scope)
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)
	if scope.Qualifier != "" {
		dedupeKey = fmt.Sprintf("%s:%s", dedupeKey, scope.Qualifier)
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		scope.TenantID,
		"progression",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}
