// Package api exposes HTTP handlers for the progression service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/progression/internal/auth"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/persistence"
	"example.com/progression/internal/progression"
)

// maxDurationMin caps a single activity at one day.
const maxDurationMin = 1440

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/profile", h.profile)
	mux.HandleFunc("/v1/profile/reset", h.resetProfile)
	mux.HandleFunc("/v1/degradation/check", h.checkDegradation)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.logActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getActivity(w, r, id)
	case http.MethodDelete:
		h.undoActivity(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getProfile(w, r)
	case http.MethodPost:
		h.createProfile(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) logActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProgressionWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progression:write required")
		return
	}

	var req LogActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	result, err := h.service.LogActivity(r.Context(), domain.LogActivityInput{
		TenantID:       claims.TenantID,
		UserID:         req.UserID,
		ActivityType:   req.ActivityType,
		StartedAt:      req.StartedAt,
		DurationMin:    req.DurationMin,
		Source:         req.Source,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownActivityType):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		case errors.Is(err, progression.ErrInvalidDuration):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	resp := LogActivityResponse{
		ActivityID: result.Activity.ID,
		Status:     string(result.Activity.State),
		Replay:     result.Replay,
	}
	if !result.Replay {
		resp.EXPAwarded = result.Activity.RecordedEXP
		resp.StatGains = attributeMap(result.Activity.RecordedGains)
		resp.LeveledUp = result.Transition.LeveledUp
		resp.LevelsGained = result.Transition.LevelsChanged
		resp.Level = result.Transition.FinalLevel
		resp.CurrentEXP = result.Transition.FinalEXP
	}

	status := http.StatusAccepted
	if result.Replay {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	aggregate, err := h.service.GetActivity(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*aggregate))
}

func (h *Handler) undoActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProgressionWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progression:write required")
		return
	}

	result, err := h.service.UndoActivity(r.Context(), claims.TenantID, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrActivityNotFound):
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
		case errors.Is(err, domain.ErrActivityAlreadyReversed):
			writeError(w, http.StatusConflict, "conflict", "activity already reversed")
		case errors.Is(err, progression.ErrIrreversibleActivity):
			writeError(w, http.StatusConflict, "conflict", "activity cannot be reversed safely")
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	resp := ReversalResponse{
		ActivityID:  result.Activity.ID,
		Status:      string(result.Activity.State),
		LeveledDown: result.Outcome.LeveledDown,
		LevelsLost:  result.Outcome.LevelsLost,
		StatDeltas:  attributeMap(result.Outcome.StatDeltas),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursorToken := r.URL.Query().Get("cursor")
	cursor, err := persistence.DecodeCursor(cursorToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	aggregates, next, err := h.service.ListActivitiesByUser(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(aggregates))
	for _, agg := range aggregates {
		items = append(items, toActivityView(agg))
	}

	resp := ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), claims.TenantID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toProfileView(*profile))
}

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProgressionWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progression:write required")
		return
	}

	var req CreateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	initial := make(map[progression.Attribute]float64, len(req.InitialStats))
	for name, value := range req.InitialStats {
		initial[progression.Attribute(name)] = value
	}

	profile, replay, err := h.service.CreateProfile(r.Context(), claims.TenantID, req.UserID, initial)
	if err != nil {
		if errors.Is(err, progression.ErrInvalidStatValue) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, toProfileView(*profile))
}

func (h *Handler) resetProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProgressionWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progression:write required")
		return
	}

	var req ProfileTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	profile, err := h.service.ResetProfile(r.Context(), claims.TenantID, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toProfileView(*profile))
}

func (h *Handler) checkDegradation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProgressionWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progression:write required")
		return
	}

	var req ProfileTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	warnings, applied, err := h.service.CheckDegradation(r.Context(), claims.TenantID, req.UserID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := DegradationCheckResponse{Applied: applied, Warnings: make([]DegradationWarningView, 0, len(warnings))}
	for _, warning := range warnings {
		resp.Warnings = append(resp.Warnings, DegradationWarningView{
			Category:   string(warning.Category),
			DaysMissed: warning.DaysMissed,
			Penalty:    warning.PenaltyApplied,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) requireRead(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeProgressionRead) && !claims.HasScope(auth.ScopeProgressionWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progression:read required")
		return nil, false
	}
	return claims, true
}

// LogActivityRequest is the payload for POST /v1/activities.
type LogActivityRequest struct {
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	StartedAt    time.Time `json:"started_at"`
	DurationMin  int       `json:"duration_min"`
	Source       string    `json:"source"`
}

// Validate ensures request correctness. Zero durations pass here because
// fixed-amount activity types accept them; the engine rejects zero for
// per-hour types.
func (r LogActivityRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.ActivityType) == "" {
		return errors.New("activity_type is required")
	}
	if r.DurationMin < 0 {
		return errors.New("duration_min must be >= 0")
	}
	if r.DurationMin > maxDurationMin {
		return errors.New("duration_min must be <= 1440")
	}
	if r.StartedAt.IsZero() {
		return errors.New("started_at is required")
	}
	if strings.TrimSpace(r.Source) == "" {
		return errors.New("source is required")
	}
	return nil
}

// LogActivityResponse describes the response body for a logged activity.
type LogActivityResponse struct {
	ActivityID   string             `json:"activity_id"`
	Status       string             `json:"status"`
	Replay       bool               `json:"idempotent_replay"`
	EXPAwarded   float64            `json:"exp_awarded,omitempty"`
	StatGains    map[string]float64 `json:"stat_gains,omitempty"`
	LeveledUp    bool               `json:"leveled_up,omitempty"`
	LevelsGained int                `json:"levels_gained,omitempty"`
	Level        int                `json:"level,omitempty"`
	CurrentEXP   float64            `json:"current_exp,omitempty"`
}

// ReversalResponse describes the response body for DELETE /v1/activities/{id}.
type ReversalResponse struct {
	ActivityID  string             `json:"activity_id"`
	Status      string             `json:"status"`
	LeveledDown bool               `json:"leveled_down"`
	LevelsLost  int                `json:"levels_lost"`
	StatDeltas  map[string]float64 `json:"stat_deltas"`
}

// CreateProfileRequest provisions a profile, optionally seeding stats from
// the onboarding questionnaire.
type CreateProfileRequest struct {
	UserID       string             `json:"user_id"`
	InitialStats map[string]float64 `json:"initial_stats,omitempty"`
}

// Validate ensures request correctness.
func (r CreateProfileRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// ProfileTargetRequest addresses an existing profile.
type ProfileTargetRequest struct {
	UserID string `json:"user_id"`
}

// Validate ensures request correctness.
func (r ProfileTargetRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID   string             `json:"activity_id"`
	TenantID     string             `json:"tenant_id"`
	UserID       string             `json:"user_id"`
	ActivityType string             `json:"activity_type"`
	StartedAt    time.Time          `json:"started_at"`
	DurationMin  int                `json:"duration_min"`
	Source       string             `json:"source"`
	Version      string             `json:"version"`
	Status       string             `json:"status"`
	EXPAwarded   float64            `json:"exp_awarded"`
	StatGains    map[string]float64 `json:"stat_gains"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ProfileView exposes the progression snapshot for a user.
type ProfileView struct {
	TenantID             string               `json:"tenant_id"`
	UserID               string               `json:"user_id"`
	Level                int                  `json:"level"`
	CurrentEXP           float64              `json:"current_exp"`
	NextLevelEXP         float64              `json:"next_level_exp"`
	Stats                map[string]float64   `json:"stats"`
	LastActivity         map[string]time.Time `json:"last_activity"`
	LastDegradationCheck *time.Time           `json:"last_degradation_check,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// DegradationWarningView reports one applied decay penalty.
type DegradationWarningView struct {
	Category   string  `json:"category"`
	DaysMissed int     `json:"days_missed"`
	Penalty    float64 `json:"penalty"`
}

// DegradationCheckResponse packages the outcome of a decay evaluation.
type DegradationCheckResponse struct {
	Applied  bool                     `json:"applied"`
	Warnings []DegradationWarningView `json:"warnings"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(agg domain.ActivityAggregate) ActivityView {
	return ActivityView{
		ActivityID:   agg.ID,
		TenantID:     agg.TenantID,
		UserID:       agg.UserID,
		ActivityType: string(agg.ActivityType),
		StartedAt:    agg.StartedAt,
		DurationMin:  agg.DurationMin,
		Source:       agg.Source,
		Version:      agg.Version,
		Status:       string(agg.State),
		EXPAwarded:   agg.RecordedEXP,
		StatGains:    attributeMap(agg.RecordedGains),
		CreatedAt:    agg.CreatedAt,
		UpdatedAt:    agg.UpdatedAt,
	}
}

func toProfileView(profile domain.Profile) ProfileView {
	threshold, err := progression.ThresholdForLevel(profile.State.Level)
	if err != nil {
		threshold = 0
	}

	stats := make(map[string]float64, len(profile.State.Stats))
	for attr, value := range profile.State.Stats {
		stats[string(attr)] = progression.SanitizeStat(value)
	}
	lastActivity := make(map[string]time.Time, len(profile.State.LastActivity))
	for category, ts := range profile.State.LastActivity {
		lastActivity[string(category)] = ts
	}

	return ProfileView{
		TenantID:             profile.TenantID,
		UserID:               profile.UserID,
		Level:                profile.State.Level,
		CurrentEXP:           profile.State.CurrentEXP,
		NextLevelEXP:         threshold,
		Stats:                stats,
		LastActivity:         lastActivity,
		LastDegradationCheck: profile.LastDegradationCheck,
		CreatedAt:            profile.CreatedAt,
		UpdatedAt:            profile.UpdatedAt,
	}
}

func attributeMap(in map[progression.Attribute]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for attr, value := range in {
		out[string(attr)] = value
	}
	return out
}
