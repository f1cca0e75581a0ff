package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/progression/internal/auth"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/progression"
)

func TestLogActivitySuccess(t *testing.T) {
	repo := newMockRepo()
	service := domain.NewService(repo, progression.ModeStrict)
	handler := NewHandler(service)

	body := `{"user_id":"user-1","activity_type":"workout_weights","started_at":"2026-08-01T12:00:00Z","duration_min":60,"source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))

	rr := httptest.NewRecorder()
	handler.logActivity(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp LogActivityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.EXPAwarded != 60 {
		t.Fatalf("expected 60 exp got %f", resp.EXPAwarded)
	}
	if !closeTo(resp.StatGains["strength"], 0.06) {
		t.Fatalf("expected strength gain 0.06 got %f", resp.StatGains["strength"])
	}
	if resp.Level != 1 || resp.CurrentEXP != 60 {
		t.Fatalf("unexpected level state: level=%d exp=%f", resp.Level, resp.CurrentEXP)
	}
}

func TestLogActivityRejectsNegativeDuration(t *testing.T) {
	service := domain.NewService(newMockRepo(), progression.ModeStrict)
	handler := NewHandler(service)

	body := `{"user_id":"user-1","activity_type":"workout_weights","started_at":"2026-08-01T12:00:00Z","duration_min":-5,"source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))

	rr := httptest.NewRecorder()
	handler.logActivity(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestLogActivityRejectsUnknownType(t *testing.T) {
	service := domain.NewService(newMockRepo(), progression.ModeStrict)
	handler := NewHandler(service)

	body := `{"user_id":"user-1","activity_type":"underwater_basket_weaving","started_at":"2026-08-01T12:00:00Z","duration_min":30,"source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))

	rr := httptest.NewRecorder()
	handler.logActivity(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestLogActivityRequiresWriteScope(t *testing.T) {
	service := domain.NewService(newMockRepo(), progression.ModeStrict)
	handler := NewHandler(service)

	body := `{"user_id":"user-1","activity_type":"workout_weights","started_at":"2026-08-01T12:00:00Z","duration_min":60,"source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims()))

	rr := httptest.NewRecorder()
	handler.logActivity(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestUndoActivityRoundTrip(t *testing.T) {
	repo := newMockRepo()
	service := domain.NewService(repo, progression.ModeStrict)
	handler := NewHandler(service)

	body := `{"user_id":"user-1","activity_type":"workout_weights","started_at":"2026-08-01T12:00:00Z","duration_min":60,"source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))
	rr := httptest.NewRecorder()
	handler.logActivity(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("setup failed: %d %s", rr.Code, rr.Body.String())
	}
	var created LogActivityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/activities/"+created.ActivityID, nil)
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))
	rr = httptest.NewRecorder()
	handler.activityByID(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var undone ReversalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &undone); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if undone.Status != string(domain.ActivityStateReversed) {
		t.Fatalf("expected reversed status got %s", undone.Status)
	}
	if !closeTo(undone.StatDeltas["strength"], 0.06) {
		t.Fatalf("expected strength delta 0.06 got %f", undone.StatDeltas["strength"])
	}

	// A second delete must report the conflict.
	req = httptest.NewRequest(http.MethodDelete, "/v1/activities/"+created.ActivityID, nil)
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))
	rr = httptest.NewRecorder()
	handler.activityByID(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rr.Code)
	}
}

func TestUndoActivityNotFound(t *testing.T) {
	service := domain.NewService(newMockRepo(), progression.ModeStrict)
	handler := NewHandler(service)

	req := httptest.NewRequest(http.MethodDelete, "/v1/activities/missing", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))

	rr := httptest.NewRecorder()
	handler.activityByID(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestGetProfileRequiresUserID(t *testing.T) {
	service := domain.NewService(newMockRepo(), progression.ModeStrict)
	handler := NewHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims()))

	rr := httptest.NewRecorder()
	handler.getProfile(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestGetProfileAfterActivity(t *testing.T) {
	repo := newMockRepo()
	service := domain.NewService(repo, progression.ModeStrict)
	handler := NewHandler(service)

	body := `{"user_id":"user-1","activity_type":"study_serious","started_at":"2026-08-01T12:00:00Z","duration_min":120,"source":"api"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))
	rr := httptest.NewRecorder()
	handler.logActivity(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("setup failed: %d %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/profile?user_id=user-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims()))
	rr = httptest.NewRecorder()
	handler.getProfile(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var profile ProfileView
	if err := json.Unmarshal(rr.Body.Bytes(), &profile); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if profile.Level != 1 || profile.CurrentEXP != 120 {
		t.Fatalf("unexpected profile state: level=%d exp=%f", profile.Level, profile.CurrentEXP)
	}
	if profile.NextLevelEXP != 1000 {
		t.Fatalf("expected next level threshold 1000 got %f", profile.NextLevelEXP)
	}
	if !closeTo(profile.Stats["intelligence"], 1.12) {
		t.Fatalf("expected intelligence 1.12 got %f", profile.Stats["intelligence"])
	}
}

func TestCheckDegradationProfileNotFound(t *testing.T) {
	service := domain.NewService(newMockRepo(), progression.ModeStrict)
	handler := NewHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/v1/degradation/check", strings.NewReader(`{"user_id":"ghost"}`))
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))

	rr := httptest.NewRecorder()
	handler.checkDegradation(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestCreateProfileQuestionnaire(t *testing.T) {
	service := domain.NewService(newMockRepo(), progression.ModeStrict)
	handler := NewHandler(service)

	body := `{"user_id":"user-1","initial_stats":{"strength":3.5,"focus":2.0}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/profile", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))

	rr := httptest.NewRecorder()
	handler.createProfile(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var profile ProfileView
	if err := json.Unmarshal(rr.Body.Bytes(), &profile); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if profile.Stats["strength"] != 3.5 {
		t.Fatalf("expected strength 3.5 got %f", profile.Stats["strength"])
	}

	// Values outside the questionnaire range must be rejected.
	body = `{"user_id":"user-2","initial_stats":{"strength":9.0}}`
	req = httptest.NewRequest(http.MethodPost, "/v1/profile", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writeClaims()))
	rr = httptest.NewRecorder()
	handler.createProfile(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func closeTo(got, want float64) bool {
	diff := got - want
	return diff < 1e-9 && diff > -1e-9
}

func writeClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "tester",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeProgressionWrite: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func readClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "tester",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeProgressionRead: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

type mockRepo struct {
	profiles   map[string]domain.Profile
	activities map[string]domain.ActivityAggregate
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		profiles:   make(map[string]domain.Profile),
		activities: make(map[string]domain.ActivityAggregate),
	}
}

func profileKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

func (m *mockRepo) GetProfile(ctx context.Context, tenantID, userID string) (*domain.Profile, error) {
	profile, ok := m.profiles[profileKey(tenantID, userID)]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (m *mockRepo) CreateProfile(ctx context.Context, profile domain.Profile) error {
	m.profiles[profileKey(profile.TenantID, profile.UserID)] = profile
	return nil
}

func (m *mockRepo) SaveProfile(ctx context.Context, profile domain.Profile) error {
	m.profiles[profileKey(profile.TenantID, profile.UserID)] = profile
	return nil
}

func (m *mockRepo) FindActivityByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.ActivityAggregate, error) {
	return nil, nil
}

func (m *mockRepo) CreateActivity(ctx context.Context, aggregate domain.ActivityAggregate, profile domain.Profile, transition progression.LevelTransition, idempotencyKey string) error {
	m.activities[aggregate.ID] = aggregate
	m.profiles[profileKey(profile.TenantID, profile.UserID)] = profile
	return nil
}

func (m *mockRepo) GetActivity(ctx context.Context, tenantID, activityID string) (*domain.ActivityAggregate, error) {
	aggregate, ok := m.activities[activityID]
	if !ok || aggregate.TenantID != tenantID {
		return nil, nil
	}
	return &aggregate, nil
}

func (m *mockRepo) MarkActivityReversed(ctx context.Context, aggregate domain.ActivityAggregate, profile domain.Profile, outcome progression.ReversalOutcome) error {
	m.activities[aggregate.ID] = aggregate
	m.profiles[profileKey(profile.TenantID, profile.UserID)] = profile
	return nil
}

func (m *mockRepo) ListActivitiesByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityAggregate, *domain.Cursor, error) {
	out := make([]domain.ActivityAggregate, 0)
	for _, aggregate := range m.activities {
		if aggregate.TenantID == tenantID && aggregate.UserID == userID {
			out = append(out, aggregate)
		}
	}
	return out, nil, nil
}

func (m *mockRepo) SaveDegradation(ctx context.Context, profile domain.Profile, warnings []progression.DegradationWarning) error {
	m.profiles[profileKey(profile.TenantID, profile.UserID)] = profile
	return nil
}
