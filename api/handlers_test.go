/*
handlers_test.go - HTTP tests for the casebook API

Tests for:
- Profile CRUD and admin-only delete
- Authorization lifecycle and adjustments
- Balance, preview and summary responses
- Access gate and error mapping
*/
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/casebook/casebook"
	"github.com/warp/casebook/config"
	"github.com/warp/casebook/store/memory"
)

const (
	worker = "worker@agency.org"
	lead   = "lead@agency.org"
)

type testServer struct {
	t       *testing.T
	router  http.Handler
	handler *Handler
	docs    *memory.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	now := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
	docs := memory.New()
	svc := casebook.NewService(docs, casebook.WithClock(func() time.Time { return now }))

	cfg := config.Default()
	cfg.AllowedEmails = []string{worker}
	cfg.AdminEmails = []string{lead}

	h := NewHandler(svc, &cfg, zerolog.Nop())
	return &testServer{t: t, router: NewRouter(h, cfg.CORSOrigins), handler: h, docs: docs}
}

func (s *testServer) do(method, path, user string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed creates the Rivera family with a PTSV authorization of 40 units at
// 3/week over Q1 2025, and one two-hour visit.
func (s *testServer) seed() (profileID, authID string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/profiles", worker, map[string]any{
		"key": "fam-1", "familyName": "Rivera", "mcNumber": "MC-100",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	profileID = decodeBody[map[string]any](s.t, rec)["id"].(string)

	rec = s.do(http.MethodPost, "/api/profiles/"+profileID+"/authorizations", worker, map[string]any{
		"serviceType":  "PTSV",
		"startDate":    "2025-01-01",
		"endDate":      "2025-03-31",
		"unitsPerWeek": 3,
		"totalUnits":   "40",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	authID = decodeBody[map[string]any](s.t, rec)["id"].(string)

	rec = s.do(http.MethodPost, "/api/entries", worker, map[string]any{
		"date": "2025-02-03", "serviceType": "PTSV",
		"startTime": "10:00", "endTime": "12:00",
		"familyDirectoryKey": "fam-1",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return profileID, authID
}

// =============================================================================
// ACCESS
// =============================================================================

func TestAccess_UnknownUserIsForbidden(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/profiles", "stranger@example.org", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/profiles", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/profiles", "Worker@Agency.org", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz_NeedsNoUser(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// PROFILES
// =============================================================================

func TestProfiles_CreateGetUpdate(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.seed()

	rec := s.do(http.MethodPut, "/api/profiles/"+id, worker, map[string]any{
		"key": "fam-1", "familyName": "Rivera-Lopez",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/profiles/"+id, worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Rivera-Lopez", got["familyName"])
	assert.Len(t, got["authorizationHistory"], 1, "details edit keeps history")
	assert.Equal(t, false, got["hasLegacyAuthorization"])

	rec = s.do(http.MethodGet, "/api/profiles", worker, nil)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 1)
}

func TestProfiles_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/profiles/missing", worker, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Failed to get profile", decodeBody[ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodPut, "/api/profiles/missing", worker, map[string]any{"familyName": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/profiles", worker, map[string]any{"mcNumber": "MC-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/profiles", bytes.NewBufferString("{not json"))
	req.Header.Set(UserHeader, worker)
	raw := httptest.NewRecorder()
	s.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestDeleteProfile_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.seed()

	rec := s.do(http.MethodDelete, "/api/profiles/"+id, worker, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodDelete, "/api/profiles/"+id, lead, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/profiles/"+id, lead, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMigrateLegacy_Endpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/profiles", worker, map[string]any{
		"familyName":    "Okafor",
		"authStartDate": "2025-01-01",
		"authEndDate":   "2025-06-30",
		"unitsPerWeek":  "2",
		"totalUnits":    30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, created["hasLegacyAuthorization"])

	rec = s.do(http.MethodPost, "/api/profiles/"+created["id"].(string)+"/migrate-legacy", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[MigrateResponse](t, rec)
	assert.True(t, resp.Migrated)
	require.Len(t, resp.Profile.AuthorizationHistory, 1)
	assert.Equal(t, "GENERAL", resp.Profile.AuthorizationHistory[0].ServiceType)
	assert.False(t, resp.Profile.HasLegacyAuthorization)
}

// =============================================================================
// AUTHORIZATIONS
// =============================================================================

func TestAuthorizations_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	id, authID := s.seed()
	base := "/api/profiles/" + id + "/authorizations/" + authID

	rec := s.do(http.MethodPut, base, worker, map[string]any{"totalUnits": 45, "notes": "renewed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(45), edited["totalUnits"])
	assert.Equal(t, "PTSV", edited["serviceType"], "omitted fields are kept")

	rec = s.do(http.MethodPost, base+"/archive", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["isArchived"])

	rec = s.do(http.MethodPost, base+"/unarchive", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[map[string]any](t, rec)["isArchived"])

	rec = s.do(http.MethodDelete, base, worker, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, base, worker, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthorizations_InvalidDateRange(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.seed()

	rec := s.do(http.MethodPost, "/api/profiles/"+id+"/authorizations", worker, map[string]any{
		"serviceType": "PTSV", "startDate": "2025-05-01", "endDate": "2025-04-01", "totalUnits": 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjustments_AddAndRemove(t *testing.T) {
	s := newTestServer(t)
	id, authID := s.seed()
	base := "/api/profiles/" + id + "/authorizations/" + authID + "/adjustments"

	rec := s.do(http.MethodPost, base, worker, map[string]any{"type": "bogus", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, base, worker, map[string]any{"type": "increase", "amount": "5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	adj := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "units_increase", adj["type"])

	rec = s.do(http.MethodGet, "/api/profiles/"+id+"/balance?service_type=PTSV", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 45.0, decodeBody[BalanceDTO](t, rec).AdjustedTotal)

	rec = s.do(http.MethodDelete, base+"/"+adj["id"].(string), worker, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, base+"/"+adj["id"].(string), worker, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestGetBalance(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.seed()

	rec := s.do(http.MethodGet, "/api/profiles/"+id+"/balance?service_type=PTSV&as_of=2025-02-10", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	b := decodeBody[BalanceDTO](t, rec)
	assert.True(t, b.HasAuthorization)
	assert.Equal(t, 40.0, b.AdjustedTotal)
	assert.Equal(t, 2.0, b.HoursUsed)
	assert.Equal(t, 38.0, b.Balance)
	assert.Equal(t, 3.0, b.CurrentRate)
	require.NotNil(t, b.DaysUntilExpiry)
	assert.Equal(t, 50, *b.DaysUntilExpiry)
	assert.False(t, b.IsRunningLow)
}

func TestGetBalance_WithoutServiceTypeResolvesAcrossTypes(t *testing.T) {
	// GIVEN: PTSV over Q1 and a DST-U authorization starting Feb 1
	s := newTestServer(t)
	id, _ := s.seed()
	rec := s.do(http.MethodPost, "/api/profiles/"+id+"/authorizations", worker, map[string]any{
		"serviceType": "DST-U",
		"startDate":   "2025-02-01",
		"endDate":     "2025-06-30",
		"totalUnits":  "8",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Asking for a balance with no service_type
	rec = s.do(http.MethodGet, "/api/profiles/"+id+"/balance?as_of=2025-02-10", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The most recently started covering authorization of any type governs
	b := decodeBody[BalanceDTO](t, rec)
	require.NotNil(t, b.Authorization)
	assert.Equal(t, "DST-U", b.Authorization.ServiceType)
	assert.Equal(t, 8.0, b.Balance)
}

func TestGetBalance_InvalidAsOf(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.seed()

	rec := s.do(http.MethodGet, "/api/profiles/"+id+"/balance?as_of=someday", worker, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewBalance(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.seed()

	rec := s.do(http.MethodPost, "/api/profiles/"+id+"/balance/preview", worker, map[string]any{
		"date": "2025-02-12", "serviceType": "PTSV",
		"startTime": "13:00", "endTime": "14:30",
		"familyDirectoryKey": "fam-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	b := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, 38.0, b.Balance, "candidate is not saved")
	require.NotNil(t, b.UsedAfterEntry)
	require.NotNil(t, b.BalanceAfterEntry)
	assert.Equal(t, 3.5, *b.UsedAfterEntry)
	assert.Equal(t, 36.5, *b.BalanceAfterEntry)
}

func TestStreamBalance_SendsEventPerChange(t *testing.T) {
	// GIVEN: A seeded family and a client listening to its balance stream
	s := newTestServer(t)
	id, _ := s.seed()
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/profiles/"+id+"/balance/stream?service_type=PTSV", nil)
	require.NoError(t, err)
	req.Header.Set(UserHeader, worker)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := bufio.NewScanner(resp.Body)
	next := func() BalanceDTO {
		t.Helper()
		for events.Scan() {
			if data, ok := strings.CutPrefix(events.Text(), "data: "); ok {
				var b BalanceDTO
				require.NoError(t, json.Unmarshal([]byte(data), &b))
				return b
			}
		}
		t.Fatalf("stream ended: %v", events.Err())
		return BalanceDTO{}
	}

	assert.Equal(t, 38.0, next().Balance)

	// WHEN: Another visit is logged
	rec := s.do(http.MethodPost, "/api/entries", worker, map[string]any{
		"date": "2025-02-05", "serviceType": "PTSV",
		"startTime": "10:00", "endTime": "11:00",
		"familyDirectoryKey": "fam-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// THEN: The stream pushes the new balance
	assert.Equal(t, 37.0, next().Balance)
}

func TestStreamBalance_EndsOnShutdown(t *testing.T) {
	// GIVEN: A server from NewServer with one open balance stream
	s := newTestServer(t)
	id, _ := s.seed()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := NewServer(ln.Addr().String(), s.router)
	go server.Serve(ln)

	req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/api/profiles/"+id+"/balance/stream", nil)
	require.NoError(t, err)
	req.Header.Set(UserHeader, worker)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := bufio.NewScanner(resp.Body)
	for events.Scan() {
		if strings.HasPrefix(events.Text(), "data: ") {
			break
		}
	}

	// WHEN: The server shuts down
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, server.Shutdown(ctx))

	// THEN: Shutdown does not wait on the stream, and the stream ends
	assert.Less(t, time.Since(start), 3*time.Second)
	for events.Scan() {
		assert.NotContains(t, events.Text(), "data: ", "no events after shutdown")
	}
}

func TestStreamBalance_UnknownProfile(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/profiles/missing/balance/stream", worker, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSummary(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.seed()

	rec := s.do(http.MethodGet, "/api/profiles/"+id+"/summary", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows := decodeBody[[]ServiceBalanceDTO](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "PTSV", rows[0].ServiceType)
	assert.Equal(t, 38.0, rows[0].Balance.Balance)
}

func TestGetAudit_RecordsCaller(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.seed()

	rec := s.do(http.MethodGet, "/api/profiles/"+id+"/audit", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := decodeBody[[]casebook.AuditEntry](t, rec)
	require.NotEmpty(t, entries)
	assert.Equal(t, casebook.AuditAuthorizationAdded, entries[0].Action)
	assert.Equal(t, worker, entries[0].Actor)
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestEntries_ListFilterDelete(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.seed()

	rec := s.do(http.MethodPost, "/api/entries", worker, map[string]any{
		"date": "2025-02-04", "serviceType": "PTSV",
		"startTime": "09:00", "endTime": "10:00",
		"familyDirectoryKey": "fam-other",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/api/entries", worker, nil)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 2)

	rec = s.do(http.MethodGet, "/api/entries?profile_id="+id, worker, nil)
	mine := decodeBody[[]map[string]any](t, rec)
	require.Len(t, mine, 1)

	rec = s.do(http.MethodDelete, "/api/entries/"+mine[0]["id"].(string), worker, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/entries?profile_id="+id, worker, nil)
	assert.Empty(t, decodeBody[[]map[string]any](t, rec))

	rec = s.do(http.MethodDelete, "/api/entries/"+mine[0]["id"].(string), worker, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
