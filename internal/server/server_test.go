package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iwvelando/trade-route/internal/client"
	"github.com/iwvelando/trade-route/internal/config"
	"github.com/iwvelando/trade-route/internal/session"
	"github.com/iwvelando/trade-route/pkg/testutil"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type testEnv struct {
	fake    *testutil.FakeOptimizer
	coord   *session.Coordinator
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := testutil.NewFakeOptimizer()
	t.Cleanup(fake.Close)

	coord := session.New(client.New(fake.URL, client.WithRetry(1, time.Millisecond)), zap.NewNop())
	cfg, err := NewConfig(config.ConsoleConfig{MaxUploadSize: "1K"})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	return &testEnv{fake: fake, coord: coord, handler: NewHandler(coord, cfg, zap.NewNop(), "test")}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) addEntry(t *testing.T, kind, body string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/form/"+kind, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("add %s: expected 201, got %d: %s", kind, rr.Code, rr.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode add response: %v", err)
	}
	id := created["id"]
	if body != "" {
		rr = e.do(t, http.MethodPut, "/api/form/"+kind+"/"+id, body)
		if rr.Code != http.StatusOK {
			t.Fatalf("update %s: expected 200, got %d: %s", kind, rr.Code, rr.Body.String())
		}
	}
	return id
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) session.View {
	t.Helper()
	var view session.View
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode view: %v", err)
	}
	return view
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"version":"test"`) {
		t.Fatalf("unexpected health response %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateFormRefreshesVocabulary(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPut, "/api/form", `{"cargo":500,"range":3,"filter":"Stanton"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	view := decodeView(t, rr)
	if view.Form.Cargo != 500 || view.Form.Range != 3 || view.Form.Stops != 2 {
		t.Errorf("unexpected form: %+v", view.Form)
	}
	if len(view.Vocabulary.Commodities) != 2 {
		t.Errorf("vocabulary not refreshed: %+v", view.Vocabulary)
	}
	if filters := env.fake.Filters(); len(filters) != 2 || filters[0] != "Stanton" {
		t.Errorf("filters = %v", filters)
	}
}

func TestUpdateFormRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(t, http.MethodPut, "/api/form", `{"speed":9}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestEntryLifecycle(t *testing.T) {
	env := newTestEnv(t)
	first := env.addEntry(t, "commodities", `{"name":"Gold","amount":40}`)
	second := env.addEntry(t, "commodities", `{"name":"Iron","amount":60}`)

	if rr := env.do(t, http.MethodDelete, "/api/form/commodities/"+first, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/form/commodities/"+first, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for removed id, got %d", rr.Code)
	}

	view := decodeView(t, env.do(t, http.MethodGet, "/api/state", ""))
	if len(view.Form.Commodities) != 1 || view.Form.Commodities[0].ID.String() != second || view.Form.Commodities[0].Name != "Iron" {
		t.Errorf("unexpected commodities: %+v", view.Form.Commodities)
	}
}

func TestEntryErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"Unknown kind add", http.MethodPost, "/api/form/ships", "", http.StatusNotFound},
		{"Unknown kind update", http.MethodPut, "/api/form/ships/0b4d5d3e-6c55-4c1a-9f0e-2d1f5d8e7a11", `{}`, http.StatusNotFound},
		{"Malformed id", http.MethodPut, "/api/form/locations/not-a-uuid", `{}`, http.StatusBadRequest},
		{"Missing id", http.MethodDelete, "/api/form/locations/0b4d5d3e-6c55-4c1a-9f0e-2d1f5d8e7a11", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := env.do(t, tt.method, tt.path, tt.body); rr.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestSubmitValidationFailure(t *testing.T) {
	env := newTestEnv(t)
	id := env.addEntry(t, "commodities", `{"name":"Unobtainium","amount":40}`)

	rr := env.do(t, http.MethodPost, "/api/submit", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp validationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := resp.Fields["commodities["+id+"].name"]; !ok {
		t.Errorf("expected field error for entry %s, got %v", id, resp.Fields)
	}
	if env.fake.Calls("/optimize") != 0 {
		t.Error("validation failure must not reach the optimizer")
	}
}

func TestSubmitAndFollowUps(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(t, http.MethodPut, "/api/form", `{"filter":"Station"}`); rr.Code != http.StatusOK {
		t.Fatalf("filter update failed: %d", rr.Code)
	}
	env.addEntry(t, "commodities", `{"name":"Gold","amount":50}`)
	env.addEntry(t, "locations", `{"name":"Station A"}`)

	if rr := env.do(t, http.MethodPost, "/api/blacklist", ""); rr.Code != http.StatusConflict {
		t.Fatalf("blacklist before plan: expected 409, got %d", rr.Code)
	}

	rr := env.do(t, http.MethodPost, "/api/submit", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"profit":"$300"`) {
		t.Errorf("report missing profit: %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/blacklist", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"added":2`) {
		t.Fatalf("blacklist: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/report.xlsx", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("workbook: expected 200, got %d", rr.Code)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("invalid workbook: %v", err)
	}
	defer func() { _ = wb.Close() }()
	if profit, _ := wb.GetCellValue("Plan", "B3"); profit != "$300" {
		t.Errorf("workbook profit = %q", profit)
	}
}

func TestSubmitServiceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.fake.FailOptimize(http.StatusInternalServerError, "no feasible route")

	rr := env.do(t, http.MethodPost, "/api/submit", "")
	if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), "no feasible route") {
		t.Fatalf("unexpected response %d: %s", rr.Code, rr.Body.String())
	}

	view := decodeView(t, env.do(t, http.MethodGet, "/api/state", ""))
	if view.Notification != "no feasible route" || view.Status != session.StatusFailure || view.Report != nil {
		t.Errorf("unexpected view after failure: %+v", view)
	}

	if rr := env.do(t, http.MethodDelete, "/api/notification", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("dismiss: expected 204, got %d", rr.Code)
	}
	if view := decodeView(t, env.do(t, http.MethodGet, "/api/state", "")); view.Notification != "" {
		t.Errorf("notification not dismissed: %q", view.Notification)
	}
	if rr := env.do(t, http.MethodGet, "/api/report.xlsx", ""); rr.Code != http.StatusConflict {
		t.Errorf("workbook without report: expected 409, got %d", rr.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/api/form", `{"cargo":321}`)

	rr := env.do(t, http.MethodGet, "/api/settings", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "scroute_settings.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	exported := rr.Body.String()

	env.do(t, http.MethodPut, "/api/form", `{"cargo":1}`)
	rr = env.do(t, http.MethodPost, "/api/settings", exported)
	if rr.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if view := decodeView(t, rr); view.Form.Cargo != 321 {
		t.Errorf("cargo = %d after import", view.Form.Cargo)
	}
}

func TestSettingsYAMLExport(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/settings?format=yaml", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "cargo: 696") {
		t.Fatalf("unexpected YAML export %d: %s", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "scroute_settings.yaml") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestSettingsImportErrors(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/settings", `{"cargo":"lots"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if view := decodeView(t, env.do(t, http.MethodGet, "/api/state", "")); view.Form.Cargo != 696 || view.Notification == "" {
		t.Errorf("unexpected view after failed import: %+v", view)
	}

	large := `{"filter":"` + strings.Repeat("x", 2048) + `"}`
	if rr := env.do(t, http.MethodPost, "/api/settings", large); rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/state", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Errorf("expected CORS headers, got none (status %d)", rr.Code)
	}
}
