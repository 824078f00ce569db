package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-gateway/internal/auth"
	"mcp-gateway/internal/config"
	"mcp-gateway/internal/health"
	"mcp-gateway/internal/logbus"
	"mcp-gateway/internal/model"
	"mcp-gateway/internal/pairing"
	"mcp-gateway/internal/registry"
	"mcp-gateway/internal/router"
	"mcp-gateway/internal/sandbox"
)

// newTestServer builds a fully wired Server plus an admin API key good
// for every permission tier.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	reg := registry.New()
	a := auth.New()
	s := NewServer(
		config.Config{Host: "127.0.0.1", Port: 0},
		reg,
		health.NewChecker(reg, 0),
		router.New(),
		a,
		logbus.New(),
		pairing.New(),
		sandbox.NewProvisioner(t.TempDir(), sandbox.PinTable{}),
	)

	key, err := a.CreateAPIKey("test-admin", []string{auth.PermAll})
	require.NoError(t, err)
	return s, key.Key
}

func doRequest(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_Public(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAPIRoutes_RequireAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/services", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterAndListTemplate(t *testing.T) {
	s, token := newTestServer(t)

	tpl := model.Template{
		Name:      "echo",
		Transport: model.TransportStdio,
		Command:   "echo",
	}
	rec := doRequest(t, s, http.MethodPost, "/api/templates", token, tpl)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/templates", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var templates []model.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &templates))
	require.Len(t, templates, 1)
	assert.Equal(t, "echo", templates[0].Name)
}

func TestDiagnoseTemplate_MissingCommand(t *testing.T) {
	s, token := newTestServer(t)

	tpl := model.Template{Name: "broken", Transport: model.TransportStdio}
	rec := doRequest(t, s, http.MethodPost, "/api/templates", token, tpl)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/templates/broken/diagnose", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{"command"}, body["missing"])
}

func TestCreateService_UnknownTemplate404s(t *testing.T) {
	s, token := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/services", token, map[string]any{
		"templateName": "nope",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateService_HTTPTransport_ThenRoute(t *testing.T) {
	s, token := newTestServer(t)

	tpl := model.Template{
		Name:      "weather",
		Transport: model.TransportHTTP,
		Endpoint:  "http://127.0.0.1:9/rpc",
	}
	rec := doRequest(t, s, http.MethodPost, "/api/templates", token, tpl)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/services", token, map[string]any{
		"templateName": "weather",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/route", token, map[string]any{
		"serviceGroup": "weather",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	decision, ok := body["routingDecision"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), decision["candidates"])
}

func TestRoute_NoCandidatesReturnsServiceUnavailable(t *testing.T) {
	s, token := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/route", token, map[string]any{
		"serviceGroup": "nothing-registered",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDeleteService_UnknownInstance404s(t *testing.T) {
	s, token := newTestServer(t)

	rec := doRequest(t, s, http.MethodDelete, "/api/services/does-not-exist", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAPIKey_ReturnsRawKeyOnce(t *testing.T) {
	s, token := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/auth/apikey", token, map[string]any{
		"name":        "ci",
		"permissions": []string{auth.PermRead},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		APIKey model.APIKey `json:"apiKey"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.APIKey.Key)
}
