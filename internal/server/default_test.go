package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskimport/pkg/application"
	"github.com/iota-uz/taskimport/pkg/configuration"
)

func testConfiguration() *configuration.Configuration {
	return &configuration.Configuration{
		Actor:           configuration.ActorOptions{UserHeader: "X-Actor-User-Id", TeamHeader: "X-Actor-Team-Id"},
		CorsOrigins:     "http://localhost:3000",
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
		RateLimit:       configuration.RateLimitOptions{Enabled: true, GlobalRPS: 5, Storage: "memory"},
	}
}

func TestDefault_UnknownRouteIsJSON(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	app := application.New(&application.ApplicationOptions{Logger: logger})

	srv, err := Default(&DefaultOptions{Logger: logger, Configuration: testConfiguration(), Application: app})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "NOT_FOUND", body["code"])
	require.Equal(t, "req-42", body["meta"].(map[string]any)["request_id"])
}

func TestRateLimitMiddleware(t *testing.T) {
	logger := logrus.New()
	conf := testConfiguration()
	require.Len(t, RateLimitMiddleware(conf, logger), 2)

	conf.RateLimit.Enabled = false
	require.Empty(t, RateLimitMiddleware(conf, logger))
}
