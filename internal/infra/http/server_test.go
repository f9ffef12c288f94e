//go:build !integration

package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-relay-bot/internal/application"
	httpserver "telegram-relay-bot/internal/infra/http"
	"telegram-relay-bot/internal/infra/metrics"
)

type fixedState application.State

func (s fixedState) State() application.State { return application.State(s) }

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func TestRouter_Healthz(t *testing.T) {
	cases := []struct {
		state    application.State
		wantCode int
	}{
		{application.StatePolling, http.StatusOK},
		{application.StateConnecting, http.StatusServiceUnavailable},
		{application.StateStopped, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run("should report "+tc.state.String(), func(t *testing.T) {
			r := httpserver.NewRouter(fixedState(tc.state), newTestLogger())
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			var body struct {
				State string `json:"state"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.state.String(), body.State)
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	t.Run("should expose registered collectors", func(t *testing.T) {
		metrics.MustRegister()
		metrics.IncRelayed()
		r := httpserver.NewRouter(fixedState(application.StatePolling), newTestLogger())
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()

		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "relay_messages_relayed_total")
	})

	t.Run("should reject other methods", func(t *testing.T) {
		r := httpserver.NewRouter(fixedState(application.StatePolling), newTestLogger())
		req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
		rec := httptest.NewRecorder()

		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
