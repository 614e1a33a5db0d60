package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pensionhub/internal/aggregator"
	"pensionhub/internal/api"
	"pensionhub/internal/config"
	"pensionhub/internal/geo"
	"pensionhub/internal/importer"
	"pensionhub/internal/normalizer"
	"pensionhub/internal/parser"
	"pensionhub/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	s, err := store.Open(store.Options{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "server.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	logger, _ := test.NewNullLogger()
	mapper := parser.NewMapper(parser.DefaultMinScore)
	det := parser.NewDetector(parser.BuiltinProfiles(), parser.DefaultProbeRows, mapper)
	h := api.NewHandler(api.Deps{
		Store:       s,
		Coordinator: importer.NewCoordinator(s, det, mapper, normalizer.New(geo.NewResolver()), logger, importer.Config{}),
		Detector:    det,
		Aggregator:  aggregator.New(s, logger),
		Logger:      logger,
	})

	cfg := config.DefaultConfig()
	cfg.Server.DevMode = true
	return NewServer(cfg, h, logger)
}

func TestServer_Routes(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/import", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	srv.http.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, srv.Run(ctx))
}
