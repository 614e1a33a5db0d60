package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pensionhub/internal/aggregator"
	"pensionhub/internal/geo"
	"pensionhub/internal/importer"
	"pensionhub/internal/model"
	"pensionhub/internal/normalizer"
	"pensionhub/internal/parser"
	"pensionhub/internal/store"
)

const sampleCSV = "PPO No.,DOB,PSA,PDA,Bank,Branch,Pincode\n" +
	"P1,25569,Civil,Treasury,SBI,MG Road,110001\n" +
	"P2,25569,Civil,Treasury,PNB,MG Road,411001\n" +
	"P3,,Civil,Treasury,SBI,Camp,411001\n"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()

	s, err := store.Open(store.Options{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	logger, _ := test.NewNullLogger()
	now := func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	mapper := parser.NewMapper(parser.DefaultMinScore)
	det := parser.NewDetector(parser.BuiltinProfiles(), parser.DefaultProbeRows, mapper)
	norm := normalizer.New(geo.NewResolver(), normalizer.WithClock(now))

	h := NewHandler(Deps{
		Store:       s,
		Coordinator: importer.NewCoordinator(s, det, mapper, norm, logger, importer.Config{}),
		Detector:    det,
		Aggregator:  aggregator.New(s, logger),
		Logger:      logger,
		ExportDir:   t.TempDir(),
	})

	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	return r, s
}

func uploadRequest(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	return serve(r, httptest.NewRequest(http.MethodGet, path, nil))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func importSample(t *testing.T, r *gin.Engine) map[string]any {
	t.Helper()
	w := serve(r, uploadRequest(t, "/api/import", "sample.csv", sampleCSV, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)
}

func TestImport_SyncAndDuplicates(t *testing.T) {
	t.Parallel()

	r, _ := newTestServer(t)

	res := importSample(t, r)
	assert.Equal(t, true, res["success"])
	assert.EqualValues(t, 3, res["insertedRows"])
	assert.EqualValues(t, 0, res["duplicates"])

	res = importSample(t, r)
	assert.EqualValues(t, 0, res["insertedRows"])
	assert.EqualValues(t, 3, res["duplicates"])

	w := get(r, "/api/imports")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 2)

	batch := items[0].(map[string]any)["batchId"].(string)
	w = get(r, "/api/imports/"+batch)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/imports/missing").Code)
}

func TestImport_Errors(t *testing.T) {
	t.Parallel()

	r, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(""))
	assert.Equal(t, http.StatusBadRequest, serve(r, req).Code)

	w := serve(r, uploadRequest(t, "/api/import", "junk.csv", "foo,bar\n1,2\n3,4\n", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = serve(r, uploadRequest(t, "/api/import", "sample.csv", sampleCSV, map[string]string{"mapping": "{"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mapping := `{"pairs":[{"sourceColumn":"PPO No.","canonicalField":"salary"}]}`
	w = serve(r, uploadRequest(t, "/api/import", "sample.csv", sampleCSV, map[string]string{"mapping": mapping}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestImport_Stream(t *testing.T) {
	t.Parallel()

	r, _ := newTestServer(t)

	w := serve(r, uploadRequest(t, "/api/import", "sample.csv", sampleCSV, map[string]string{"stream": "true"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var types []string
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		types = append(types, ev["type"].(string))
	}
	require.NotEmpty(t, types)
	assert.Equal(t, importer.EventStart, types[0])
	assert.Equal(t, importer.EventDone, types[len(types)-1])
}

func TestDetect_NoWrites(t *testing.T) {
	t.Parallel()

	r, s := newTestServer(t)

	w := serve(r, uploadRequest(t, "/api/detect", "sample.csv", sampleCSV, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sheets := decode(t, w)["sheets"].([]any)
	require.Len(t, sheets, 1)

	n, err := s.CountPensioners(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSummariesAndPensioners(t *testing.T) {
	t.Parallel()

	r, _ := newTestServer(t)
	importSample(t, r)

	w := get(r, "/api/summaries/state?sort=total")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode(t, w)
	assert.Equal(t, "state", rep["dimension"])
	rows := rep["rows"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "MAHARASHTRA", rows[0].(map[string]any)["key1"])

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/summaries/planet").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/summaries/state?sort=size").Code)

	w = get(r, "/api/pensioners?state=maharashtra&limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	assert.EqualValues(t, 2, page["total"])

	w = get(r, "/api/pensioners/p1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DELHI", decode(t, w)["state"])
	assert.Equal(t, http.StatusNotFound, get(r, "/api/pensioners/NOPE").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/pensioners?verified=maybe").Code)

	w = get(r, "/api/crosstab?row=state&col=bank")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/crosstab?row=state&col=state").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/crosstab?row=state&col=salary").Code)

	w = get(r, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["totalPensioners"])
}

func TestRecomputeAndVerify(t *testing.T) {
	t.Parallel()

	r, _ := newTestServer(t)
	importSample(t, r)

	w := get(r, "/api/summaries/verify")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["consistent"])

	w = serve(r, httptest.NewRequest(http.MethodPost, "/api/summaries/recompute?dimension=state&dimension=bank", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, decode(t, w)["records"])

	w = serve(r, httptest.NewRequest(http.MethodPost, "/api/summaries/recompute?dimension=salary", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport(t *testing.T) {
	t.Parallel()

	r, _ := newTestServer(t)
	importSample(t, r)

	w := get(r, "/api/export/summaries?dimension=state")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=\"pension-summary-")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Overview", "By State"}, f.GetSheetList())
}

func TestExportStream_OneTimeDownload(t *testing.T) {
	t.Parallel()

	r, _ := newTestServer(t)
	importSample(t, r)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/api/export/stream?dimension=state", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var url string
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		line := strings.TrimPrefix(sc.Text(), "data: ")
		if line == sc.Text() {
			continue
		}
		var ev exportEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		if ev.Type == "done" {
			url = ev.Data.(map[string]any)["downloadUrl"].(string)
		}
	}
	require.True(t, strings.HasPrefix(url, "/api/export/download/"), url)

	w = get(r, url)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "pension-summary-state-")
	assert.Equal(t, http.StatusNotFound, get(r, url).Code)
}

func TestBuildExportContentDisposition(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC)
	want := "attachment; filename=\"pension-summary-20251203.xlsx\"; filename*=UTF-8''%E5%85%BB%E8%80%81%E9%87%91%E6%B1%87%E6%80%BB-2025-12-03.xlsx"
	assert.Equal(t, want, buildExportContentDisposition(at, nil))

	one := buildExportContentDisposition(at, []model.Dimension{model.DimBank})
	assert.Contains(t, one, "filename=\"pension-summary-bank-20251203.xlsx\"")
	two := buildExportContentDisposition(at, []model.Dimension{model.DimBank, model.DimState})
	assert.Contains(t, two, "filename=\"pension-summary-20251203.xlsx\"")
}

func TestArtifactShelf_ExpiryEvictsFile(t *testing.T) {
	t.Parallel()

	var evicted []string
	shelf := newArtifactShelf(time.Minute, func(a exportArtifact) { evicted = append(evicted, a.path) })
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	shelf.now = func() time.Time { return now }

	stale := shelf.shelve("/tmp/stale.xlsx", nil)
	now = now.Add(30 * time.Second)
	fresh := shelf.shelve("/tmp/fresh.xlsx", []model.Dimension{model.DimState})
	now = now.Add(45 * time.Second)

	_, ok := shelf.claim(stale)
	assert.False(t, ok)
	assert.Equal(t, []string{"/tmp/stale.xlsx"}, evicted)

	a, ok := shelf.claim(fresh)
	require.True(t, ok)
	assert.Equal(t, []model.Dimension{model.DimState}, a.dimensions)
	_, ok = shelf.claim(fresh)
	assert.False(t, ok)
}
