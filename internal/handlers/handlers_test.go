package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pileworks/bom-service/config"
	"github.com/pileworks/bom-service/internal/extract"
	"github.com/pileworks/bom-service/internal/kvstore"
	"github.com/pileworks/bom-service/internal/metrics"
	"github.com/pileworks/bom-service/internal/session"
	"github.com/pileworks/bom-service/internal/storage"
	"github.com/rs/zerolog"
)

// setupHandlers wires the handler dependencies over in-memory stores and
// returns the kv store for direct inspection.
func setupHandlers(t *testing.T, capacityBytes int) *kvstore.Memory {
	t.Helper()

	store := kvstore.NewMemory(capacityBytes)
	logger := zerolog.Nop()
	gw := session.NewGateway(store, logger)

	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.MaxUploadMB = 50
	cfg.Server.MaxConcurrent = 4
	cfg.Session.Store = "memory"
	cfg.Extraction.TargetSheet = "Piling Information"
	cfg.Extraction.EmptyStreakLimit = 25
	cfg.Grading.TemplatesDir = t.TempDir()

	Init(cfg, gw, local, metrics.NewRecorder())
	return store
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", HealthCheck)
	r.POST("/api/bom/upload", Upload)
	r.POST("/api/bom/remap", Remap)
	r.GET("/api/bom/points", Points)
	r.GET("/api/bom/session", GetSession)
	r.POST("/api/grading/fill", FillGrading)
	r.DELETE("/internal/admin/sessions/:id", DeleteSession)
	return r
}

// buildSurveyXLSX builds a workbook shaped like a typical survey BOM: title
// rows above the header, the header on row 3, and data in columns C/D/E/H.
func buildSurveyXLSX(t *testing.T) []byte {
	t.Helper()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Piling Information"))

	rows := [][]any{
		{"", "", "Project BOM"},
		nil,
		{"", "", "Pole", "X", "Y", "", "", "Z Terrain Enter"},
		{"", "", "P-1", "100.5", "200.5", "alt-1", "", "300.5"},
		{"", "", "P-2", "101", "201", "alt-2", "", "301"},
		{"", "", "P-3", "102", "202", "alt-3", "", "302"},
	}
	for i, row := range rows {
		if row == nil {
			continue
		}
		require.NoError(t, f.SetSheetRow("Piling Information", fmt.Sprintf("A%d", i+1), &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func uploadRequest(t *testing.T, content []byte, filename string, fields map[string]string, sessionID string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/bom/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	return req
}

func doJSON(t *testing.T, router *gin.Engine, method, url string, body any, sessionID string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadRemapPointsFlow(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	// Upload with the real coordinate columns.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, buildSurveyXLSX(t), "survey.xlsx",
		map[string]string{"pole": "C", "x": "D", "y": "E", "z": "H"}, ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var up UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	assert.NotEmpty(t, up.SessionID)
	assert.Equal(t, "Piling Information", up.SheetName)
	assert.Equal(t, 3, up.Rows)
	assert.Equal(t, 3, up.StartOffset)
	assert.False(t, up.PersistWarning)
	require.NotNil(t, up.Columns)
	assert.Equal(t, []string{"300.5", "301", "302"}, up.Columns.Z)

	// Remap z onto the altitude column; no header check happens.
	w = doJSON(t, router, http.MethodPost, "/api/bom/remap",
		RemapRequest{Pole: "C", X: "D", Y: "E", Z: "F"}, up.SessionID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rm UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rm))
	assert.Equal(t, up.SessionID, rm.SessionID)
	assert.Equal(t, 3, rm.StartOffset)
	assert.Equal(t, []string{"alt-1", "alt-2", "alt-3"}, rm.Columns.Z)

	// Points payload reflects the remapped columns.
	w = doJSON(t, router, http.MethodGet, "/api/bom/points", nil, up.SessionID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var pts struct {
		SheetName string `json:"sheetName"`
		Points    []struct {
			X     float64 `json:"x"`
			Y     float64 `json:"y"`
			Label string  `json:"label"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pts))
	assert.Equal(t, "Piling Information", pts.SheetName)
	require.Len(t, pts.Points, 3)
	assert.Equal(t, 100.5, pts.Points[0].X)
	assert.Equal(t, "P-1", pts.Points[0].Label)
}

func TestUploadInvalidLetters(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, buildSurveyXLSX(t), "survey.xlsx",
		map[string]string{"pole": "7", "x": "B", "y": "C", "z": "D"}, ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, strings.Count(w.Body.String(), "use A-Z"),
		"the letter instruction appears exactly once")
}

func TestUploadHeaderNotFound(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	// Default letters A-D point at the empty leading columns.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, buildSurveyXLSX(t), "survey.xlsx", nil, ""))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "pole=A")
}

func TestUploadSheetNotFound(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Alpha"))
	_, err := f.NewSheet("Beta")
	require.NoError(t, err)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, buf.Bytes(), "other.xlsx", nil, ""))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "worksheet not found")
}

func TestUploadCSVFallsBackToSingleSheet(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	csv := "Pole,X,Y,Z\nP-1,1,2,3\nP-2,4,5,6\n"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, []byte(csv), "export.csv", nil, ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var up UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	assert.Equal(t, "export", up.SheetName)
	assert.Equal(t, 2, up.Rows)
	assert.Equal(t, 1, up.StartOffset)
}

func TestUploadPersistWarning(t *testing.T) {
	setupHandlers(t, 64) // too small for the column entries
	router := newRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, buildSurveyXLSX(t), "survey.xlsx",
		map[string]string{"pole": "C", "x": "D", "y": "E", "z": "H"}, ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var up UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	assert.True(t, up.PersistWarning, "tiny store must surface a persist warning")
	assert.Equal(t, 3, up.Rows, "extraction result is unaffected by cache failures")
}

func TestRemapWithoutSession(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	w := doJSON(t, router, http.MethodPost, "/api/bom/remap",
		RemapRequest{Pole: "A", X: "B", Y: "C", Z: "D"}, "no-such-session")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/bom/remap",
		RemapRequest{Pole: "A", X: "B", Y: "C", Z: "D"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemapReadsSessionUnderLock(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, buildSurveyXLSX(t), "survey.xlsx",
		map[string]string{"pole": "C", "x": "D", "y": "E", "z": "H"}, ""))
	require.Equal(t, http.StatusOK, w.Code)

	var up UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))

	// Hold the session lock the way an in-flight upload does.
	unlock := lockSession(up.SessionID)

	b, err := json.Marshal(RemapRequest{Pole: "A", X: "B", Y: "C", Z: "D"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/bom/remap", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SessionHeader, up.SessionID)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		done <- rec
	}()

	// While the remap is queued behind the lock, replace the upload and
	// its persisted session, as the lock-holding upload does before
	// releasing.
	time.Sleep(20 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, blobs.DeletePrefix(ctx, storage.UploadPrefix(up.SessionID)))
	csv := "Pole,X,Y,Z\nP-9,9,8,7\n"
	require.NoError(t, blobs.Put(ctx,
		storage.BuildUploadKey(up.SessionID, "replacement.csv"), []byte(csv), nil))
	newSess := &session.Session{
		ID:          up.SessionID,
		FileName:    "replacement.csv",
		SheetName:   "replacement",
		Letters:     session.Letters{Pole: "A", X: "B", Y: "C", Z: "D"},
		StartOffset: 1,
	}
	newRes := &extract.Result{
		SheetName:   "replacement",
		Pole:        []any{"P-9"},
		X:           []string{"9"},
		Y:           []string{"8"},
		Z:           []string{"7"},
		StartOffset: 1,
	}
	require.True(t, gateway.Save(ctx, newSess, newRes))

	unlock()

	rec := <-done
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rm UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rm))
	assert.Equal(t, 1, rm.StartOffset, "remap must use the offset persisted by the replacing upload")
	assert.Equal(t, []string{"7"}, rm.Columns.Z)
}

func TestPointsReextractsPartialSession(t *testing.T) {
	store := setupHandlers(t, 0)
	router := newRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, buildSurveyXLSX(t), "survey.xlsx",
		map[string]string{"pole": "C", "x": "D", "y": "E", "z": "H"}, ""))
	require.Equal(t, http.StatusOK, w.Code)

	var up UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))

	// Drop one cached column; the session becomes partial and points must
	// re-extract from the stored upload.
	require.NoError(t, store.Delete(context.Background(),
		"session:"+up.SessionID+":columns:pole"))

	w = doJSON(t, router, http.MethodGet, "/api/bom/session", nil, up.SessionID)
	require.Equal(t, http.StatusOK, w.Code)
	var sr SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sr))
	assert.True(t, sr.NeedsReextract)

	w = doJSON(t, router, http.MethodGet, "/api/bom/points", nil, up.SessionID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var pts struct {
		Points []json.RawMessage `json:"points"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pts))
	assert.Len(t, pts.Points, 3)
}

func TestPointsMissingSession(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	w := doJSON(t, router, http.MethodGet, "/api/bom/points", nil, "no-such-session")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSessionRemovesEverything(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, buildSurveyXLSX(t), "survey.xlsx",
		map[string]string{"pole": "C", "x": "D", "y": "E", "z": "H"}, ""))
	require.Equal(t, http.StatusOK, w.Code)

	var up UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))

	w = doJSON(t, router, http.MethodDelete, "/internal/admin/sessions/"+up.SessionID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/bom/session", nil, up.SessionID)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFillGradingEndpoint(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	// Plant an XTR template in the configured directory.
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Inputs"))
	headers := []any{"Points", "Easting", "Northing", "Elevation", "Description"}
	require.NoError(t, f.SetSheetRow("Inputs", "A1", &headers))
	require.NoError(t, f.SaveAs(cfg.Grading.TemplatesDir+"/XTR.xlsm"))

	body := map[string]any{
		"tracker_type": "xtr",
		"pole":         []any{"P-1"},
		"x":            []any{100.0},
		"y":            []any{200.0},
		"z":            []any{300.0},
	}
	w := doJSON(t, router, http.MethodPost, "/api/grading/fill", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "GradingTool_Filled_XTR.xlsm")

	filled, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer filled.Close()
	got, err := filled.GetCellValue("Inputs", "B2")
	require.NoError(t, err)
	assert.Equal(t, "100", got)
}

func TestHealthCheckWithoutDatabase(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	w := doJSON(t, router, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory", resp.SessionStore)
	assert.Equal(t, "not configured", resp.Database)
}

func TestFillGradingBadTracker(t *testing.T) {
	setupHandlers(t, 0)
	router := newRouter()

	body := map[string]any{
		"tracker_type": "tilted",
		"pole":         []any{"P-1"},
		"x":            []any{1.0}, "y": []any{1.0}, "z": []any{1.0},
	}
	w := doJSON(t, router, http.MethodPost, "/api/grading/fill", body, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "tracker_type")
}
