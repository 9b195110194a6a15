package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pileworks/bom-service/config"
	"github.com/pileworks/bom-service/internal/columns"
	"github.com/pileworks/bom-service/internal/extract"
	"github.com/pileworks/bom-service/internal/metrics"
	"github.com/pileworks/bom-service/internal/session"
	"github.com/pileworks/bom-service/internal/storage"
	"github.com/pileworks/bom-service/internal/workbook"
)

// SessionHeader carries the client's session id. Upload generates one when
// the header is absent.
const SessionHeader = "X-Session-ID"

// Global handler dependencies (initialized by the application)
var (
	cfg       *config.Config
	extractor *extract.Extractor
	gateway   *session.Gateway
	blobs     storage.Blobs
	recorder  *metrics.Recorder

	// extractSem bounds concurrent decode+extract work across sessions.
	extractSem *semaphore.Weighted

	// sessionLocks serializes in-flight extraction per session so a remap
	// cannot race the upload that created the session.
	sessionLocks sync.Map // session id -> *sync.Mutex
)

// Init wires the handler dependencies.
// This should be called during application startup.
func Init(c *config.Config, gw *session.Gateway, b storage.Blobs, rec *metrics.Recorder) {
	cfg = c
	gateway = gw
	blobs = b
	recorder = rec
	extractor = extract.New(extract.Options{EmptyStreakLimit: c.Extraction.EmptyStreakLimit})

	maxConcurrent := c.Server.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	extractSem = semaphore.NewWeighted(maxConcurrent)
}

func lockSession(id string) func() {
	v, _ := sessionLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// UploadResponse is returned after a successful upload extraction.
type UploadResponse struct {
	SessionID      string          `json:"sessionId"`
	FileName       string          `json:"fileName"`
	SheetName      string          `json:"sheetName"`
	Rows           int             `json:"rows"`
	StartOffset    int             `json:"startOffset"`
	Letters        session.Letters `json:"letters"`
	Columns        *extract.Result `json:"columns"`
	PersistWarning bool            `json:"persistWarning,omitempty"`
}

// Upload handles a BOM file upload and runs header-validated extraction.
// POST /api/bom/upload
// Multipart form: file (required), sheet, pole, x, y, z, frame, tracker.
func Upload(c *gin.Context) {
	started := time.Now()

	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	if maxBytes := cfg.Server.MaxUploadMB * 1024 * 1024; maxBytes > 0 && fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds the %dMB upload limit", cfg.Server.MaxUploadMB),
		})
		return
	}

	letters := session.Letters{
		Pole:  formValueDefault(c, "pole", "A"),
		X:     formValueDefault(c, "x", "B"),
		Y:     formValueDefault(c, "y", "C"),
		Z:     formValueDefault(c, "z", "D"),
		Frame: strings.TrimSpace(c.PostForm("frame")),
	}
	// Letters are validated before any sheet data is touched.
	mapping, err := extract.MappingFromLetters(letters.Pole, letters.X, letters.Y, letters.Z, letters.Frame)
	if err != nil {
		respondExtractionError(c, err, letters)
		return
	}

	targetSheet := strings.TrimSpace(c.PostForm("sheet"))
	if targetSheet == "" {
		targetSheet = cfg.Extraction.TargetSheet
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}

	ctx := c.Request.Context()
	if err := extractSem.Acquire(ctx, 1); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server busy, try again"})
		return
	}
	defer extractSem.Release(1)

	unlock := lockSession(sessionID)
	defer unlock()

	recorder.IncrementActiveExtractions()
	defer recorder.DecrementActiveExtractions()

	wb, err := workbook.Decode(content, fileHeader.Filename)
	if err != nil {
		recorder.RecordExtractionError("decode")
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("could not read file: %v", err)})
		return
	}

	sheetName, err := resolveSheet(wb, targetSheet)
	if err != nil {
		respondExtractionError(c, err, letters)
		return
	}
	sheet, _ := wb.Sheet(sheetName)

	result, err := extractor.Extract(sheet.Rows, mapping)
	if err != nil {
		respondExtractionError(c, err, letters)
		return
	}
	result.SheetName = sheetName

	// Keep the raw bytes so remap can re-decode without a re-upload. A new
	// upload replaces the previous blob for the session.
	key := storage.BuildUploadKey(sessionID, fileHeader.Filename)
	if err := blobs.DeletePrefix(ctx, storage.UploadPrefix(sessionID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store uploaded file"})
		return
	}
	if err := blobs.Put(ctx, key, content, &storage.Metadata{
		OriginalName: fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		SessionID:    sessionID,
		UploadedAt:   time.Now(),
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store uploaded file"})
		return
	}

	sess := &session.Session{
		ID:          sessionID,
		FileName:    fileHeader.Filename,
		SheetName:   sheetName,
		TrackerType: strings.TrimSpace(c.PostForm("tracker")),
		Letters:     letters,
		StartOffset: result.StartOffset,
	}
	saved := gateway.Save(ctx, sess, result)
	if !saved {
		recorder.RecordPersistWarning()
	}

	recorder.RecordUpload(fileKind(fileHeader.Filename))
	recorder.RecordRowsExtracted(result.Len())
	recorder.RecordExtractionDuration("upload", time.Since(started))

	c.JSON(http.StatusOK, UploadResponse{
		SessionID:      sessionID,
		FileName:       fileHeader.Filename,
		SheetName:      sheetName,
		Rows:           result.Len(),
		StartOffset:    result.StartOffset,
		Letters:        letters,
		Columns:        result,
		PersistWarning: !saved,
	})
}

// RemapRequest carries the replacement column letters.
type RemapRequest struct {
	Pole  string `json:"pole" binding:"required"`
	X     string `json:"x" binding:"required"`
	Y     string `json:"y" binding:"required"`
	Z     string `json:"z" binding:"required"`
	Frame string `json:"frame,omitempty"`
}

// Remap re-extracts the stored upload with new column letters, reusing the
// start offset learned on upload without re-checking headers.
// POST /api/bom/remap
func Remap(c *gin.Context) {
	started := time.Now()

	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Session-ID header is required"})
		return
	}

	var req RemapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	letters := session.Letters{Pole: req.Pole, X: req.X, Y: req.Y, Z: req.Z, Frame: req.Frame}
	mapping, err := extract.MappingFromLetters(letters.Pole, letters.X, letters.Y, letters.Z, letters.Frame)
	if err != nil {
		respondExtractionError(c, err, letters)
		return
	}

	ctx := c.Request.Context()
	if err := extractSem.Acquire(ctx, 1); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server busy, try again"})
		return
	}
	defer extractSem.Release(1)

	unlock := lockSession(sessionID)
	defer unlock()

	recorder.IncrementActiveExtractions()
	defer recorder.DecrementActiveExtractions()

	// The session must be read under the lock: an in-flight upload for the
	// same id replaces both the blob and the persisted offset, and a remap
	// that captured the offset earlier would apply it to the new file.
	restored, found := gateway.Load(ctx, sessionID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found, upload the file first"})
		return
	}

	content, fileName, err := loadUpload(c, sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "uploaded file no longer available, upload it again"})
		return
	}

	wb, err := workbook.Decode(content, fileName)
	if err != nil {
		recorder.RecordExtractionError("decode")
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("could not read file: %v", err)})
		return
	}

	sheet, ok := wb.Sheet(restored.Session.SheetName)
	if !ok {
		respondExtractionError(c, workbook.ErrSheetNotFound, letters)
		return
	}

	result, err := extractor.ExtractFrom(sheet.Rows, mapping, restored.Session.StartOffset)
	if err != nil {
		respondExtractionError(c, err, letters)
		return
	}
	result.SheetName = restored.Session.SheetName

	sess := restored.Session
	sess.Letters = letters
	sess.StartOffset = result.StartOffset
	saved := gateway.Save(ctx, &sess, result)
	if !saved {
		recorder.RecordPersistWarning()
	}

	recorder.RecordRemap()
	recorder.RecordRowsExtracted(result.Len())
	recorder.RecordExtractionDuration("remap", time.Since(started))

	c.JSON(http.StatusOK, UploadResponse{
		SessionID:      sessionID,
		FileName:       sess.FileName,
		SheetName:      result.SheetName,
		Rows:           result.Len(),
		StartOffset:    result.StartOffset,
		Letters:        letters,
		Columns:        result,
		PersistWarning: !saved,
	})
}

// resolveSheet matches the target label against the workbook's sheets. A
// single-sheet file (typically CSV) falls back to that sheet when the label
// does not match anything.
func resolveSheet(wb *workbook.Workbook, target string) (string, error) {
	names := wb.SheetNames()
	name, err := workbook.Resolve(names, target)
	if err != nil {
		if errors.Is(err, workbook.ErrSheetNotFound) && len(names) == 1 {
			return names[0], nil
		}
		return "", err
	}
	return name, nil
}

// loadUpload fetches the stored upload bytes for a session.
func loadUpload(c *gin.Context, sessionID string) ([]byte, string, error) {
	ctx := c.Request.Context()
	keys, err := blobs.List(ctx, storage.UploadPrefix(sessionID))
	if err != nil || len(keys) == 0 {
		return nil, "", fmt.Errorf("no upload stored for session %s", sessionID)
	}
	content, err := blobs.Get(ctx, keys[0])
	if err != nil {
		return nil, "", err
	}
	return content, path.Base(keys[0]), nil
}

func formValueDefault(c *gin.Context, field, fallback string) string {
	v := strings.TrimSpace(c.PostForm(field))
	if v == "" {
		return fallback
	}
	return v
}

func fileKind(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".csv", ".txt":
		return "csv"
	case ".zip":
		return "zip"
	default:
		return "other"
	}
}

// respondExtractionError maps extraction errors to user-facing responses.
func respondExtractionError(c *gin.Context, err error, letters session.Letters) {
	switch {
	case errors.Is(err, columns.ErrInvalidColumnLetter):
		// The wrapped message already carries the "use A-Z" instruction.
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workbook.ErrSheetNotFound):
		recorder.RecordExtractionError("sheet_not_found")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "worksheet not found in the uploaded file",
		})
	case errors.Is(err, extract.ErrEmptySheet):
		recorder.RecordExtractionError("empty_sheet")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "the selected worksheet has no rows",
		})
	case errors.Is(err, extract.ErrHeaderNotFound):
		recorder.RecordExtractionError("header_not_found")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": fmt.Sprintf(
				"no header row found for columns pole=%s x=%s y=%s z=%s; check the column letters",
				letters.Pole, letters.X, letters.Y, letters.Z,
			),
		})
	case errors.Is(err, extract.ErrNoDataRows):
		recorder.RecordExtractionError("no_data_rows")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "no data rows found below the header",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
