package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pileworks/bom-service/internal/extract"
	"github.com/pileworks/bom-service/internal/plot"
	"github.com/pileworks/bom-service/internal/session"
	"github.com/pileworks/bom-service/internal/storage"
	"github.com/pileworks/bom-service/internal/workbook"
)

// SessionResponse is the restored session state. NeedsReextract is true
// when the cached columns or offset were absent or corrupt; the client (or
// the points endpoint) then re-extracts from the stored upload.
type SessionResponse struct {
	Session        session.Session `json:"session"`
	Columns        *extract.Result `json:"columns,omitempty"`
	NeedsReextract bool            `json:"needsReextract"`
}

// GetSession restores a persisted session.
// GET /api/bom/session
func GetSession(c *gin.Context) {
	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Session-ID header is required"})
		return
	}

	restored, found := gateway.Load(c.Request.Context(), sessionID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		Session:        restored.Session,
		Columns:        restored.Result,
		NeedsReextract: !restored.Complete,
	})
}

// Points returns the scatter payload for a session. A partially restored
// session falls back to re-extracting from the stored upload.
// GET /api/bom/points
func Points(c *gin.Context) {
	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Session-ID header is required"})
		return
	}

	ctx := c.Request.Context()
	restored, found := gateway.Load(ctx, sessionID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	result := restored.Result
	if !restored.Complete {
		var err error
		result, err = reextract(c, restored)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "session cache is incomplete and the upload could not be re-read; upload the file again",
			})
			return
		}
	}

	c.JSON(http.StatusOK, plot.Points(result))
}

// reextract rebuilds the extraction result from the stored upload using the
// session's letters and learned offset.
func reextract(c *gin.Context, restored *session.Restored) (*extract.Result, error) {
	sess := restored.Session
	mapping, err := extract.MappingFromLetters(
		sess.Letters.Pole, sess.Letters.X, sess.Letters.Y, sess.Letters.Z, sess.Letters.Frame)
	if err != nil {
		return nil, err
	}

	content, fileName, err := loadUpload(c, sess.ID)
	if err != nil {
		return nil, err
	}
	wb, err := workbook.Decode(content, fileName)
	if err != nil {
		return nil, err
	}
	sheet, ok := wb.Sheet(sess.SheetName)
	if !ok {
		return nil, workbook.ErrSheetNotFound
	}

	result, err := extractor.ExtractFrom(sheet.Rows, mapping, sess.StartOffset)
	if err != nil {
		return nil, err
	}
	result.SheetName = sess.SheetName
	return result, nil
}

// DeleteSession removes a persisted session and its uploaded files.
// DELETE /internal/admin/sessions/:id
func DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}

	ctx := c.Request.Context()
	if err := gateway.Delete(ctx, sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}
	if err := blobs.DeletePrefix(ctx, storage.UploadPrefix(sessionID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete uploaded files"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": sessionID})
}
