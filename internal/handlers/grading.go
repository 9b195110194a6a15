package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pileworks/bom-service/internal/grading"
)

// FillGrading fills a grading-tool template with extracted survey columns
// and returns the workbook as a download.
// POST /api/grading/fill
func FillGrading(c *gin.Context) {
	var req grading.FillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, fileName, err := grading.Fill(cfg.Grading.TemplatesDir, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, grading.ContentType, content)
}
