package workbook

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	// maxZipEntrySize caps a single decompressed entry to guard against
	// zip bombs.
	maxZipEntrySize = 100 * 1024 * 1024
)

var zipSkipPatterns = []string{
	"__MACOSX",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// decodeZip expands a ZIP archive in memory and decodes the first contained
// spreadsheet (.xlsx, .xlsm, or .csv).
func decodeZip(content []byte, filename string) (*Workbook, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP: %w", err)
	}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		name := path.Clean(file.Name)
		if strings.HasPrefix(name, "..") || path.IsAbs(name) {
			// Zip-slip style entry; nothing is written to disk here, but
			// skip it anyway.
			continue
		}
		if shouldSkipZipEntry(name) {
			continue
		}

		switch strings.ToLower(path.Ext(name)) {
		case ".xlsx", ".xlsm", ".csv":
		default:
			continue
		}

		if file.UncompressedSize64 > maxZipEntrySize {
			return nil, fmt.Errorf("ZIP entry %q exceeds maximum size", name)
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open ZIP entry %q: %w", name, err)
		}
		inner, err := io.ReadAll(io.LimitReader(rc, maxZipEntrySize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read ZIP entry %q: %w", name, err)
		}
		if len(inner) > maxZipEntrySize {
			return nil, fmt.Errorf("ZIP entry %q exceeds maximum size", name)
		}

		return Decode(inner, path.Base(name))
	}

	return nil, fmt.Errorf("%s contains no spreadsheet (.xlsx, .xlsm, or .csv)", filename)
}

func shouldSkipZipEntry(name string) bool {
	for _, pattern := range zipSkipPatterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}
