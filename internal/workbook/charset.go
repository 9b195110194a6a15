package workbook

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Encoding represents a text encoding for delimited BOM exports. Survey
// tooling on Windows commonly emits Windows-1250/ISO-8859-2 CSVs.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1250 Encoding = "windows-1250"
	EncodingISO88592    Encoding = "iso-8859-2"
)

// DetectEncoding detects the encoding of a byte buffer.
func DetectEncoding(data []byte) Encoding {
	// UTF-8 BOM wins outright.
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return EncodingUTF8
	}

	if utf8.Valid(data) {
		return EncodingUTF8
	}

	return EncodingWindows1250
}

// DecodeText converts a byte buffer from the specified encoding to a UTF-8
// string. Valid UTF-8 input is returned as-is regardless of the requested
// encoding, which prevents double-decoding mislabeled files.
func DecodeText(data []byte, enc Encoding) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	var cm *charmap.Charmap
	switch enc {
	case EncodingISO88592:
		cm = charmap.ISO8859_2
	default:
		cm = charmap.Windows1250
	}

	reader := transform.NewReader(strings.NewReader(string(data)), cm.NewDecoder())
	result, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(result), nil
}
