// ABOUTME: Response handler dispatch by content-type, and binary response storage
// ABOUTME: Mirrors §4.6 step 4: JSON object/array/primitive, or delegated binary storage

package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// binaryMediaTypes are the known binary content types routed to response
// storage instead of JSON parsing (§4.6 step 4).
var binaryMediaTypes = map[string]bool{
	"application/pdf":  true,
	"image/png":        true,
	"image/jpeg":       true,
	"image/jpg":        true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"application/vnd.ms-excel":                                               true,
	"application/msword":                                                     true,
	"application/octet-stream":                                               true,
}

// defaultBinaryThreshold is the size, in bytes, below which a binary
// response is inlined as base64 rather than written to a temp file (§4.6).
const defaultBinaryThreshold = 512 * 1024

// ResponseStorage decides how to persist a binary response body.
type ResponseStorage struct {
	Threshold int
	TempDir   string
}

// NewResponseStorage builds a ResponseStorage with the default 512 KiB
// threshold.
func NewResponseStorage() *ResponseStorage {
	return &ResponseStorage{Threshold: defaultBinaryThreshold, TempDir: os.TempDir()}
}

// Store returns the output mapping for a binary response body per §4.6:
// {content_type, encoding:"base64"|"file", data?|file_path?, size_bytes}.
func (rs *ResponseStorage) Store(contentType string, body []byte) (map[string]any, error) {
	out := map[string]any{
		"content_type": contentType,
		"size_bytes":   len(body),
	}
	if len(body) <= rs.Threshold {
		out["encoding"] = "base64"
		out["data"] = base64.StdEncoding.EncodeToString(body)
		return out, nil
	}

	path := fmt.Sprintf("%s/%s.bin", strings.TrimRight(rs.TempDir, "/"), uuid.NewString())
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return nil, err
	}
	out["encoding"] = "file"
	out["file_path"] = path
	return out, nil
}

// isBinaryMediaType reports whether mediaType (already stripped of
// parameters) is a known binary type.
func isBinaryMediaType(mediaType string) bool {
	return binaryMediaTypes[mediaType]
}

// parseMediaType strips ";charset=..." and similar parameters.
func parseMediaType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(strings.ToLower(contentType))
}

// buildJSONOutput implements the JSON-shape rules of §4.6 step 4: object
// as-is, array wrapped as {"data": [...]}, primitive wrapped as
// {"data": value}.
func buildJSONOutput(body []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	default:
		return map[string]any{"data": t}, nil
	}
}
