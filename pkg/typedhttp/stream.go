package typedhttp

import (
	"fmt"
	"io"
	"mime"
	"net/http"
)

// StreamEncoder writes a StreamingResponse as a file download.
type StreamEncoder struct{}

// NewStreamEncoder creates a new stream encoder.
func NewStreamEncoder() *StreamEncoder {
	return &StreamEncoder{}
}

// Encode copies resp.Stream to w. A non-empty Filename turns the body into
// an attachment.
func (e *StreamEncoder) Encode(w http.ResponseWriter, resp StreamingResponse, statusCode int) error {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = e.ContentType()
	}
	w.Header().Set("Content-Type", contentType)

	if resp.Filename != "" {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": resp.Filename}))
	}

	if resp.StatusCode != 0 {
		statusCode = resp.StatusCode
	}
	w.WriteHeader(statusCode)

	if resp.Stream == nil {
		return nil
	}
	if closer, ok := resp.Stream.(io.Closer); ok {
		defer closer.Close()
	}

	if _, err := io.Copy(w, resp.Stream); err != nil {
		return fmt.Errorf("stream response: %w", err)
	}

	return nil
}

// ContentType returns the fallback content type.
func (e *StreamEncoder) ContentType() string {
	return "application/octet-stream"
}
