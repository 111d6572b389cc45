package server

import (
	"io"
	"net/http"
	"sync"

	"example.com/bmffgate/internal/report"
)

// flushWriter pushes every write to the client promptly when the response
// supports http.Flusher.
type flushWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
}

func (w *flushWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.writer.Write(p)
	if err == nil && w.flusher != nil {
		w.flusher.Flush()
	}
	return n, err
}

// NewNDJSONWriter wraps the ResponseWriter in a report stream writer that
// flushes after every line.
func NewNDJSONWriter(w http.ResponseWriter) *report.StreamWriter {
	fw := &flushWriter{writer: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return report.NewStreamWriter(fw)
}
