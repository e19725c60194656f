// Package gzippedhttp transparently decompresses gzip request bodies and
// compresses responses for clients that accept gzip.
package gzippedhttp

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

var gzipWriterPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(io.Discard)
	},
}

// CompressedReader decompresses a gzip request body.
type CompressedReader struct {
	r  io.ReadCloser
	zr *gzip.Reader
}

// NewCompressedReader wraps a gzip-compressed body.
func NewCompressedReader(requestBody io.ReadCloser) (*CompressedReader, error) {
	zr, err := gzip.NewReader(requestBody)
	if err != nil {
		return nil, err
	}

	return &CompressedReader{r: requestBody, zr: zr}, nil
}

// Read reads decompressed data.
func (c *CompressedReader) Read(p []byte) (int, error) {
	return c.zr.Read(p)
}

// Close closes both the gzip reader and the underlying body.
func (c *CompressedReader) Close() error {
	if err := c.r.Close(); err != nil {
		return err
	}

	return c.zr.Close()
}

// CompressedResponseWriter gzips everything written to the response.
type CompressedResponseWriter struct {
	w  http.ResponseWriter
	zw *gzip.Writer
}

// NewCompressedResponseWriter wraps a response writer with a pooled gzip
// writer.
func NewCompressedResponseWriter(w http.ResponseWriter) *CompressedResponseWriter {
	zw := gzipWriterPool.Get().(*gzip.Writer)
	zw.Reset(w)

	return &CompressedResponseWriter{w: w, zw: zw}
}

// Header exposes the wrapped writer's headers.
func (c *CompressedResponseWriter) Header() http.Header {
	return c.w.Header()
}

// Write compresses p into the response.
func (c *CompressedResponseWriter) Write(p []byte) (int, error) {
	return c.zw.Write(p)
}

// WriteHeader sends the status code with the gzip content encoding set.
func (c *CompressedResponseWriter) WriteHeader(statusCode int) {
	c.w.Header().Set("Content-Encoding", "gzip")
	c.w.WriteHeader(statusCode)
}

// Close flushes the gzip stream and returns the writer to the pool.
func (c *CompressedResponseWriter) Close() error {
	err := c.zw.Close()
	gzipWriterPool.Put(c.zw)

	return err
}

// Middleware decompresses gzip request bodies and gzips responses when the
// client sends Accept-Encoding: gzip.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			reader, err := NewCompressedReader(r.Body)
			if err != nil {
				http.Error(w, "malformed gzip request body", http.StatusBadRequest)
				return
			}
			defer reader.Close()
			r.Body = reader
		}

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		writer := NewCompressedResponseWriter(w)
		defer writer.Close()

		next.ServeHTTP(writer, r)
	})
}
