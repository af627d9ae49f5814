package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// stripIsolationHeaders drops cross-origin isolation headers set anywhere
// downstream before the response is written.
type stripIsolationHeaders struct {
	gin.ResponseWriter
}

func (w *stripIsolationHeaders) strip() {
	h := w.ResponseWriter.Header()
	h.Del("Cross-Origin-Opener-Policy")
	h.Del("Cross-Origin-Embedder-Policy")
}

func (w *stripIsolationHeaders) WriteHeader(code int) {
	w.strip()
	w.ResponseWriter.WriteHeader(code)
}

func (w *stripIsolationHeaders) Write(b []byte) (int, error) {
	w.strip()
	return w.ResponseWriter.Write(b)
}

func (w *stripIsolationHeaders) WriteString(s string) (int, error) {
	w.strip()
	return w.ResponseWriter.WriteString(s)
}

// NoIsolationHeaders removes Cross-Origin-Opener-Policy and
// Cross-Origin-Embedder-Policy from every response so the frontend can embed
// served images.
func NoIsolationHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &stripIsolationHeaders{ResponseWriter: c.Writer}
		c.Next()
	}
}

// PublicAsset marks static responses as loadable from any origin
func PublicAsset() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Cross-Origin-Resource-Policy", "cross-origin")
		c.Next()
	}
}

// HideDotFiles answers 404 for any path segment starting with a dot, which
// keeps in-flight staged uploads out of static directories.
func HideDotFiles() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, segment := range strings.Split(c.Request.URL.Path, "/") {
			if strings.HasPrefix(segment, ".") {
				c.AbortWithStatus(http.StatusNotFound)
				return
			}
		}
		c.Next()
	}
}
