package cache

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// KeyFunc derives the cache key of a request.
type KeyFunc func(c *gin.Context) string

// Observer is told about every hit and miss.
type Observer interface {
	CacheHit(namespace string)
	CacheMiss(namespace string)
}

// PageCache serves GET requests from the store and records successful HTML
// responses into it.
func PageCache(store *Store, namespace string, key KeyFunc, observer Observer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		k := key(c)
		if cached, found := store.Read(namespace, k); found {
			if observer != nil {
				observer.CacheHit(namespace)
			}
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "text/html; charset=utf-8", cached)
			c.Abort()
			return
		}

		if observer != nil {
			observer.CacheMiss(namespace)
		}
		c.Header("X-Cache", "MISS")

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		if c.Writer.Status() == http.StatusOK &&
			strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/html") {
			if err := store.Write(namespace, k, writer.body.Bytes()); err != nil {
				log.WithError(err).WithField("namespace", namespace).Warn("page cache write failed")
			}
		}
	}
}
