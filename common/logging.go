package common

import (
	"net"
	"os"
	"time"

	logrustash "github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SetupLogging configures the global logrus logger. A logstash hook is attached
// when LOGSTASH_ADDR is set and reachable.
func SetupLogging(cfg *Config) {
	log.SetOutput(os.Stdout)

	if gin.Mode() == gin.ReleaseMode {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogstashAddr == "" {
		return
	}
	conn, err := net.DialTimeout("tcp", cfg.LogstashAddr, 3*time.Second)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.LogstashAddr).Warn("logstash unreachable, shipping disabled")
		return
	}
	log.AddHook(logrustash.New(conn, logrustash.DefaultFormatter(log.Fields{"type": "yatube"})))
}

// RequestLogger logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"cache":   c.Writer.Header().Get("X-Cache"),
		})
		if userID, ok := c.Get("user_id"); ok {
			entry = entry.WithField("user_id", userID)
		}
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("request failed")
			return
		}
		entry.Info("request")
	}
}
