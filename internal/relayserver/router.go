package relayserver

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/snippet-relay/internal/config"
	"github.com/r9s-ai/snippet-relay/internal/relay"
	"github.com/r9s-ai/snippet-relay/internal/requestid"
	"github.com/r9s-ai/snippet-relay/internal/trafficdump"
	"github.com/r9s-ai/snippet-relay/internal/version"
)

func NewRouter(cfg *config.Config, svc *relay.Service, accessLogger *log.Logger, accessColor bool) *gin.Engine {
	r := gin.New()
	r.Use(requestIDMiddleware())
	if cfg.AccessLogEnabled() {
		r.Use(requestLoggerWithColor(accessLogger, accessColor))
	}
	r.Use(gin.Recovery())
	if cfg.TrafficDump.Enabled {
		r.Use(trafficDumpMiddleware(cfg))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "model": svc.Model()})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	})
	r.POST("/process", makeProcessHandler(svc, time.Duration(cfg.Server.WriteTimeoutMs)*time.Millisecond))

	return r
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// The id names the dump file, so a malformed client id is replaced.
		id := requestid.FromHeader(c.GetHeader(requestid.HeaderKey))
		c.Header(requestid.HeaderKey, id)
		c.Set(requestid.HeaderKey, id)
		c.Next()
	}
}

func trafficDumpMiddleware(cfg *config.Config) gin.HandlerFunc {
	tdcfg := trafficdump.Config{
		Enabled:     cfg.TrafficDump.Enabled,
		Dir:         cfg.TrafficDump.Dir,
		FilePath:    cfg.TrafficDump.FilePath,
		MaxBytes:    cfg.TrafficDump.MaxBytes,
		MaskSecrets: cfg.MaskDumpSecrets(),
	}
	return func(c *gin.Context) {
		rec, err := trafficdump.Start(c, tdcfg)
		if err != nil {
			log.Printf("traffic dump disabled for request: %v", err)
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(trafficdump.NewContext(c.Request.Context(), rec))
		c.Next()
		rec.Close()
	}
}
