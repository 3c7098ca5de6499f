package relayserver

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/snippet-relay/internal/logx"
	"github.com/r9s-ai/snippet-relay/internal/requestid"
)

// Context keys set by the process handler for the access log.
const (
	ctxModel          = "snr.model"
	ctxOutcome        = "snr.outcome"
	ctxFinishReason   = "snr.finish_reason"
	ctxUpstreamStatus = "snr.upstream_status"
	ctxLanguage       = "snr.language"
	ctxFallback       = "snr.fallback"
	ctxClipboard      = "snr.clipboard"
)

func requestLoggerWithColor(l *log.Logger, color bool) gin.HandlerFunc {
	if l == nil {
		l = log.New(os.Stdout, "", log.LstdFlags)
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)

		fields := map[string]any{
			"latency_ms": latency.Milliseconds(),
		}
		if v := c.GetString(requestid.HeaderKey); v != "" {
			fields["request_id"] = v
		}
		for key, field := range map[string]string{
			ctxModel:          "model",
			ctxOutcome:        "outcome",
			ctxFinishReason:   "finish_reason",
			ctxUpstreamStatus: "upstream_status",
			ctxLanguage:       "lang",
			ctxFallback:       "fallback",
			ctxClipboard:      "clipboard",
		} {
			if v, ok := c.Get(key); ok {
				fields[field] = v
			}
		}

		l.Println(logx.FormatRequestLineWithColor(time.Now(), status, latency, c.ClientIP(), c.Request.Method, c.Request.URL.Path, fields, color))
	}
}
