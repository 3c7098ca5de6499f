package relayserver

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/snippet-relay/internal/logx"
	"github.com/r9s-ai/snippet-relay/internal/relay"
	"github.com/r9s-ai/snippet-relay/internal/trafficdump"
)

// maxRequestBytes caps the inbound body. The prompt itself is not truncated.
const maxRequestBytes = 8 << 20

// makeProcessHandler serves POST /process. writeTimeout, when set, is the time a request
// gets to finish once the service lock is held; time spent queued behind another request
// does not count against it.
func makeProcessHandler(svc *relay.Service, writeTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxModel, svc.Model())

		if e := svc.CheckCredential(); e != nil {
			writeResult(c, relay.ErrorResult(e))
			return
		}

		req, e := parseProcessRequest(c)
		if e != nil {
			writeResult(c, relay.ErrorResult(e))
			return
		}

		logx.Infof("received question (%d bytes, additional_info %d bytes)", len(req.Question), len(req.AdditionalInfo))
		ctx := c.Request.Context()
		if writeTimeout > 0 {
			rc := http.NewResponseController(c.Writer)
			_ = rc.SetWriteDeadline(time.Time{})
			ctx = relay.WithStarted(ctx, func() {
				_ = rc.SetWriteDeadline(time.Now().Add(writeTimeout))
			})
		}
		res := svc.Process(ctx, req)
		setResultContext(c, res)
		writeResult(c, res)
	}
}

// parseProcessRequest reads {"question": ..., "additional_info": ...}. Only a JSON content
// type with a JSON object body is accepted.
func parseProcessRequest(c *gin.Context) (relay.Request, *relay.Error) {
	if !isJSONContentType(c.GetHeader("Content-Type")) {
		return relay.Request{}, relay.NewInputError(relay.MsgNotJSON)
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return relay.Request{}, relay.NewTooLargeError(tooLarge.Limit)
		}
		return relay.Request{}, relay.NewInputError(relay.MsgNotJSON)
	}
	trafficdump.FromGin(c).AppendOriginRequest(body)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return relay.Request{}, relay.NewInputError(relay.MsgNotJSON)
	}

	var req relay.Request
	raw, ok := fields["question"]
	if !ok || json.Unmarshal(raw, &req.Question) != nil || strings.TrimSpace(req.Question) == "" {
		return relay.Request{}, relay.NewInputError(relay.MsgMissingQuestion)
	}
	if raw, ok := fields["additional_info"]; ok {
		// A non-string value is ignored.
		_ = json.Unmarshal(raw, &req.AdditionalInfo)
	}
	return req, nil
}

func isJSONContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

func setResultContext(c *gin.Context, res relay.Result) {
	c.Set(ctxOutcome, res.Outcome)
	if res.FinishReason != "" {
		c.Set(ctxFinishReason, res.FinishReason)
	}
	if res.UpstreamStatus > 0 {
		c.Set(ctxUpstreamStatus, res.UpstreamStatus)
	}
	if res.HTTPStatus == http.StatusOK {
		if res.Language != "" {
			c.Set(ctxLanguage, res.Language)
		}
		c.Set(ctxFallback, res.Fallback)
		c.Set(ctxClipboard, res.Clipboard.OK)
	}
}

func writeResult(c *gin.Context, res relay.Result) {
	if _, ok := c.Get(ctxOutcome); !ok {
		c.Set(ctxOutcome, res.Outcome)
	}
	if rec := trafficdump.FromGin(c); rec != nil {
		b, _ := json.Marshal(res.Body)
		rec.AppendRelayResponse(res.HTTPStatus, b)
	}
	c.JSON(res.HTTPStatus, res.Body)
}
