package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/r9s-ai/snippet-relay/internal/clipboard"
	"github.com/r9s-ai/snippet-relay/internal/config"
	"github.com/r9s-ai/snippet-relay/internal/extract"
	"github.com/r9s-ai/snippet-relay/internal/gemini"
	"github.com/r9s-ai/snippet-relay/internal/logx"
	"github.com/r9s-ai/snippet-relay/internal/trafficdump"
)

var tracer = otel.Tracer("github.com/r9s-ai/snippet-relay/internal/relay")

// Generator is the model call. *gemini.Client implements it.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (gemini.Outcome, error)
}

type Options struct {
	// APIKey is only checked for presence; the Generator signs requests itself.
	APIKey       string
	Model        string
	Instruction  string
	Separator    string
	PreviewRunes int

	Generator Generator
	Rules     *extract.Holder
	Clipboard clipboard.Writer
}

// Service runs the relay pipeline. Requests are processed one at a time.
type Service struct {
	mu   sync.Mutex
	opts Options
}

func New(opts Options) *Service {
	if opts.Instruction == "" {
		opts.Instruction = config.DefaultInstruction
	}
	if opts.Separator == "" {
		opts.Separator = config.DefaultSeparator
	}
	if opts.PreviewRunes <= 0 {
		opts.PreviewRunes = extract.DefaultPreviewRunes
	}
	if opts.Rules == nil {
		opts.Rules = extract.NewHolder(nil)
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.Disabled()
	}
	return &Service{opts: opts}
}

// NewFromConfig wires a Service from the loaded configuration.
func NewFromConfig(cfg *config.Config, gen Generator, rules *extract.Holder, cw clipboard.Writer) *Service {
	return New(Options{
		APIKey:       cfg.Gemini.APIKey,
		Model:        cfg.Gemini.Model,
		Instruction:  cfg.Prompt.Instruction,
		Separator:    cfg.Prompt.Separator,
		PreviewRunes: cfg.Extract.PreviewRunes,
		Generator:    gen,
		Rules:        rules,
		Clipboard:    cw,
	})
}

type Request struct {
	Question       string
	AdditionalInfo string
}

// Response is the JSON body returned to the caller.
type Response struct {
	Status               string `json:"status"`
	Message              string `json:"message"`
	ExtractedCodePreview string `json:"extracted_code_preview,omitempty"`
	FullResponse         string `json:"full_response,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is a finished request: the HTTP status and body plus facts for logs and dumps.
type Result struct {
	HTTPStatus int
	Body       Response

	Outcome        string
	FinishReason   string
	UpstreamStatus int
	Code           string
	Language       string
	Fallback       bool
	Clipboard      clipboard.Outcome
}

// ErrorResult renders e as a Result.
func ErrorResult(e *Error) Result {
	return Result{
		HTTPStatus: e.Status,
		Body:       Response{Status: StatusError, Message: e.Message, FullResponse: e.FullResponse},
		Outcome:    e.Kind.String(),
	}
}

func (s *Service) Model() string { return s.opts.Model }

// CheckCredential fails when no API key is configured. The HTTP layer calls it before
// validating input.
func (s *Service) CheckCredential() *Error {
	if strings.TrimSpace(s.opts.APIKey) != "" {
		return nil
	}
	logx.Errorf("GEMINI_API_KEY not configured")
	return &Error{
		Kind:    Unavailable,
		Status:  http.StatusServiceUnavailable,
		Message: "Server configuration error: API key missing",
	}
}

// Prompt builds the outbound prompt for req.
func (s *Service) Prompt(req Request) string {
	text := req.Question
	if info := strings.TrimSpace(req.AdditionalInfo); info != "" {
		text += "\n\nAdditional Information:\n" + info
	}
	return s.opts.Instruction + s.opts.Separator + text
}

type startedKey struct{}

// WithStarted returns ctx carrying fn. Process calls fn once it holds the service lock,
// which is when the request's own time budget begins.
func WithStarted(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, startedKey{}, fn)
}

// Process runs one request. The upstream call is not cancelled when ctx is; it is bounded
// only by the client timeout.
func (s *Service) Process(ctx context.Context, req Request) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn, ok := ctx.Value(startedKey{}).(func()); ok && fn != nil {
		fn()
	}

	ctx, span := tracer.Start(ctx, "relay.process")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", s.opts.Model))

	res := s.process(ctx, req)

	span.SetAttributes(
		attribute.Int("http.response.status_code", res.HTTPStatus),
		attribute.String("relay.outcome", res.Outcome),
	)
	if res.HTTPStatus != http.StatusOK {
		span.SetStatus(codes.Error, res.Body.Message)
	}

	rec := trafficdump.FromContext(ctx)
	rec.AppendOutcome(map[string]string{
		"model":           s.opts.Model,
		"outcome":         res.Outcome,
		"finish_reason":   res.FinishReason,
		"upstream_status": itoaNonZero(res.UpstreamStatus),
		"language":        res.Language,
		"fallback":        strconv.FormatBool(res.Fallback),
	})
	return res
}

func (s *Service) process(ctx context.Context, req Request) Result {
	if e := s.CheckCredential(); e != nil {
		return ErrorResult(e)
	}
	if strings.TrimSpace(req.Question) == "" {
		return ErrorResult(NewInputError(MsgMissingQuestion))
	}
	if s.opts.Generator == nil {
		return ErrorResult(&Error{Kind: Internal, Status: http.StatusInternalServerError, Message: "Server configuration error: no model client"})
	}

	prompt := s.Prompt(req)
	logx.Infof("sending prompt to gemini (%s): %s", s.opts.Model, logx.Truncate(prompt, 500))

	out, err := s.opts.Generator.GenerateContent(context.WithoutCancel(ctx), prompt)
	if err != nil {
		e := fromGeminiError(err, s.opts.Model)
		logx.Errorf("gemini call failed: %v", e)
		res := ErrorResult(e)
		res.UpstreamStatus = statusOf(err)
		return res
	}

	text, finish, e := answerText(out)
	if e != nil {
		logx.Errorf("gemini response rejected: %v", e)
		res := ErrorResult(e)
		res.UpstreamStatus = http.StatusOK
		res.FinishReason = finish
		return res
	}
	logx.Debugf("gemini response text: %s", logx.Truncate(text, 200))

	cb, ok := s.extract(ctx, text)
	if !ok {
		logx.Warnf("no code block found and fallback conditions not met: %s", logx.Truncate(text, 500))
		res := ErrorResult(&Error{
			Kind:         ClientInput,
			Status:       http.StatusBadRequest,
			Message:      "No code block found in the response.",
			FullResponse: text,
		})
		res.UpstreamStatus = http.StatusOK
		res.FinishReason = finish
		return res
	}
	if cb.Fallback {
		logx.Warnf("no fenced block; treating the whole response as code")
	}

	clip := s.copy(ctx, cb.Code)
	msg := "Code extracted and copied to clipboard" + clip.Suffix()

	return Result{
		HTTPStatus: http.StatusOK,
		Body: Response{
			Status:               StatusSuccess,
			Message:              msg,
			ExtractedCodePreview: extract.Preview(cb.Code, s.opts.PreviewRunes),
		},
		Outcome:        StatusSuccess,
		FinishReason:   finish,
		UpstreamStatus: http.StatusOK,
		Code:           cb.Code,
		Language:       cb.Language,
		Fallback:       cb.Fallback,
		Clipboard:      clip,
	}
}

// answerText walks the decoded outcome and returns the candidate text, or the error the
// caller should see.
func answerText(out gemini.Outcome) (string, string, *Error) {
	switch o := out.(type) {
	case *gemini.Blocked:
		details := o.Message
		if details == "" {
			details = "No details provided."
		}
		return "", "", &Error{
			Kind:    ClientInput,
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("Prompt blocked by safety/policy settings: %s. %s", o.Reason, details),
		}
	case *gemini.Malformed:
		return "", "", &Error{
			Kind:    Internal,
			Status:  http.StatusInternalServerError,
			Message: "Invalid response structure from Gemini (missing candidates)",
		}
	case *gemini.Answer:
		switch {
		case o.FinishReason == gemini.FinishSafety:
			cats := gemini.BlockedCategories(o.SafetyRatings)
			listed := "details unavailable"
			if len(cats) > 0 {
				listed = strings.Join(cats, ", ")
			}
			return "", o.FinishReason, &Error{
				Kind:    ClientInput,
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("Response content blocked by safety settings. Blocked categories: %s.", listed),
			}
		case o.FinishReason == gemini.FinishRecitation:
			logx.Warnf("gemini response flagged for recitation")
		case !gemini.ExpectedFinishReason(o.FinishReason):
			logx.Warnf("unusual finish reason %q, proceeding", o.FinishReason)
		}
		if o.Text == "" {
			msg := "No response text received from Gemini"
			if o.FinishReason == gemini.FinishMaxTokens {
				msg = "Received empty response, possibly due to reaching max output tokens."
			}
			return "", o.FinishReason, &Error{Kind: Internal, Status: http.StatusInternalServerError, Message: msg}
		}
		return o.Text, o.FinishReason, nil
	default:
		return "", "", &Error{
			Kind:    Internal,
			Status:  http.StatusInternalServerError,
			Message: fmt.Sprintf("Unexpected error processing Gemini response: unknown outcome %T", out),
		}
	}
}

func (s *Service) extract(ctx context.Context, text string) (extract.CodeBlock, bool) {
	_, span := tracer.Start(ctx, "extract.code")
	defer span.End()
	cb, ok := extract.Extract(text, s.opts.Rules.Load())
	span.SetAttributes(
		attribute.Bool("extract.found", ok),
		attribute.Bool("extract.fallback", cb.Fallback),
		attribute.String("extract.language", cb.Language),
	)
	return cb, ok
}

func (s *Service) copy(ctx context.Context, code string) clipboard.Outcome {
	_, span := tracer.Start(ctx, "clipboard.write")
	defer span.End()
	out := clipboard.Copy(s.opts.Clipboard, code)
	span.SetAttributes(attribute.Bool("clipboard.ok", out.OK))
	if out.Err != nil {
		span.RecordError(out.Err)
		logx.Warnf("copy to clipboard failed: %v (code starts: %s)", out.Err, logx.Truncate(code, 200))
	} else {
		logx.Infof("copied extracted code to clipboard (%d bytes)", len(code))
	}
	return out
}

func statusOf(err error) int {
	var se *gemini.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func itoaNonZero(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
