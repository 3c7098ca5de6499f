package gemini

import (
	"encoding/json"
	"strings"
)

// Outcome is the decoded generateContent envelope. It is exactly one of *Blocked, *Answer
// or *Malformed.
type Outcome interface {
	outcome()
}

// Blocked means the prompt itself was rejected and no candidate was produced.
type Blocked struct {
	Reason  string
	Message string
}

// Answer is the first candidate of the response.
type Answer struct {
	FinishReason  string
	SafetyRatings []SafetyRating
	// Text is the trimmed text of the first content part, possibly empty.
	Text string
}

// Malformed means there were no candidates and no block reason to explain why.
type Malformed struct{}

func (*Blocked) outcome()   {}
func (*Answer) outcome()    {}
func (*Malformed) outcome() {}

// Decode parses a successful generateContent body. It only fails when body is not a JSON
// object of the expected shape.
func Decode(body []byte) (Outcome, error) {
	var resp generateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		if pf := resp.PromptFeedback; pf != nil && strings.TrimSpace(pf.BlockReason) != "" {
			return &Blocked{
				Reason:  strings.TrimSpace(pf.BlockReason),
				Message: strings.TrimSpace(pf.BlockReasonMessage),
			}, nil
		}
		return &Malformed{}, nil
	}

	c := resp.Candidates[0]
	a := &Answer{
		FinishReason:  strings.TrimSpace(c.FinishReason),
		SafetyRatings: c.SafetyRatings,
	}
	if c.Content != nil && len(c.Content.Parts) > 0 {
		a.Text = strings.TrimSpace(c.Content.Parts[0].Text)
	}
	return a, nil
}

// BlockedCategories lists the categories rated above the two lowest probability tiers
// (NEGLIGIBLE and LOW), in response order.
func BlockedCategories(ratings []SafetyRating) []string {
	var out []string
	for _, r := range ratings {
		switch strings.ToUpper(strings.TrimSpace(r.Probability)) {
		case "NEGLIGIBLE", "LOW":
			continue
		}
		if c := strings.TrimSpace(r.Category); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// ExpectedFinishReason reports whether reason is a normal terminal state. An absent reason
// counts as normal.
func ExpectedFinishReason(reason string) bool {
	switch reason {
	case "", FinishStop, FinishMaxTokens:
		return true
	default:
		return false
	}
}
