package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// DefaultFallbackPrefixes are the line starts that mark an unfenced reply as code.
var DefaultFallbackPrefixes = []string{"import ", "def ", "class ", "from ", "#"}

// Rules is the extraction rule set. A nil *Rules behaves like DefaultRules().
type Rules struct {
	FallbackPrefixes []string `yaml:"fallback_prefixes"`
}

func DefaultRules() *Rules {
	return &Rules{FallbackPrefixes: append([]string(nil), DefaultFallbackPrefixes...)}
}

func (r *Rules) prefixes() []string {
	if r == nil || r.FallbackPrefixes == nil {
		return DefaultFallbackPrefixes
	}
	return r.FallbackPrefixes
}

func (r *Rules) matchesPrefix(line string) bool {
	for _, p := range r.prefixes() {
		if p != "" && strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// LoadRules reads a rules file. An empty path yields the defaults. A missing
// fallback_prefixes key keeps the default list; an explicit empty list disables the fallback.
func LoadRules(path string) (*Rules, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultRules(), nil
	}
	// #nosec G304 -- rules_file comes from trusted config/env.
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRules(b)
}

func ParseRules(b []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if r.FallbackPrefixes == nil {
		r.FallbackPrefixes = append([]string(nil), DefaultFallbackPrefixes...)
		return &r, nil
	}
	out := make([]string, 0, len(r.FallbackPrefixes))
	for _, p := range r.FallbackPrefixes {
		if p == "" {
			return nil, errors.New("parse rules: fallback_prefixes contains an empty entry")
		}
		out = append(out, p)
	}
	r.FallbackPrefixes = out
	return &r, nil
}

// Holder publishes the current rules to readers without locking.
type Holder struct {
	p atomic.Pointer[Rules]
}

func NewHolder(r *Rules) *Holder {
	h := &Holder{}
	h.Store(r)
	return h
}

func (h *Holder) Load() *Rules {
	if h == nil {
		return DefaultRules()
	}
	if r := h.p.Load(); r != nil {
		return r
	}
	return DefaultRules()
}

func (h *Holder) Store(r *Rules) {
	if r == nil {
		r = DefaultRules()
	}
	h.p.Store(r)
}
