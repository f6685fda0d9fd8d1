// Package policy loads the tunable pipeline policy: retry bounds, event
// history limits and notification route overrides.
package policy

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/retry"
	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultFS embed.FS

const DefaultEventHistoryLimit = 500

type Policy struct {
	Pipeline          string            `yaml:"pipeline"`
	MaxAutoAttempts   int               `yaml:"max_auto_attempts"`
	EventHistoryLimit int               `yaml:"event_history_limit"`
	Routes            map[string]string `yaml:"routes"`
}

func (p Policy) Retry() retry.Policy {
	return retry.Policy{MaxAttempts: p.MaxAutoAttempts}.Normalize()
}

// Load reads the policy at path, or the embedded default when path is empty.
func Load(path string) (Policy, error) {
	data, err := read(path)
	if err != nil {
		return Policy{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse pipeline policy: %w", err)
	}
	if err := validate(&p); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func read(path string) ([]byte, error) {
	if path = strings.TrimSpace(path); path != "" {
		return os.ReadFile(path)
	}
	return defaultFS.ReadFile("policy.yaml")
}

func validate(p *Policy) error {
	if p == nil {
		return errors.New("missing policy")
	}
	if name := strings.TrimSpace(p.Pipeline); name != "" && name != "tour" {
		return fmt.Errorf("unexpected pipeline: %s", p.Pipeline)
	}
	if p.MaxAutoAttempts == 0 {
		p.MaxAutoAttempts = retry.DefaultMaxAttempts
	}
	if p.MaxAutoAttempts < 0 {
		return fmt.Errorf("max_auto_attempts must be positive, got %d", p.MaxAutoAttempts)
	}
	if p.EventHistoryLimit <= 0 {
		p.EventHistoryLimit = DefaultEventHistoryLimit
	}
	for family, route := range p.Routes {
		if route != "" && !strings.HasPrefix(route, "/") {
			return fmt.Errorf("route for %s must start with '/': %q", family, route)
		}
	}
	return nil
}

// WithMaxAutoAttempts applies an env override; values below 1 are ignored.
func (p Policy) WithMaxAutoAttempts(n int) Policy {
	if n >= 1 {
		p.MaxAutoAttempts = n
	}
	return p
}
