// Package config holds the runner configuration: target, timings,
// stabilization policy and element descriptors.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/settle/internal/driver"
	"github.com/roach88/settle/internal/stabilize"
)

// Config is the full runner configuration. Durations are milliseconds on
// disk.
type Config struct {
	TargetURL           string        `yaml:"target_url" json:"target_url"`
	PageLoadTimeoutMS   int           `yaml:"page_load_timeout_ms" json:"page_load_timeout_ms"`
	PostLoadSettleMS    int           `yaml:"post_load_settle_ms" json:"post_load_settle_ms"`
	PostClearSettleMS   int           `yaml:"post_clear_settle_ms" json:"post_clear_settle_ms"`
	Stabilization       Stabilization `yaml:"stabilization" json:"stabilization"`
	InterTestCooldownMS int           `yaml:"inter_test_cooldown_ms" json:"inter_test_cooldown_ms"`
	ActionTimeoutMS     int           `yaml:"action_timeout_ms" json:"action_timeout_ms"`
	PerCharDelayMS      int           `yaml:"per_char_delay_ms" json:"per_char_delay_ms"`

	// RenavigateEach reloads the target before every case instead of once
	// per suite.
	RenavigateEach bool `yaml:"renavigate_each" json:"renavigate_each"`

	Input   driver.InputDescriptor  `yaml:"input" json:"input"`
	Output  driver.OutputDescriptor `yaml:"output" json:"output"`
	Browser Browser                 `yaml:"browser" json:"browser"`
}

// Stabilization is the on-disk form of stabilize.Policy.
type Stabilization struct {
	PollIntervalMS          int  `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	MaxWaitMS               int  `yaml:"max_wait_ms" json:"max_wait_ms"`
	MinStableRepeats        int  `yaml:"min_stable_repeats" json:"min_stable_repeats"`
	ConsiderEmptyAsUnstable bool `yaml:"consider_empty_as_unstable" json:"consider_empty_as_unstable"`
}

// Browser configures the Chrome process.
type Browser struct {
	Headless bool   `yaml:"headless" json:"headless"`
	ExecPath string `yaml:"exec_path" json:"exec_path,omitempty"`
}

// Default returns the configuration for swifttranslator.com.
func Default() Config {
	p := stabilize.DefaultPolicy()
	return Config{
		TargetURL:           "https://www.swifttranslator.com/",
		PageLoadTimeoutMS:   30000,
		PostLoadSettleMS:    2000,
		PostClearSettleMS:   1000,
		InterTestCooldownMS: 2000,
		ActionTimeoutMS:     5000,
		PerCharDelayMS:      150,
		Stabilization: Stabilization{
			PollIntervalMS:          int(p.PollInterval / time.Millisecond),
			MaxWaitMS:               int(p.MaxWait / time.Millisecond),
			MinStableRepeats:        p.MinStableRepeats,
			ConsiderEmptyAsUnstable: p.ConsiderEmptyAsUnstable,
		},
		Input: driver.InputDescriptor{
			Role: "textbox",
			Name: "Input Your Singlish Text Here.",
		},
		Output: driver.OutputDescriptor{
			CSS:          "div.w-full.h-80.p-3.rounded-lg.ring-1.ring-slate-300.whitespace-pre-wrap",
			ExcludeRoles: []string{"textbox"},
		},
		Browser: Browser{Headless: true},
	}
}

// ErrRead marks a config file that could not be read at all, as opposed to
// one that was read but is invalid.
var ErrRead = errors.New("failed to read config file")

// Load reads a YAML config file over Default(): keys absent from the file
// keep their default values. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrRead, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration, reporting every problem found.
func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.TargetURL)
	switch {
	case c.TargetURL == "":
		errs = append(errs, errors.New("target_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("target_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("target_url must be http or https, got %q", c.TargetURL))
	}

	positive := []struct {
		name string
		v    int
	}{
		{"page_load_timeout_ms", c.PageLoadTimeoutMS},
		{"action_timeout_ms", c.ActionTimeoutMS},
	}
	for _, f := range positive {
		if f.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.v))
		}
	}
	nonNegative := []struct {
		name string
		v    int
	}{
		{"post_load_settle_ms", c.PostLoadSettleMS},
		{"post_clear_settle_ms", c.PostClearSettleMS},
		{"inter_test_cooldown_ms", c.InterTestCooldownMS},
		{"per_char_delay_ms", c.PerCharDelayMS},
	}
	for _, f := range nonNegative {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", f.name, f.v))
		}
	}

	if err := c.Policy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stabilization: %w", err))
	}
	if c.Input.Role == "" {
		errs = append(errs, errors.New("input.role is required"))
	}
	if c.Output.CSS == "" {
		errs = append(errs, errors.New("output.css is required"))
	}
	return errors.Join(errs...)
}

// Policy converts the stabilization settings.
func (c Config) Policy() stabilize.Policy {
	return stabilize.Policy{
		PollInterval:            ms(c.Stabilization.PollIntervalMS),
		MaxWait:                 ms(c.Stabilization.MaxWaitMS),
		MinStableRepeats:        c.Stabilization.MinStableRepeats,
		ConsiderEmptyAsUnstable: c.Stabilization.ConsiderEmptyAsUnstable,
	}
}

// PageLoadTimeout bounds a navigation.
func (c Config) PageLoadTimeout() time.Duration { return ms(c.PageLoadTimeoutMS) }

// PostLoadSettle is the fixed wait after a navigation.
func (c Config) PostLoadSettle() time.Duration { return ms(c.PostLoadSettleMS) }

// PostClearSettle is the fixed wait after clearing the input.
func (c Config) PostClearSettle() time.Duration { return ms(c.PostClearSettleMS) }

// InterTestCooldown is the pause between consecutive cases.
func (c Config) InterTestCooldown() time.Duration { return ms(c.InterTestCooldownMS) }

// ActionTimeout bounds a single driver action.
func (c Config) ActionTimeout() time.Duration { return ms(c.ActionTimeoutMS) }

// PerCharDelay is the pause between keystrokes when typing incrementally.
func (c Config) PerCharDelay() time.Duration { return ms(c.PerCharDelayMS) }

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
