package settings

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/bluesky-social/promptguard/gate/analyzer"
	"github.com/bluesky-social/promptguard/gate/ratetrack"

	"gopkg.in/yaml.v3"
)

// MaxMinutes is the largest minute value any setting may hold; anything longer doesn't fit in a time.Duration.
const MaxMinutes = int(math.MaxInt64 / int64(time.Minute))

// ErrConfigInvalid is wrapped by every validation failure returned from Parse, LoadFile and Validate.
var ErrConfigInvalid = errors.New("invalid settings")

// Settings is the immutable configuration consulted for each decision. Callers must not mutate a Settings value once it has been handed to the gate; reloads produce a new value.
type Settings struct {
	Enabled bool `yaml:"enable_rate_limit" json:"enable_rate_limit"`

	MaxMessages                int `yaml:"rate_limit_max_messages" json:"rate_limit_max_messages"`
	WindowMinutes              int `yaml:"rate_limit_window_minutes" json:"rate_limit_window_minutes"`
	RateLimitSuspensionMinutes int `yaml:"rate_limit_suspension_minutes" json:"rate_limit_suspension_minutes"`

	MaxPromptLength   int      `yaml:"max_prompt_length" json:"max_prompt_length"`
	ForbiddenKeywords []string `yaml:"jailbreak_keywords" json:"jailbreak_keywords"`
	NonAlnumThreshold float64  `yaml:"non_alphanumeric_threshold" json:"non_alphanumeric_threshold"`
	FoldDiacritics    bool     `yaml:"fold_diacritics" json:"fold_diacritics"`

	ProgressiveSuspensionMinutes  []int `yaml:"content_infraction_suspensions_minutes" json:"content_infraction_suspensions_minutes"`
	JailbreakSeverityLevel        int   `yaml:"jailbreak_severity_level" json:"jailbreak_severity_level"`
	ContentInfractionResetMinutes int   `yaml:"infraction_reset_minutes" json:"infraction_reset_minutes"`

	UserBlockedMessageTemplate string `yaml:"user_blocked_message" json:"user_blocked_message"`
	UserLimitedMessageTemplate string `yaml:"user_limited_message" json:"user_limited_message"`
}

// MinutesPlaceholder is substituted with the suspension length in both message templates.
const MinutesPlaceholder = "{minutes}"

var defaultKeywords = []string{
	"ignore your instructions",
	"pretend to be",
	"act as if",
	"developer mode",
	"reply as",
	"you are without restrictions",
	"without censorship",
	"you have no limits",
	"you have no rules",
	"DAN",
}

func Default() *Settings {
	return &Settings{
		Enabled:                       true,
		MaxMessages:                   30,
		WindowMinutes:                 60,
		RateLimitSuspensionMinutes:    30,
		MaxPromptLength:               500,
		ForbiddenKeywords:             append([]string{}, defaultKeywords...),
		NonAlnumThreshold:             0.4,
		ProgressiveSuspensionMinutes:  []int{5, 15, 60},
		JailbreakSeverityLevel:        2,
		ContentInfractionResetMinutes: 60,
		UserBlockedMessageTemplate:    "Your account has been temporarily suspended for {minutes} minutes due to a content policy violation.",
		UserLimitedMessageTemplate:    "You have sent too many messages. Please wait {minutes} minutes before sending new messages.",
	}
}

// Parse overlays a YAML (or JSON) document on the defaults and validates the result. Keys missing from the document keep their default value; a list that is present replaces the default list entirely.
func Parse(raw []byte) (*Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("%w: parsing: %v", ErrConfigInvalid, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func LoadFile(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate rejects settings the engine can't act on. The policy is fail-closed: a bad value is never silently treated as "check disabled".
func (s *Settings) Validate() error {
	var problems []string
	nonNeg := func(name string, v int) {
		if v < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative (got %d)", name, v))
		}
	}
	minutes := func(name string, v int) {
		if v < 0 || v > MaxMinutes {
			problems = append(problems, fmt.Sprintf("%s must be within [0, %d] (got %d)", name, MaxMinutes, v))
		}
	}
	nonNeg("rate_limit_max_messages", s.MaxMessages)
	minutes("rate_limit_window_minutes", s.WindowMinutes)
	minutes("rate_limit_suspension_minutes", s.RateLimitSuspensionMinutes)
	nonNeg("max_prompt_length", s.MaxPromptLength)
	nonNeg("jailbreak_severity_level", s.JailbreakSeverityLevel)
	minutes("infraction_reset_minutes", s.ContentInfractionResetMinutes)
	// NaN compares false against both bounds
	if math.IsNaN(s.NonAlnumThreshold) || s.NonAlnumThreshold < 0 || s.NonAlnumThreshold > 1 {
		problems = append(problems, fmt.Sprintf("non_alphanumeric_threshold must be within [0, 1] (got %v)", s.NonAlnumThreshold))
	}
	if s.MaxMessages > 0 && s.WindowMinutes == 0 {
		problems = append(problems, "rate_limit_window_minutes must be positive when rate_limit_max_messages is set")
	}
	for i, m := range s.ProgressiveSuspensionMinutes {
		minutes(fmt.Sprintf("content_infraction_suspensions_minutes[%d]", i), m)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (s *Settings) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		MaxLength:         s.MaxPromptLength,
		ForbiddenKeywords: s.ForbiddenKeywords,
		NonAlnumThreshold: s.NonAlnumThreshold,
		FoldDiacritics:    s.FoldDiacritics,
	}
}

func (s *Settings) RateConfig() ratetrack.Config {
	return ratetrack.Config{
		MaxMessages: s.MaxMessages,
		Window:      time.Duration(s.WindowMinutes) * time.Minute,
	}
}

// ContentSuspension returns the suspension length for a content violation at the given zero-based infraction index. Indexes past the end of the progressive list use the last entry; an empty list falls back to the rate-limit suspension length.
func (s *Settings) ContentSuspension(idx int) time.Duration {
	l := s.ProgressiveSuspensionMinutes
	if len(l) == 0 {
		return time.Duration(s.RateLimitSuspensionMinutes) * time.Minute
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(l) {
		idx = len(l) - 1
	}
	return time.Duration(l[idx]) * time.Minute
}

func (s *Settings) RateLimitSuspension() time.Duration {
	return time.Duration(s.RateLimitSuspensionMinutes) * time.Minute
}

func (s *Settings) ContentResetWindow() time.Duration {
	return time.Duration(s.ContentInfractionResetMinutes) * time.Minute
}
