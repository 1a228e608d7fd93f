package config

import (
	"testing"
	"time"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("default settings must validate: %v", err)
	}
}

func TestValidateBounds(t *testing.T) {
	base := DefaultSettings()

	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"max results too low", func(s *Settings) { s.MaxResults = 0 }},
		{"max results too high", func(s *Settings) { s.MaxResults = 11 }},
		{"temperature negative", func(s *Settings) { s.Temperature = -0.1 }},
		{"temperature too high", func(s *Settings) { s.Temperature = 1.5 }},
		{"response tokens zero", func(s *Settings) { s.MaxResponseTokens = 0 }},
		{"threshold negative", func(s *Settings) { s.RelevanceThreshold = -0.01 }},
		{"threshold too high", func(s *Settings) { s.RelevanceThreshold = 1.2 }},
		{"window zero", func(s *Settings) { s.ConversationWindow = 0 }},
		{"chunk size zero", func(s *Settings) { s.ChunkSize = 0 }},
		{"overlap negative", func(s *Settings) { s.ChunkOverlap = -1 }},
		{"overlap equals size", func(s *Settings) { s.ChunkOverlap = s.ChunkSize }},
		{"oversampling zero", func(s *Settings) { s.Oversampling = 0 }},
	}

	for _, tc := range cases {
		settings := base
		tc.mutate(&settings)
		if err := settings.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

func TestValidateBoundaryValues(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxResults = 10
	settings.Temperature = 1
	settings.RelevanceThreshold = 0

	if err := settings.Validate(); err != nil {
		t.Errorf("boundary values must validate: %v", err)
	}
}

func TestWithEnvOverrides(t *testing.T) {
	t.Setenv("MAX_RESULTS", "8")
	t.Setenv("TEMPERATURE", "0.7")
	t.Setenv("RELEVANCE_SCORE_THRESHOLD", "0.25")
	t.Setenv("SESSION_TTL_HOURS", "6")

	settings := DefaultSettings().withEnv()
	if settings.MaxResults != 8 {
		t.Errorf("expected max results 8, got %d", settings.MaxResults)
	}
	if settings.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %g", settings.Temperature)
	}
	if settings.RelevanceThreshold != 0.25 {
		t.Errorf("expected threshold 0.25, got %g", settings.RelevanceThreshold)
	}
	if settings.SessionTTL != 6*time.Hour {
		t.Errorf("expected a 6 hour ttl, got %s", settings.SessionTTL)
	}
}

func TestWithEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("MAX_RESULTS", "many")
	t.Setenv("TEMPERATURE", "warm")

	settings := DefaultSettings().withEnv()
	if settings.MaxResults != 5 || settings.Temperature != 0.3 {
		t.Errorf("unparseable env values must fall back to defaults, got %+v", settings)
	}
}
