package config

import "testing"

func TestMatchModelPattern(t *testing.T) {
	cases := []struct {
		pattern, model string
		want           bool
	}{
		{"gpt-4", "gpt-4", true},
		{"gpt-4", "gpt-4o", false},
		{"gpt-4*", "gpt-4-turbo", true},
		{"*-sonnet", "claude-3.5-sonnet", true},
		{"*-sonnet", "claude-3.5-opus", false},
		{"/^gemini-3(-flash)?$/", "gemini-3", true},
		{"/^gemini-3(-flash)?$/", "gemini-3-flash", true},
		{"/^gemini-3(-flash)?$/", "gemini-3-pro", false},
	}

	for _, c := range cases {
		got := MatchModelPattern(c.pattern, c.model)
		if got != c.want {
			t.Errorf("MatchModelPattern(%q, %q) = %v, want %v", c.pattern, c.model, got, c.want)
		}
	}
}

func TestProvider_ResolveModel_ExactBeatsPattern(t *testing.T) {
	p := Provider{
		Models: []ModelMapping{
			{Pattern: "gpt-4*", Mapped: "openai/gpt-4-wildcard"},
			{Pattern: "gpt-4-turbo", Mapped: "openai/gpt-4-turbo-exact"},
		},
	}

	mapping, ok := p.ResolveModel("gpt-4-turbo")
	if !ok || mapping.Mapped != "openai/gpt-4-turbo-exact" {
		t.Fatalf("expected exact match to win, got %+v ok=%v", mapping, ok)
	}
}

func TestProvider_ResolveModel_LongestPatternWins(t *testing.T) {
	p := Provider{
		Models: []ModelMapping{
			{Pattern: "gpt-4*", Mapped: "short"},
			{Pattern: "gpt-4-turbo*", Mapped: "long"},
		},
	}

	mapping, ok := p.ResolveModel("gpt-4-turbo-preview")
	if !ok || mapping.Mapped != "long" {
		t.Fatalf("expected longest pattern to win, got %+v ok=%v", mapping, ok)
	}
}
