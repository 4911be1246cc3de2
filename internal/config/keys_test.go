package config

import "testing"

func TestSettingsOrderedLeaves(t *testing.T) {
	got := Settings(map[string]any{
		"quota": map[string]any{
			"store":       "sqlite",
			"daily_limit": 3.0,
		},
		"log_level": "info",
		"telegram": map[string]any{
			"subscribers": []any{1001.0},
		},
	})
	want := []string{"log_level", "quota.daily_limit", "quota.store", "telegram.subscribers"}
	if len(got) != len(want) {
		t.Fatalf("got %d settings, want %d: %v", len(got), len(want), got)
	}
	for i, key := range want {
		if got[i].Key != key {
			t.Errorf("settings[%d] = %q, want %q", i, got[i].Key, key)
		}
	}
	if got[1].Value != 3.0 {
		t.Errorf("quota.daily_limit = %v", got[1].Value)
	}
}

func TestLookup(t *testing.T) {
	tree := map[string]any{
		"agent": map[string]any{"model": "o1"},
		"user":  map[string]any{"subscriber": false},
	}
	if v, ok := lookup(tree, "agent.model"); !ok || v != "o1" {
		t.Errorf("agent.model = %v, %v", v, ok)
	}
	if v, ok := lookup(tree, "user.subscriber"); !ok || v != false {
		t.Errorf("user.subscriber = %v, %v", v, ok)
	}
	if _, ok := lookup(tree, "agent"); ok {
		t.Error("a section must not resolve as a leaf")
	}
	if _, ok := lookup(tree, "agent.model.extra"); ok {
		t.Error("path through a leaf must not resolve")
	}
	if _, ok := lookup(tree, "quota.store"); ok {
		t.Error("missing section must not resolve")
	}
}

func TestAssignCreatesSections(t *testing.T) {
	tree := map[string]any{"log_level": "info"}
	assign(tree, "quota.store", "sqlite")
	assign(tree, "log_level", "debug")

	if v, ok := lookup(tree, "quota.store"); !ok || v != "sqlite" {
		t.Errorf("quota.store = %v, %v", v, ok)
	}
	if tree["log_level"] != "debug" {
		t.Errorf("log_level = %v", tree["log_level"])
	}
}

func TestRedact(t *testing.T) {
	cases := []struct {
		key  string
		in   any
		want any
	}{
		{"agent.api_key", "sk-test123456", "***3456"},
		{"telegram.token", "123456:ABCdefGHIjkl", "***Ijkl"},
		{"agent.api_key", "abcd", "***abcd"},
		{"agent.api_key", "ab", "***ab"},
		{"agent.api_key", "", ""},
		{"agent.model", "gemini-flash", "gemini-flash"},
	}
	for _, tc := range cases {
		if got := Redact(tc.key, tc.in); got != tc.want {
			t.Errorf("Redact(%s, %q) = %v, want %v", tc.key, tc.in, got, tc.want)
		}
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("agent.api_key") || !IsSecretKey("telegram.token") {
		t.Error("expected secret keys to be recognized")
	}
	if IsSecretKey("agent.model") {
		t.Error("agent.model is not a secret")
	}
}
