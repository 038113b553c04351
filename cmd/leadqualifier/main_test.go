package main

import "testing"

func TestBuildRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := buildRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "dashboard"} {
		if !names[want] {
			t.Fatalf("expected %q subcommand, got %v", want, names)
		}
	}
}

func TestResolveConfigPath_DefaultsWhenEmpty(t *testing.T) {
	t.Setenv("LEADQUALIFIER_CONFIG", "")
	if got := resolveConfigPath(""); got != "leadqualifier.yaml" {
		t.Fatalf("expected default config path, got %q", got)
	}
}

func TestResolveConfigPath_PrefersExplicitPath(t *testing.T) {
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Fatalf("expected explicit path to win, got %q", got)
	}
}

func TestBuildMigrateCmd_HasUpDownStatus(t *testing.T) {
	cmd := buildMigrateCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"up", "down", "status"} {
		if !names[want] {
			t.Fatalf("expected migrate %q subcommand, got %v", want, names)
		}
	}
}
