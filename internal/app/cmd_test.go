package app

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	var logs bytes.Buffer
	cmd := NewRootCmd(&logs)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	for _, sub := range []Command{CommandServe, CommandMigrate, CommandCleanup, CommandHealthcheck} {
		if !strings.Contains(out.String(), string(sub)) {
			t.Errorf("help output is missing %q command", sub)
		}
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CommandServe, "serve"},
		{CommandMigrate, "migrate"},
		{CommandCleanup, "cleanup"},
		{CommandHealthcheck, "healthcheck"},
	}

	for _, tt := range tests {
		if got := string(tt.cmd); got != tt.want {
			t.Errorf("Command = %q, want %q", got, tt.want)
		}
	}
}

func TestServeCommand_SkipMigrateFlag(t *testing.T) {
	for _, args := range [][]string{{"serve"}, {}} {
		root := NewRootCmd(&bytes.Buffer{})
		cmd, _, err := root.Find(args)
		if err != nil {
			t.Fatalf("Find(%v) error = %v", args, err)
		}
		if cmd.Flags().Lookup("skip-migrate") == nil {
			t.Errorf("%q should define --skip-migrate", cmd.Name())
		}
	}
}

func TestCleanupCommand_GraceFlag(t *testing.T) {
	root := NewRootCmd(&bytes.Buffer{})
	cmd, _, err := root.Find([]string{"cleanup"})
	if err != nil {
		t.Fatalf("Find(cleanup) error = %v", err)
	}

	if err := cmd.Flags().Parse([]string{"--grace", "24h"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	grace, err := cmd.Flags().GetDuration("grace")
	if err != nil {
		t.Fatalf("GetDuration() error = %v", err)
	}
	if grace != 24*time.Hour {
		t.Errorf("grace = %v, want %v", grace, 24*time.Hour)
	}
}

// DATABASE_URLが無い場合は各コマンドが設定エラーで失敗することを検証
func TestCommands_MissingDatabaseURL_ReturnError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	for _, args := range [][]string{{}, {"serve"}, {"migrate"}, {"cleanup"}} {
		var logs bytes.Buffer
		cmd := NewRootCmd(&logs)
		cmd.SetArgs(args)

		err := cmd.Execute()
		if err == nil {
			t.Errorf("Execute(%v) should fail without DATABASE_URL", args)
			continue
		}
		if !strings.Contains(err.Error(), "DATABASE_URL") {
			t.Errorf("Execute(%v) error = %v, want mention of DATABASE_URL", args, err)
		}
	}
}

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(&buf, []string{"worker"}); err == nil {
		t.Error("unknown subcommand should return an error")
	}
}
