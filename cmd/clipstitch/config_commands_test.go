package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestConfigInitCommand(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "clipstitch.toml")

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout.String(), "Wrote sample configuration to "+target) {
		t.Fatalf("unexpected output: %q", stdout.String())
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "max_height") {
		t.Fatalf("sample missing fetch settings: %s", data)
	}

	cmd = newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	stdout, _, err := env.runCLI(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(stdout, "Config path: "+env.configPath) || !strings.Contains(stdout, "Configuration valid") {
		t.Fatalf("unexpected output: %q", stdout)
	}

	if err := os.WriteFile(env.configPath, []byte("[fetch]\ncontainer = \"avi\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := env.runCLI(t, "config", "validate"); err == nil {
		t.Fatal("expected validation failure")
	}
}

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("yt-dlp", statusOK, "/usr/bin/yt-dlp", false)
	if !strings.Contains(line, "yt-dlp:") || !strings.Contains(line, "[OK] /usr/bin/yt-dlp") {
		t.Fatalf("unexpected line: %q", line)
	}
	colored := renderStatusLine("ffmpeg", statusError, "missing", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected red line, got %q", colored)
	}
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers must not be colorized")
	}
}

func TestRenderTablePadsRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") || !strings.Contains(out, "A") {
		t.Fatalf("unexpected table: %q", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty table for no headers")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		{"ダウンロードに失敗しました", 8, "ダウンロー..."},
		{"émoji 🎬 clip", 7, "émoj..."},
		{"ééé", 2, "éé"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.limit)
		if got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) produced invalid UTF-8 %q", tc.in, tc.limit, got)
		}
	}
}
