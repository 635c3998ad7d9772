package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/tartil/internal/analysis"
	"github.com/MrWong99/tartil/internal/config"
	"github.com/MrWong99/tartil/internal/history"
	"github.com/MrWong99/tartil/internal/observe"
	"github.com/MrWong99/tartil/internal/tajweed"
	"github.com/MrWong99/tartil/pkg/types"
)

const verse = "بِسْمِ اللَّهِ"

func ptr(v float64) *float64 { return &v }

func writeFile(t *testing.T, dir, name string, v any) string {
	t.Helper()
	var data []byte
	switch v := v.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// runCommand executes the root command and returns its standard output.
// Logs go to a separate buffer so the output stays parseable.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, logs bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func reference(vs ...float64) analysis.Reference {
	ref := analysis.Reference{Text: verse, Prosody: types.ProsodySummary{AveragePitch: ptr(180)}}
	for _, v := range vs {
		ref.Features.Vectors = append(ref.Features.Vectors, []float64{v, v})
	}
	return ref
}

func recitation() analysis.Recitation {
	rec := analysis.Recitation{
		Transcript: types.Transcript{Text: verse, Confidence: 0.9},
		Prosody:    types.ProsodySummary{AveragePitch: ptr(180)},
	}
	rec.Features = reference(1, 2, 3).Features
	return rec
}

func TestAnalyzeCommand_RequestFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "request.json", analysis.Request{Recitation: recitation(), Reference: reference(1, 2, 3)})

	out, err := runCommand(t, "analyze", path)
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	var got struct {
		ID     string `json:"id"`
		Report struct {
			Overall float64 `json:"overall"`
		} `json:"report"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.ID == "" || got.Report.Overall < 0.999 {
		t.Errorf("result = %+v", got)
	}
}

func TestAnalyzeCommand_BestOfText(t *testing.T) {
	dir := t.TempDir()
	rec := writeFile(t, dir, "recitation.json", recitation())
	far := writeFile(t, dir, "far.json", reference(9, 9, 9))
	near := writeFile(t, dir, "near.json", reference(1, 2, 3))

	out, err := runCommand(t, "analyze", "--recitation", rec, "--reference", far, "--reference", near, "--format", "text")
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	for _, want := range []string{"Best reference : #2 of 2", "Overall score", "tajweed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeCommand_InputErrors(t *testing.T) {
	dir := t.TempDir()
	rec := writeFile(t, dir, "recitation.json", recitation())
	bad := writeFile(t, dir, "bad.json", `{"recitation": {"transcript": 3}}`)
	empty := analysis.Request{Recitation: recitation(), Reference: reference(1, 2, 3)}
	empty.Reference.Text = ""
	emptyPath := writeFile(t, dir, "empty.json", empty)

	tests := []struct {
		name string
		args []string
	}{
		{"malformed request", []string{"analyze", bad}},
		{"empty reference text", []string{"analyze", emptyPath}},
		{"no reference", []string{"analyze", "--recitation", rec}},
		{"reference audio without text", []string{"analyze", "--recitation", rec, "--reference-audio", "ref.wav"}},
		{"request combined with flags", []string{"analyze", emptyPath, "--recitation", rec}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(t, tt.args...)
			if !errors.Is(err, types.ErrInput) {
				t.Fatalf("err = %v, want an input error", err)
			}
		})
	}
}

func TestAnalyzeCommand_InvalidFormat(t *testing.T) {
	_, err := runCommand(t, "analyze", "--format", "xml", "x.json")
	if err == nil || !strings.Contains(err.Error(), "--format") {
		t.Fatalf("err = %v, want a --format error", err)
	}
}

func TestRulesCommands(t *testing.T) {
	rules := tajweed.DefaultCatalog().Rules()

	out, err := runCommand(t, "rules", "list")
	if err != nil {
		t.Fatalf("rules list: %v", err)
	}
	if !strings.HasPrefix(out, "ID") || strings.Count(out, "\n") != len(rules)+1 {
		t.Errorf("rules list printed %d lines for %d rules:\n%s", strings.Count(out, "\n"), len(rules), out)
	}

	out, err = runCommand(t, "rules", "list", "--category", "echoing")
	if err != nil {
		t.Fatalf("rules list --category: %v", err)
	}
	for _, r := range tajweed.DefaultCatalog().ByCategory(tajweed.CategoryEchoing) {
		if !strings.Contains(out, r.ID) {
			t.Errorf("echoing listing misses %s", r.ID)
		}
	}

	out, err = runCommand(t, "rules", "show", rules[0].ID)
	if err != nil {
		t.Fatalf("rules show: %v", err)
	}
	if !strings.Contains(out, rules[0].Description) {
		t.Errorf("rules show should print the description:\n%s", out)
	}

	if _, err := runCommand(t, "rules", "show", "no_such_rule"); !errors.Is(err, tajweed.ErrRuleNotFound) {
		t.Errorf("unknown rule: err = %v, want ErrRuleNotFound", err)
	}
}

func TestRootCommand_ConfigErrors(t *testing.T) {
	if _, err := runCommand(t, "--config", "/nonexistent/tartil.yaml", "rules", "list"); err == nil ||
		!strings.Contains(err.Error(), "not found") {
		t.Errorf("missing config: err = %v", err)
	}
	if _, err := runCommand(t, "--log-level", "loud", "rules", "list"); err == nil {
		t.Error("invalid --log-level should fail")
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "tartil.yaml", "tajweed:\n  enabled: false\n")
	if _, err := runCommand(t, "--config", path, "rules", "list"); err != nil {
		t.Errorf("rules list must work with rule checking disabled: %v", err)
	}
}

func TestBuildCollaborators(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  asr:
    name: whisper
    base_url: http://localhost:8081
    options:
      timeout: 20s
  asr_fallbacks:
    - name: openai
      api_key: sk-test
  features:
    name: remote
    base_url: http://localhost:9000
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	c, err := buildCollaborators(cfg, reg, observe.DefaultMetrics())
	if err != nil {
		t.Fatalf("buildCollaborators: %v", err)
	}
	if c.ASR == nil || c.Features == nil {
		t.Fatalf("collaborators = %+v", c)
	}
	var names []string
	for _, b := range c.ASR.Group().Breakers() {
		names = append(names, b.Name())
	}
	if got := strings.Join(names, ","); got != "asr/whisper,asr/openai" {
		t.Errorf("asr breakers = %s", got)
	}
	if len(c.groups()) != 2 {
		t.Errorf("groups = %d, want 2", len(c.groups()))
	}

	cfg.Providers.ASRFallbacks[0].APIKey = ""
	if _, err := buildCollaborators(cfg, reg, observe.DefaultMetrics()); err == nil {
		t.Error("openai without api_key should fail")
	}
}

func TestOptDuration(t *testing.T) {
	tests := []struct {
		opts    map[string]any
		want    time.Duration
		wantErr bool
	}{
		{nil, 0, false},
		{map[string]any{"timeout": "15s"}, 15 * time.Second, false},
		{map[string]any{"timeout": 15}, 0, false},
		{map[string]any{"timeout": "soon"}, 0, true},
		{map[string]any{"timeout": "-1s"}, 0, true},
	}
	for _, tt := range tests {
		got, err := optDuration(tt.opts, "timeout")
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("optDuration(%v) = %v, %v; want %v, err=%v", tt.opts, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestOnConfigChange(t *testing.T) {
	t.Cleanup(func() { logLevel.Set(slog.LevelInfo) })

	a := analysis.New(tajweed.NewEngine(nil))
	before := a.Engine()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	next := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogDebug},
		Tajweed: config.TajweedConfig{Categories: []string{"echoing"}},
	}

	onConfigChange(a, false)(old, next, config.Diff(old, next))

	if logLevel.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", logLevel.Level())
	}
	after := a.Engine()
	if after == before {
		t.Fatal("engine was not swapped")
	}
	if cats := after.Categories(); len(cats) != 1 || cats[0] != tajweed.CategoryEchoing {
		t.Errorf("categories = %v, want [echoing]", cats)
	}

	// A pinned level is left alone, and a broken catalog keeps the rules.
	logLevel.Set(slog.LevelWarn)
	broken := &config.Config{Tajweed: config.TajweedConfig{CatalogPath: "/nonexistent/rules.yaml"}}
	onConfigChange(a, true)(next, broken, config.Diff(next, broken))
	if logLevel.Level() != slog.LevelWarn {
		t.Errorf("pinned log level changed to %v", logLevel.Level())
	}
	if a.Engine() != after {
		t.Error("a failed reload must keep the previous engine")
	}
}

func TestHistoryCommands_InputErrors(t *testing.T) {
	dir := t.TempDir()
	memory := writeFile(t, dir, "tartil.yaml", "history:\n  backend: memory\n")

	tests := []struct {
		name string
		args []string
	}{
		{"no backend", []string{"history", "list"}},
		{"memory backend", []string{"--config", memory, "history", "list"}},
		{"negative limit", []string{"history", "list", "--limit", "-1"}},
		{"progress without text", []string{"history", "progress"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCommand(t, tt.args...); !errors.Is(err, types.ErrInput) {
				t.Fatalf("err = %v, want an input error", err)
			}
		})
	}
}

func TestOpenHistory(t *testing.T) {
	ctx := t.Context()

	store, closeStore, err := openHistory(ctx, config.HistoryConfig{})
	if err != nil || store != nil {
		t.Errorf("no backend: %v, %v", store, err)
	}
	closeStore()

	store, closeStore, err = openHistory(ctx, config.HistoryConfig{Backend: config.HistoryMemory, MaxRecords: 5})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	defer closeStore()
	if _, ok := store.(*history.MemoryStore); !ok {
		t.Errorf("memory backend opened %T", store)
	}

	if _, _, err := openHistory(ctx, config.HistoryConfig{Backend: "redis"}); err == nil {
		t.Error("unknown backend should fail")
	}
	if _, _, err := openHistory(ctx, config.HistoryConfig{Backend: config.HistoryPostgres, PostgresDSN: "::not a dsn"}); err == nil {
		t.Error("an invalid dsn should fail")
	}
}

func TestPrintStartupSummary(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Providers: config.ProvidersConfig{ASR: config.ProviderEntry{Name: "openai", Model: "whisper-1"}}}
	printStartupSummary(&buf, cfg, analysis.New(nil))
	out := buf.String()
	for _, want := range []string{"openai / whisper-1", "(not configured)", "(disabled)", ":8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary should contain %q:\n%s", want, out)
		}
	}
}
