package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"simbridge.ai/internal/bridge/executor"
	"simbridge.ai/internal/config"
	"simbridge.ai/internal/sim"
	"simbridge.ai/internal/sim/scene"
)

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Record.Dir = filepath.Join(t.TempDir(), "recordings")
	cfg.Index.Backend = backend
	cfg.Index.Path = filepath.Join(t.TempDir(), "index.sqlite")
	return cfg
}

func newRuntime(t *testing.T, backend string) *runtime {
	t.Helper()
	rt, err := buildWith(t, testConfig(t, backend))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func buildWith(t *testing.T, cfg config.Config) (*runtime, error) {
	t.Helper()
	f, err := scene.LoadFixture("../../configs/scene.yaml")
	if err != nil {
		t.Fatalf("scene: %v", err)
	}
	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return build(ctx, cfg, scene.New(f), log)
}

func scrape(t *testing.T, rt *runtime) string {
	t.Helper()
	rec := httptest.NewRecorder()
	rt.metricsHandler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertEqual(t, "status", rec.Code, http.StatusOK)
	return rec.Body.String()
}

func TestMetrics_CountTurnsAndCommands(t *testing.T) {
	rt := newRuntime(t, "sqlite")

	ok := executor.Task{Kind: "walkTo", Run: func() (sim.Invocation, error) { return sim.Invocation{}, nil }}
	bad := executor.Task{Kind: "interactNpc", Run: func() (sim.Invocation, error) { return sim.Invocation{}, errors.New("gone") }}
	for _, task := range []executor.Task{ok, bad} {
		if err := rt.exec.Submit(context.Background(), task); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	rt.scene.Step()

	body := scrape(t, rt)
	for _, want := range []string{
		"simbridge_tick 1\n",
		"simbridge_turns_total 1\n",
		"simbridge_broadcasts_total 1\n",
		`simbridge_commands_total{outcome="ok"} 1`,
		`simbridge_commands_total{outcome="failed"} 1`,
		"simbridge_index_queue_depth",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "simbridge_nats_published_total") {
		t.Fatalf("nats metrics should be absent when nats is disabled")
	}
}

func TestMetrics_NoIndex(t *testing.T) {
	rt := newRuntime(t, "none")
	if rt.index != nil {
		t.Fatalf("expected no index")
	}
	if strings.Contains(scrape(t, rt), "simbridge_index_") {
		t.Fatalf("index metrics should be absent")
	}
}

func TestOpenIndex_UnsupportedBackend(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := openIndex(config.IndexConfig{Backend: "postgres"}, log)
	testutil.AssertErrorContains(t, err, "postgres")
}

func TestBuild_ArchiveNeedsCredentials(t *testing.T) {
	t.Setenv("SIMBRIDGE_ARCHIVE_ACCESS_KEY_ID", "")
	t.Setenv("SIMBRIDGE_ARCHIVE_SECRET_ACCESS_KEY", "")
	cfg := testConfig(t, "none")
	cfg.Archive.Enabled = true
	cfg.Archive.Endpoint = "http://127.0.0.1:9000"
	cfg.Archive.Bucket = "recordings"

	_, err := buildWith(t, cfg)
	testutil.AssertErrorContains(t, err, "archive")
}

func TestBuild_ArchiveFromEnv(t *testing.T) {
	t.Setenv("SIMBRIDGE_ARCHIVE_ACCESS_KEY_ID", "key")
	t.Setenv("SIMBRIDGE_ARCHIVE_SECRET_ACCESS_KEY", "secret")
	cfg := testConfig(t, "none")
	cfg.Archive.Enabled = true
	cfg.Archive.Endpoint = "http://127.0.0.1:9000"
	cfg.Archive.Bucket = "recordings"

	rt, err := buildWith(t, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(rt.Close)
	if rt.archive == nil {
		t.Fatalf("expected archive uploader")
	}
	if !strings.Contains(scrape(t, rt), "simbridge_archive_queue_depth 0") {
		t.Fatalf("missing archive metrics")
	}
}
