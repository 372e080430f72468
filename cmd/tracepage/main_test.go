package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/profclems/tracepage/config"
	"github.com/profclems/tracepage/server"
	"github.com/profclems/tracepage/trace"
	"github.com/spf13/viper"
)

func init() {
	logger = slog.New(slog.DiscardHandler)
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		page     string
		endpoint string
		want     string
		wantErr  bool
	}{
		{page: "http://127.0.0.1:1984/", endpoint: "/__wdb/on", want: "http://127.0.0.1:1984/__wdb/on"},
		{page: "http://host/trace/abc", endpoint: "/__wdb/on", want: "http://host/__wdb/on"},
		{page: "https://host/a/b", endpoint: "on", want: "https://host/a/on"},
		{page: "/relative", endpoint: "/__wdb/on", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.page, func(t *testing.T) {
			got, err := endpointURL(tt.page, tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("endpointURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("endpointURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func writePayload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exception.json")
	body := `{"title":"ValueError","subtitle":"bad","trace":[["app.py",3,"main","int('x')"]]}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRenderCmd(t *testing.T) {
	cmd := newRenderCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--standalone", writePayload(t)})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"ValueError", "File app.py:3", "<style>"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRenderCmd_UnknownLayout(t *testing.T) {
	cmd := newRenderCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--layout", "nope", writePayload(t)})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown layout")
	}
}

func TestPushAndActivate(t *testing.T) {
	srv := server.NewServer(server.Config{}, logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	push := newPushCmd()
	var pushOut bytes.Buffer
	push.SetOut(&pushOut)
	push.SetArgs([]string{"--server", ts.URL, writePayload(t)})
	if err := push.Execute(); err != nil {
		t.Fatalf("push error = %v", err)
	}
	if !strings.Contains(pushOut.String(), ts.URL+"/trace/") {
		t.Errorf("push output = %q", pushOut.String())
	}

	outFile := filepath.Join(t.TempDir(), "page.html")
	act := newActivateCmd()
	act.SetOut(&bytes.Buffer{})
	act.SetArgs([]string{"--out", outFile, ts.URL + "/"})
	if err := act.Execute(); err != nil {
		t.Fatalf("activate error = %v", err)
	}
	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`id="activate"`)) {
		t.Error("reloaded page missing activation control")
	}
	if got := srv.Metrics().GetStats().Activations; got != 1 {
		t.Errorf("activations = %d, want 1", got)
	}
}

func TestActivateCmd_Failure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	act := newActivateCmd()
	act.SetOut(&bytes.Buffer{})
	act.SetArgs([]string{ts.URL + "/"})
	if err := act.Execute(); err == nil {
		t.Error("expected error when activation fails")
	}
}

func TestInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracepage.yaml")

	cmd := newInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--path", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	cfg, err := config.NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg != *config.Default() {
		t.Errorf("config = %+v", cfg)
	}

	again := newInitCmd()
	again.SetOut(&bytes.Buffer{})
	again.SetArgs([]string{"--path", path})
	if err := again.Execute(); err == nil {
		t.Error("expected error when file exists")
	}
}

func TestContentType(t *testing.T) {
	if got := contentType(trace.FormatMsgpack); got != "application/msgpack" {
		t.Errorf("msgpack = %q", got)
	}
	if got := contentType(trace.FormatJSON); got != "application/json" {
		t.Errorf("json = %q", got)
	}
}

func TestLoadServeConfig_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	viper.Reset()
	defer viper.Reset()

	t.Setenv("TRACEPAGE_LISTEN", "0.0.0.0:9999")
	t.Setenv("TRACEPAGE_BACKEND", "http://127.0.0.1:1985/__wdb/on")
	t.Setenv("TRACEPAGE_RATE_LIMIT", "0.5")
	initConfig()

	cfg, err := loadServeConfig()
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.Listen != "0.0.0.0:9999" {
		t.Errorf("Listen = %q, want env value", cfg.Listen)
	}
	if cfg.Backend != "http://127.0.0.1:1985/__wdb/on" {
		t.Errorf("Backend = %q, want env value", cfg.Backend)
	}
	if cfg.RateLimit != 0.5 {
		t.Errorf("RateLimit = %v, want 0.5", cfg.RateLimit)
	}
	if cfg.Endpoint != config.Default().Endpoint {
		t.Errorf("Endpoint = %q, want default", cfg.Endpoint)
	}
}

func TestLoadServeConfig_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	viper.Reset()
	defer viper.Reset()

	file := "listen: \":8080\"\nrate_limit: 0\n"
	if err := os.WriteFile(filepath.Join(dir, "tracepage.yaml"), []byte(file), 0600); err != nil {
		t.Fatal(err)
	}
	initConfig()

	cfg, err := loadServeConfig()
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.Listen != ":8080" || cfg.RateLimit != 0 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.RateBurst != config.Default().RateBurst {
		t.Errorf("RateBurst = %d, want default", cfg.RateBurst)
	}
}

func TestActivateCmd_ReloadFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/__wdb/on" {
			return
		}
		// Drop the connection so the reload fails.
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer ts.Close()

	act := newActivateCmd()
	var out bytes.Buffer
	act.SetOut(&out)
	act.SetArgs([]string{ts.URL + "/"})
	if err := act.Execute(); err == nil {
		t.Error("expected error when the reload fails")
	}
	if strings.Contains(out.String(), "Debugging enabled") {
		t.Errorf("output = %q, want no success line", out.String())
	}
}
