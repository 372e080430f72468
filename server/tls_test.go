package server

import (
	"path/filepath"
	"testing"
)

func TestTLSConfig_Enabled(t *testing.T) {
	tests := []struct {
		cfg  TLSConfig
		want bool
	}{
		{TLSConfig{}, false},
		{TLSConfig{CertFile: "cert.pem"}, false},
		{TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.Enabled(); got != tt.want {
			t.Errorf("%+v.Enabled() = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestTLSConfig_BuildMissingFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := TLSConfig{
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
	}
	if _, err := cfg.Build(); err == nil {
		t.Error("expected error for missing certificate files")
	}
}
