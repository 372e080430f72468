package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Hook re-enables the remote debugging hook for the current session
type Hook interface {
	Enable(ctx context.Context) error
}

// Switch is an in-process hook: a flag the debugged program polls
type Switch struct {
	enabled     atomic.Bool
	activations atomic.Int64
}

func (s *Switch) Enable(ctx context.Context) error {
	s.enabled.Store(true)
	s.activations.Add(1)
	return nil
}

// Disable clears the flag once the debugger has attached
func (s *Switch) Disable() { s.enabled.Store(false) }

func (s *Switch) Enabled() bool { return s.enabled.Load() }

// Activations counts Enable calls
func (s *Switch) Activations() int64 { return s.activations.Load() }

// ProxyHook forwards activation to a debugging backend's endpoint
type ProxyHook struct {
	URL    string
	Client *http.Client
}

func (h *ProxyHook) Enable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	return nil
}
