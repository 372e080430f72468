// Package activate drives the "activate" control of a diagnostic page:
// ask the backend to re-enable the debugging hook, then reload the page.
package activate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// Event is the click being handled
type Event struct {
	mu        sync.Mutex
	prevented bool
}

// PreventDefault stops the control from following its link or submitting.
func (e *Event) PreventDefault() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prevented = true
}

func (e *Event) DefaultPrevented() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prevented
}

// Reloader performs a full page reload that bypasses any cached copy
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloaderFunc adapts a function to Reloader
type ReloaderFunc func(ctx context.Context) error

func (f ReloaderFunc) Reload(ctx context.Context) error { return f(ctx) }

// Control wires the activation request to a reload
type Control struct {
	Endpoint string
	Client   *http.Client
	Reloader Reloader
	Logger   *slog.Logger
}

// Pending tracks one in-flight activation
type Pending struct {
	done     chan struct{}
	reloaded bool
	err      error
}

// Done is closed once the request and any reload have finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the activation finishes and reports whether the page
// was reloaded.
func (p *Pending) Wait() bool {
	<-p.done
	return p.reloaded
}

// Err returns the reload error, if the reload was attempted and failed.
// It is only valid once Done is closed.
func (p *Pending) Err() error { return p.err }

// HandleClick prevents the default action, then issues the activation
// request in the background. Only a successful response triggers a
// reload. Failures are logged at debug level and otherwise dropped: the
// only recourse is clicking again, which issues a new request.
func (c *Control) HandleClick(ctx context.Context, ev *Event) *Pending {
	if ev != nil {
		ev.PreventDefault()
	}

	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.reloaded, p.err = c.activate(ctx)
	}()
	return p
}

func (c *Control) activate(ctx context.Context) (bool, error) {
	logger := c.logger()

	if err := c.enable(ctx); err != nil {
		logger.Debug("activation failed", "endpoint", c.Endpoint, "error", err)
		return false, nil
	}
	if c.Reloader == nil {
		return false, nil
	}
	if err := c.Reloader.Reload(ctx); err != nil {
		logger.Debug("reload failed", "error", err)
		return true, err
	}
	return true, nil
}

func (c *Control) enable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func (c *Control) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	// No timeout: the user may wait as long as they like.
	return &http.Client{}
}

func (c *Control) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// HTTPReloader re-fetches a page from its origin, bypassing caches
type HTTPReloader struct {
	URL    string
	Client *http.Client

	// Sink receives the fresh page body when set
	Sink func(status int, body []byte)
}

func (r *HTTPReloader) Reload(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	client := r.Client
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}
	if r.Sink != nil {
		r.Sink(resp.StatusCode, body)
	}
	return nil
}
