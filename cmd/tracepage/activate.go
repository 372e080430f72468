package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/profclems/tracepage/activate"
	"github.com/profclems/tracepage/page"
	"github.com/spf13/cobra"
)

func newActivateCmd() *cobra.Command {
	var (
		endpoint string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "activate <page-url>",
		Short: "Enable debugging for a page and fetch it again",
		Long: `Call a page's activation endpoint the way its "Activate debugging"
control does, then reload the page bypassing caches.

Usage:
  tracepage activate http://127.0.0.1:1984/
  tracepage activate --out page.html http://127.0.0.1:1984/trace/3f2a...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := endpointURL(args[0], endpoint)
			if err != nil {
				return err
			}

			var status, size int
			var writeErr error
			reloader := &activate.HTTPReloader{
				URL: args[0],
				Sink: func(code int, body []byte) {
					status, size = code, len(body)
					if out != "" {
						writeErr = os.WriteFile(out, body, 0644)
					}
				},
			}
			ctl := &activate.Control{Endpoint: target, Reloader: reloader, Logger: logger}

			logger.Debug("activating", "endpoint", target)
			pending := ctl.HandleClick(cmd.Context(), &activate.Event{})
			if !pending.Wait() {
				return errors.New("activation failed: page not reloaded (run with -v for details)")
			}
			if err := pending.Err(); err != nil {
				return fmt.Errorf("debugging enabled but page not reloaded: %w", err)
			}
			if writeErr != nil {
				return fmt.Errorf("failed to write page: %w", writeErr)
			}

			printOK(cmd.OutOrStdout(), "Debugging enabled")
			printDim(cmd.OutOrStdout(), "  reloaded %s (%d, %d bytes)", args[0], status, size)
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", page.DefaultEndpoint, "Activation endpoint path")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the reloaded page to a file")

	return cmd
}

// endpointURL resolves the activation endpoint against the page URL,
// the way the page script resolves its relative data-endpoint.
func endpointURL(pageURL, endpoint string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid page URL %q: scheme and host are required", pageURL)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
