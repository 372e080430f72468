package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/profclems/tracepage/server"
	"github.com/profclems/tracepage/trace"
	"github.com/spf13/cobra"
)

func newPushCmd() *cobra.Command {
	var (
		serverURL string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "push <payload>",
		Short: "Upload a payload to a running server",
		Long: `Upload a payload to a running tracepage server and print its page URL.

Usage:
  tracepage push exception.json
  tracepage push --server http://debug.internal:1984 exception.msgpack`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, format, err := readPayloadBytes(args[0])
			if err != nil {
				return err
			}
			// Reject bad payloads before they reach the server
			if _, err := trace.Decode(bytes.NewReader(data), format); err != nil {
				return err
			}

			base := strings.TrimRight(serverURL, "/")
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, base+"/api/traces", bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Content-Type", contentType(format))

			resp, err := (&http.Client{Timeout: timeout}).Do(req)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusCreated {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				return fmt.Errorf("upload failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}

			var created server.CreateResponse
			if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}

			printOK(cmd.OutOrStdout(), "Trace %s stored", created.ID)
			printDim(cmd.OutOrStdout(), "  %s%s", base, created.URL)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:1984", "Server base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Upload timeout")

	return cmd
}

func contentType(format trace.Format) string {
	if format == trace.FormatMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}
