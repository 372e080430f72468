package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/profclems/tracepage/page"
	"github.com/profclems/tracepage/page/templates"
	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	var (
		out        string
		endpoint   string
		layout     string
		layoutPath string
		standalone bool
	)

	cmd := &cobra.Command{
		Use:   "render <payload>",
		Short: "Render a payload file to HTML",
		Long: `Render a payload file to a diagnostic page.

The payload is JSON ({"title", "subtitle", "trace": [[file, line, function, code], ...]})
or msgpack when the file ends in .msgpack. Use "-" to read JSON from stdin.

Usage:
  tracepage render exception.json > page.html
  tracepage render --standalone --out page.html exception.msgpack`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPayload(args[0])
			if err != nil {
				return err
			}

			layoutOpt, err := layoutOption(layout, layoutPath)
			if err != nil {
				return err
			}
			opts := []page.Option{layoutOpt, page.WithEndpoint(endpoint)}
			if standalone {
				opts = append(opts, page.WithInlineStyles())
			}

			var buf bytes.Buffer
			if err := page.NewRenderer(opts...).Write(&buf, p); err != nil {
				return fmt.Errorf("failed to render page: %w", err)
			}

			if out == "" || out == "-" {
				_, err := io.Copy(cmd.OutOrStdout(), &buf)
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("failed to write page: %w", err)
			}
			printOK(cmd.ErrOrStderr(), "Rendered %d frames to %s", len(p.Trace), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (stdout if empty)")
	cmd.Flags().StringVar(&endpoint, "endpoint", page.DefaultEndpoint, "Activation endpoint the page calls")
	cmd.Flags().StringVar(&layout, "layout", templates.DefaultLayout, "Page layout: only wdb available")
	cmd.Flags().StringVar(&layoutPath, "layout-path", "", "Path to custom layout file (overrides --layout)")
	cmd.Flags().BoolVar(&standalone, "standalone", false, "Inline the stylesheet so the page needs no server")

	return cmd
}
