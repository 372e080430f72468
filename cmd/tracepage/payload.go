package main

import (
	"fmt"
	"io"
	"os"

	"github.com/profclems/tracepage/page"
	"github.com/profclems/tracepage/page/templates"
	"github.com/profclems/tracepage/trace"
)

// loadPayload reads a payload file; "-" reads JSON from stdin.
func loadPayload(path string) (trace.Payload, error) {
	if path == "-" {
		return trace.Decode(os.Stdin, trace.FormatJSON)
	}

	f, err := os.Open(path)
	if err != nil {
		return trace.Payload{}, fmt.Errorf("failed to open payload: %w", err)
	}
	defer f.Close()
	return trace.Decode(f, trace.FormatFromPath(path))
}

func readPayloadBytes(path string) ([]byte, trace.Format, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return data, trace.FormatJSON, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read payload: %w", err)
	}
	return data, trace.FormatFromPath(path), nil
}

// layoutOption resolves a custom layout file or a built-in layout name.
func layoutOption(name, path string) (page.Option, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read layout: %w", err)
		}
		return page.WithLayout(string(data)), nil
	}
	layout, err := templates.Layout(name)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %v)", err, templates.AvailableLayouts)
	}
	return page.WithLayout(layout), nil
}
