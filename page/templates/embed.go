package templates

import (
	"embed"
	"fmt"
	"slices"
)

//go:embed activate.js
var ActivateJS string

//go:embed themes/*.css
var ThemeCSS embed.FS

//go:embed layouts/*.html
var LayoutHTML embed.FS

// AvailableLayouts lists all built-in page layouts.
// Users can provide their own layout file via --layout-path.
var AvailableLayouts = []string{
	"wdb",
}

// DefaultLayout is used when no layout is named
const DefaultLayout = "wdb"

// StylesheetPath is where the layouts expect the theme to be served
const StylesheetPath = "/static/themes/wdb.css"

// IsValidLayout checks if a layout name is built in
func IsValidLayout(name string) bool {
	return slices.Contains(AvailableLayouts, name)
}

// Layout returns the raw HTML of a built-in layout
func Layout(name string) (string, error) {
	if name == "" {
		name = DefaultLayout
	}
	if !IsValidLayout(name) {
		return "", fmt.Errorf("unknown layout %q", name)
	}
	data, err := LayoutHTML.ReadFile("layouts/" + name + ".html")
	if err != nil {
		return "", fmt.Errorf("failed to read layout %q: %w", name, err)
	}
	return string(data), nil
}

// Stylesheet returns the built-in theme CSS
func Stylesheet() string {
	data, _ := ThemeCSS.ReadFile("themes/wdb.css")
	return string(data)
}
