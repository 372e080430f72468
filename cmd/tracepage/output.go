package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

func printOK(w io.Writer, format string, args ...any) {
	okColor.Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}

func printDim(w io.Writer, format string, args ...any) {
	dimColor.Fprintf(w, format+"\n", args...)
}

func printError(err error) {
	failColor.Fprint(os.Stderr, "✗ ")
	fmt.Fprintln(os.Stderr, err)
}
