package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"rollscan/internal/pipeline"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiBlue  = "\x1b[34m"
)

var titleCaser = cases.Title(language.Und)

// stageLabel turns an internal stage name into a human heading,
// e.g. "hole_analysis" becomes "Hole Analysis".
func stageLabel(stage string) string {
	return titleCaser.String(strings.ReplaceAll(stage, "_", " "))
}

func statusCell(status pipeline.Status, colorize bool) string {
	value := string(status)
	if !colorize {
		return value
	}
	switch status {
	case pipeline.StatusCompleted:
		return ansiGreen + value + ansiReset
	case pipeline.StatusFailed:
		return ansiRed + value + ansiReset
	case pipeline.StatusSkipped:
		return ansiBlue + value + ansiReset
	default:
		return value
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
