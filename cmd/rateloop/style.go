package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hairizuanbinnoorazman/rateloop/orchestrator"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	Padding(1, 5).
	MarginBottom(1).
	Align(lipgloss.Center).
	Border(lipgloss.RoundedBorder())

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

func printBanner(w io.Writer, mode string) {
	banner := fmt.Sprintf("rateloop - %s\n\nVersion: %s\nBuild Date: %s", mode, Version, BuildDate)
	fmt.Fprintln(w, headerStyle.Render(banner))
}

// printOutcomes writes one colored line per session, sorted by id.
func printOutcomes(w io.Writer, summary *orchestrator.Summary) {
	for _, r := range summary.Sorted() {
		if r.Success {
			fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("Session %d (%s): Success", r.ID, r.Username)))
			continue
		}
		line := failureStyle.Render(fmt.Sprintf("Session %d (%s): Failed", r.ID, r.Username))
		if r.Error != "" {
			line += " " + dimStyle.Render(r.Error)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\nTotal: %d  Successful: %s  Failed: %s  Elapsed: %s\n",
		summary.Total(),
		successStyle.Render(fmt.Sprint(summary.SuccessCount())),
		failureStyle.Render(fmt.Sprint(summary.FailCount())),
		summary.Elapsed.Round(time.Second))
}
