// Package report renders scenario runs for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xychain/xy-e2e/internal/scenario"
)

var (
	primaryColor = lipgloss.Color("#7C3AED") // violet
	mutedColor   = lipgloss.Color("#6B7280") // gray
	successColor = lipgloss.Color("#10B981") // green
	errorColor   = lipgloss.Color("#EF4444") // red
	warnColor    = lipgloss.Color("#F59E0B") // amber
)

// Printer writes runs to a terminal. Colours are dropped when the writer is
// not a TTY.
type Printer struct {
	w io.Writer

	header  lipgloss.Style
	name    lipgloss.Style
	muted   lipgloss.Style
	detail  lipgloss.Style
	summary lipgloss.Style
	status  map[scenario.Status]lipgloss.Style
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	badge := r.NewStyle().Bold(true).Width(8)
	return &Printer{
		w: w,
		header: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1),
		name:    r.NewStyle().Width(16),
		muted:   r.NewStyle().Foreground(mutedColor),
		detail:  r.NewStyle().Foreground(mutedColor).PaddingLeft(10),
		summary: r.NewStyle().Bold(true).MarginTop(1),
		status: map[scenario.Status]lipgloss.Style{
			scenario.StatusPass:    badge.Foreground(successColor),
			scenario.StatusFail:    badge.Foreground(errorColor),
			scenario.StatusError:   badge.Foreground(warnColor),
			scenario.StatusSkipped: badge.Foreground(mutedColor),
		},
	}
}

func (p *Printer) badge(s scenario.Status) string {
	style, ok := p.status[s]
	if !ok {
		style = p.muted
	}
	return style.Render(string(s))
}

// Run prints one run: a line per scenario, the error under anything that did
// not pass, then a summary.
func (p *Printer) Run(run *scenario.Run) error {
	var b strings.Builder
	b.WriteString(p.header.Render("xy-e2e run " + run.ID))
	b.WriteString("\n")

	for _, res := range run.Results {
		line := p.badge(res.Status) + p.name.Render(res.Scenario)
		if res.Status != scenario.StatusSkipped {
			line += p.muted.Render(res.Duration.Round(time.Millisecond).String())
		}
		b.WriteString(line + "\n")
		if res.Error != "" {
			b.WriteString(p.detail.Render(res.Error) + "\n")
		}
	}

	c := run.Counts()
	verdict := p.status[scenario.StatusPass].UnsetWidth().Render("PASSED")
	if !run.Passed() {
		verdict = p.status[scenario.StatusFail].UnsetWidth().Render("FAILED")
	}
	b.WriteString(p.summary.Render(fmt.Sprintf("%s  %d passed, %d failed, %d errored, %d skipped in %s",
		verdict, c[scenario.StatusPass], c[scenario.StatusFail], c[scenario.StatusError], c[scenario.StatusSkipped],
		run.Duration.Round(time.Millisecond))))
	b.WriteString("\n")

	_, err := io.WriteString(p.w, b.String())
	return err
}

// History prints stored results, newest first.
func (p *Printer) History(results []scenario.Result) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(p.w, p.muted.Render("no runs recorded"))
		return err
	}
	var b strings.Builder
	for _, res := range results {
		b.WriteString(p.muted.Render(res.Started.Local().Format("2006-01-02 15:04:05")) + "  ")
		b.WriteString(p.badge(res.Status) + p.name.Render(res.Scenario))
		b.WriteString(p.muted.Render(shortID(res.RunID)))
		b.WriteString("\n")
		if res.Error != "" {
			b.WriteString(p.detail.Render(res.Error) + "\n")
		}
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}

// Stats prints per-scenario totals.
func (p *Printer) Stats(stats map[string]map[scenario.Status]int) error {
	names := make([]string, 0, len(stats))
	for n := range stats {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		s := stats[n]
		b.WriteString(p.name.Render(n))
		for _, st := range []scenario.Status{scenario.StatusPass, scenario.StatusFail, scenario.StatusError, scenario.StatusSkipped} {
			b.WriteString(fmt.Sprintf(" %s %-4d", p.status[st].UnsetWidth().Render(string(st)), s[st]))
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
