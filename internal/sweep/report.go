package sweep

import (
	"fmt"
	"io"
	"time"

	"github.com/verte-zerg/omorifit/internal/model"
)

// ReportOptions controls RenderReport.
type ReportOptions struct {
	// Width is the total output width; zero fits the terminal.
	Width int
	// Plots adds a braille curve for every varying parameter.
	Plots bool
	// Color forces ANSI color in plots.
	Color bool
}

// RenderReport prints a sweep summary, the best point and per-parameter profiles.
func RenderReport(w io.Writer, summary model.SweepSummary, points []model.SweepPoint, opts ReportOptions) error {
	if err := RenderSummary(w, summary); err != nil {
		return err
	}
	if len(points) == 0 {
		_, err := fmt.Fprintln(w, "No points found.")
		return err
	}
	profiles := Profiles(points)
	if err := renderProfileTable(w, profiles); err != nil {
		return err
	}
	if !opts.Plots {
		return nil
	}
	width := 0
	if opts.Width > 0 {
		width = PlotWidthFor(opts.Width)
	}
	for _, p := range profiles {
		if len(p.Values) < 3 {
			continue
		}
		if err := PlotProfile(w, p, width, defaultPlotHeight, opts.Color); err != nil {
			return err
		}
	}
	return nil
}

// RenderSummary prints the header block of a sweep.
func RenderSummary(w io.Writer, s model.SweepSummary) error {
	name := s.Name
	if name == "" {
		name = "(unnamed)"
	}
	lines := []string{
		fmt.Sprintf("Sweep %s", name),
	}
	if s.HistoryPath != "" {
		lines = append(lines, fmt.Sprintf("History: %s (%d events, %d intervals)", s.HistoryPath, s.Events, s.Intervals))
	}
	cfg := s.Config
	lines = append(lines,
		fmt.Sprintf("Magnitudes: mref=%g msup=%g range=[%g, %g] lmr=%s", cfg.Ref, cfg.Sup, cfg.MagMin, cfg.MagMax, cfg.LMR),
		fmt.Sprintf("Intervals as sources: %t", cfg.UseIntervals),
		fmt.Sprintf("Points: %d (%d non-finite) in %s", s.Points, s.NonFinite, (time.Duration(s.DurationMs) * time.Millisecond).String()),
		"",
		"Best fit",
	)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if s.Points == s.NonFinite {
		_, err := fmt.Fprint(w, "No finite log-likelihood found.\n\n")
		return err
	}
	headers := append([]string{}, model.ParamNames...)
	headers = append(headers, "loglike")
	row := make([]string, 0, len(headers))
	for _, v := range s.Best.Params() {
		row = append(row, fmt.Sprintf("%.4g", v))
	}
	row = append(row, fmt.Sprintf("%.6f", s.Best.LogLike))
	right := map[int]bool{}
	for i := range headers {
		right[i] = true
	}
	for _, line := range formatTable(headers, [][]string{row}, right) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func renderProfileTable(w io.Writer, profiles []Profile) error {
	if _, err := fmt.Fprintln(w, "Profiles"); err != nil {
		return err
	}
	headers := []string{"Param", "Values", "Range", "Argmax", "Profile"}
	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		rangeCell := fmt.Sprintf("%.4g", p.Values[0])
		if p.Varies() {
			rangeCell = fmt.Sprintf("%.4g .. %.4g", p.Values[0], p.Values[len(p.Values)-1])
		}
		argmax := "-"
		if v, ok := p.Argmax(); ok {
			argmax = fmt.Sprintf("%.4g", v)
		}
		spark := ""
		if p.Varies() {
			spark = Sparkline(p.LogLike)
		}
		rows = append(rows, []string{
			p.Name,
			fmt.Sprintf("%d", len(p.Values)),
			rangeCell,
			argmax,
			spark,
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{1: true, 3: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
