// Package main provides the CLI entrypoint for omorifit.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/omorifit/internal/catalog"
	"github.com/verte-zerg/omorifit/internal/config"
	"github.com/verte-zerg/omorifit/internal/engine"
	"github.com/verte-zerg/omorifit/internal/fitui"
	"github.com/verte-zerg/omorifit/internal/model"
	"github.com/verte-zerg/omorifit/internal/store"
	"github.com/verte-zerg/omorifit/internal/sweep"
	"github.com/verte-zerg/omorifit/internal/synth"
)

const (
	defaultRef     = 3.0
	defaultSup     = 9.5
	defaultMagMin  = 3.0
	defaultMagMax  = 9.5
	defaultLMR     = "td-inf"
	defaultWorkers = 0

	defaultB     = 1.0
	defaultAlpha = 1.0
	defaultP     = 1.1
	defaultC     = 0.01
	defaultAint  = -2.0
	defaultA     = -1.0
	defaultAms   = 0.0
)

type fitFlags struct {
	ref          float64
	sup          float64
	magMin       float64
	magMax       float64
	lmr          string
	useIntervals bool
	likelihood   bool
	workers      int
}

var (
	evalHistory      string
	evalFit          fitFlags
	evalB            float64
	evalAlpha        float64
	evalP            float64
	evalC            float64
	evalAint         float64
	evalA            float64
	evalAms          float64
	evalProductivity bool

	sweepHistory string
	sweepName    string
	sweepFit     fitFlags
	sweepSave    bool
	sweepPlots   bool

	synthOut        string
	synthSeed       int64
	synthEvents     int
	synthDuration   float64
	synthB          float64
	synthMainMag    float64
	synthMagCat     float64
	synthClustering float64
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "omorifit",
		Short:         "Omori/Gutenberg-Richter likelihood fitting",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newFitsCmd())
	rootCmd.AddCommand(newSynthCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addFitFlags(cmd *cobra.Command, f *fitFlags) {
	cmd.Flags().Float64Var(&f.ref, "mref", defaultRef, "reference magnitude of the productivity law")
	cmd.Flags().Float64Var(&f.sup, "msup", defaultSup, "upper magnitude of the productivity law")
	cmd.Flags().Float64Var(&f.magMin, "mag-min", defaultMagMin, "lower magnitude of the simulation range")
	cmd.Flags().Float64Var(&f.magMax, "mag-max", defaultMagMax, "upper magnitude of the simulation range")
	cmd.Flags().StringVar(&f.lmr, "lmr", defaultLMR, "magnitude range option (td-inf, td-max, cat-inf, cat-max)")
	cmd.Flags().BoolVar(&f.useIntervals, "use-intervals", true, "let intervals act as productivity sources")
	cmd.Flags().BoolVar(&f.likelihood, "likelihood", true, "compute target-event and integral terms")
	cmd.Flags().IntVar(&f.workers, "workers", defaultWorkers, "parallel sweep workers (0 = all CPUs)")
}

// resolveFit merges config file values into flags the user did not set.
func resolveFit(cmd *cobra.Command, f *fitFlags, fileCfg config.FitConfig) model.FitConfig {
	applyFloatConfig(cmd, "mref", &f.ref, fileCfg.Ref)
	applyFloatConfig(cmd, "msup", &f.sup, fileCfg.Sup)
	applyFloatConfig(cmd, "mag-min", &f.magMin, fileCfg.MagMin)
	applyFloatConfig(cmd, "mag-max", &f.magMax, fileCfg.MagMax)
	applyStringConfig(cmd, "lmr", &f.lmr, fileCfg.LMR)
	applyBoolConfig(cmd, "use-intervals", &f.useIntervals, fileCfg.UseIntervals)
	applyBoolConfig(cmd, "likelihood", &f.likelihood, fileCfg.Likelihood)
	applyIntConfig(cmd, "workers", &f.workers, fileCfg.Workers)
	return model.FitConfig{
		Ref:          f.ref,
		Sup:          f.sup,
		MagMin:       f.magMin,
		MagMax:       f.magMax,
		LMR:          f.lmr,
		UseIntervals: f.useIntervals,
		Likelihood:   f.likelihood,
		Workers:      f.workers,
	}
}

func loadFitter(historyPath string, cfg model.FitConfig) (*engine.Fitter, error) {
	if historyPath == "" {
		return nil, fmt.Errorf("--history is required")
	}
	h, err := catalog.Load(historyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	opts, err := sweep.EngineOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid fit options: %w", err)
	}
	f, err := engine.NewFitter(h, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare fitter: %w", err)
	}
	return f, nil
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate the log-likelihood at one parameter point",
		Args:  cobra.NoArgs,
		RunE:  runEvalCmd,
	}
	cmd.Flags().StringVar(&evalHistory, "history", "", "history TOML file")
	cmd.Flags().Float64Var(&evalB, "b", defaultB, "Gutenberg-Richter b-value")
	cmd.Flags().Float64Var(&evalAlpha, "alpha", defaultAlpha, "productivity magnitude exponent")
	cmd.Flags().Float64Var(&evalP, "p", defaultP, "Omori decay exponent")
	cmd.Flags().Float64Var(&evalC, "c", defaultC, "Omori time offset")
	cmd.Flags().Float64Var(&evalAint, "aint", defaultAint, "log productivity of intervals")
	cmd.Flags().Float64Var(&evalA, "a", defaultA, "log productivity of non-primary events")
	cmd.Flags().Float64Var(&evalAms, "ams", defaultAms, "log productivity of the primary event")
	cmd.Flags().BoolVar(&evalProductivity, "productivity", false, "print per-interval productivity")
	addFitFlags(cmd, &evalFit)
	return cmd
}

func runEvalCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := resolveFit(cmd, &evalFit, fileCfg.Fit)
	f, err := loadFitter(evalHistory, cfg)
	if err != nil {
		return err
	}
	shape := engine.Shape{B: evalB, Alpha: evalAlpha, P: evalP, C: evalC}
	res, err := f.Evaluate(shape, evalAint, evalA, evalAms)
	if err != nil {
		return fmt.Errorf("failed to evaluate: %w", err)
	}
	return writeEval(cmd.OutOrStdout(), f.History(), res, evalProductivity)
}

func writeEval(w io.Writer, h *catalog.History, res engine.Result, productivity bool) error {
	loglike := "disabled"
	if res.HasLogLike {
		loglike = fmt.Sprintf("%.6f", res.LogLike)
	}
	primary := "none"
	if h.HasPrimary() {
		ev := h.Events[h.Primary]
		primary = fmt.Sprintf("#%d (M%.2f at t=%g)", h.Primary, ev.Mag, ev.Time)
	}
	if _, err := fmt.Fprintf(w, "Log-likelihood: %s\nQ: %.6g\nPrimary: %s\n", loglike, res.Q, primary); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if !productivity {
		return nil
	}
	if _, err := fmt.Fprintf(w, "\n%5s  %12s  %12s  %6s  %14s\n", "#", "begin", "end", "mc", "productivity"); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	for j, iv := range h.Intervals {
		if _, err := fmt.Fprintf(w, "%5d  %12.6g  %12.6g  %6.2f  %14.6g\n", j, iv.Begin, iv.End, iv.Mc, res.IntervalProductivity[j]); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate a parameter grid and report profiles",
		Args:  cobra.NoArgs,
		RunE:  runSweepCmd,
	}
	cmd.Flags().StringVar(&sweepHistory, "history", "", "history TOML file")
	cmd.Flags().StringVar(&sweepName, "name", "", "sweep name (default: history file name)")
	cmd.Flags().BoolVar(&sweepSave, "save", false, "store the sweep in the database")
	cmd.Flags().BoolVar(&sweepPlots, "plots", true, "draw profile plots")
	addFitFlags(cmd, &sweepFit)
	return cmd
}

func defaultGrid() model.Grid {
	return model.Grid{
		B:     model.Range{Min: 0.8, Max: 1.2, N: 5},
		Alpha: model.Range{Min: 0.6, Max: 1.0, N: 3},
		P:     model.Range{Min: 1.0, Max: 1.4, N: 5},
		C:     model.Range{Min: 0.001, Max: 0.1, N: 5, Log: true},
		Aint:  model.Range{Min: -3, Max: -1, N: 3},
		A:     model.Range{Min: -3, Max: 0, N: 7},
		Ams:   model.Range{Min: -2, Max: 1, N: 7},
	}
}

func runSweepCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := resolveFit(cmd, &sweepFit, fileCfg.Fit)
	if !cfg.Likelihood {
		return fmt.Errorf("sweep needs --likelihood")
	}
	grid, err := fileCfg.Grid.ApplyGrid(defaultGrid())
	if err != nil {
		return fmt.Errorf("invalid grid: %w", err)
	}
	f, err := loadFitter(sweepHistory, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logErrf("Sweeping %d points...\n", grid.Size())
	lastReport := time.Now()
	res, err := sweep.Run(ctx, f, grid, sweep.Options{
		Workers: cfg.Workers,
		Progress: func(done, total int) {
			if done == total || time.Since(lastReport) > time.Second {
				logErrf("  %d/%d kernel cells\n", done, total)
				lastReport = time.Now()
			}
		},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("sweep interrupted")
		}
		return fmt.Errorf("failed to run sweep: %w", err)
	}

	name := sweepName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(sweepHistory), filepath.Ext(sweepHistory))
	}
	summary := sweep.Summarize(name, sweepHistory, f.History(), cfg, res)

	if sweepSave {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore(st)
		id, err := sweep.Save(ctx, st, summary, res)
		if err != nil {
			return fmt.Errorf("failed to save sweep: %w", err)
		}
		summary.ID = id
		logErrf("Saved sweep #%d\n", id)
	}

	if err := sweep.RenderReport(cmd.OutOrStdout(), summary, res.Points, sweep.ReportOptions{Plots: sweepPlots}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func newFitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fits",
		Short: "Browse stored sweeps",
		Args:  cobra.NoArgs,
		RunE:  runFitsCmd,
	}
}

func runFitsCmd(_ *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	program := tea.NewProgram(fitui.NewModel(st), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run sweep browser: %w", err)
	}
	return nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

func newSynthCmd() *cobra.Command {
	defaults := synth.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic history",
		Args:  cobra.NoArgs,
		RunE:  runSynthCmd,
	}
	cmd.Flags().StringVar(&synthOut, "out", "", "output TOML file")
	cmd.Flags().Int64Var(&synthSeed, "seed", 0, "random seed (default: current time)")
	cmd.Flags().IntVar(&synthEvents, "events", defaults.Events, "number of events including the primary")
	cmd.Flags().Float64Var(&synthDuration, "duration", defaults.Duration, "history length")
	cmd.Flags().Float64Var(&synthB, "b", defaults.B, "Gutenberg-Richter b-value")
	cmd.Flags().Float64Var(&synthMainMag, "main-mag", defaults.MainMag, "primary event magnitude")
	cmd.Flags().Float64Var(&synthMagCat, "mag-cat", defaults.MagCat, "catalog completeness magnitude")
	cmd.Flags().Float64Var(&synthClustering, "clustering", defaults.Clustering, "time clustering exponent (>= 1)")
	return cmd
}

func runSynthCmd(cmd *cobra.Command, _ []string) error {
	if synthOut == "" {
		return fmt.Errorf("--out is required")
	}
	cfg := synth.DefaultConfig()
	cfg.Events = synthEvents
	cfg.Duration = synthDuration
	cfg.B = synthB
	cfg.MainMag = synthMainMag
	cfg.MagCat = synthMagCat
	cfg.Clustering = synthClustering

	seed := synthSeed
	if !cmd.Flags().Changed("seed") {
		seed = time.Now().UnixNano()
	}
	h, err := synth.New(seed).Generate(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate history: %w", err)
	}
	if err := catalog.Save(synthOut, h); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	logErrf("Wrote %s (%d events, %d intervals, seed %d)\n", synthOut, h.EventCount(), h.IntervalCount(), seed)
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	g := defaultGrid()
	return fmt.Sprintf(`# omorifit configuration
# Uncomment a value to enable it. CLI flags override config values.

[fit]
# mref = %.1f              # Reference magnitude of the productivity law
# msup = %.1f              # Upper magnitude of the productivity law
# mag_min = %.1f           # Lower magnitude of the simulation range
# mag_max = %.1f           # Upper magnitude of the simulation range
# lmr = %q          # td-inf, td-max, cat-inf or cat-max
# use_intervals = true     # Let intervals act as productivity sources
# likelihood = true        # Compute target-event and integral terms
# workers = %d              # Parallel sweep workers (0 = all CPUs)

[grid]
# Each axis takes min, max and n, or a single value. Set log to true for geometric spacing.
# b = %s
# alpha = %s
# p = %s
# c = %s
# aint = %s
# a = %s
# ams = %s
`,
		defaultRef,
		defaultSup,
		defaultMagMin,
		defaultMagMax,
		defaultLMR,
		defaultWorkers,
		rangeTOML(g.B),
		rangeTOML(g.Alpha),
		rangeTOML(g.P),
		rangeTOML(g.C),
		rangeTOML(g.Aint),
		rangeTOML(g.A),
		rangeTOML(g.Ams),
	)
}

func rangeTOML(r model.Range) string {
	if r.Log {
		return fmt.Sprintf("{ min = %s, max = %s, n = %d, log = true }", tomlFloat(r.Min), tomlFloat(r.Max), r.N)
	}
	return fmt.Sprintf("{ min = %s, max = %s, n = %d }", tomlFloat(r.Min), tomlFloat(r.Max), r.N)
}

// tomlFloat keeps a decimal point so the value decodes as a float.
func tomlFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
