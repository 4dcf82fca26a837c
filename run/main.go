package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/gosuri/uiprogress"
	"github.com/maseology/mmio"
	"github.com/porterma/tlcal"
	"github.com/porterma/tlcal/config"
	"github.com/porterma/tlcal/logging"
	"github.com/porterma/tlcal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

// Cfg holds the control file, flag and environment settings.
var Cfg *viper.Viper

// Root is the main command.
var Root = &cobra.Command{
	Use:   "tlcal",
	Short: "Calibrate the StateTL transit-loss model.",
	Long: `tlcal writes a placeholder template of the StateTL input table from a
calibration parameter table, then runs the model once per parameter sample in
its own working directory and scores each run with the RMSE between gauged
and simulated flow at every gauge.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tlcal v%s\n", version)
	},
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write the model input template only.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		ps, n, err := buildTemplate(s)
		if err != nil {
			return err
		}
		fmt.Printf(" %s written: %d parameters (%d varying)\n", s.TemplatePath(), n, len(ps.Varying()))
		for _, sym := range ps.Symbols() {
			r, _ := ps.Lookup(sym)
			fmt.Printf("   %-12s %-20s WD %-4s reach %-4d value %v [%v, %v] vary=%v\n", sym, r.Column, r.District, r.Reach, r.Value, r.Minimum, r.Maximum, r.Vary)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the calibration study.",
	Long: `run synthesizes the template, prepares the run directories under calib_dir
and evaluates every sample drawn by the configured sampler (a par-study grid
by default), writing the results table to results_dir/results_file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		return runStudy(cmd.Context(), s)
	},
}

func init() {
	Cfg = config.New()
	Root.PersistentFlags().String("config", "", "calibration control file")
	Cfg.BindPFlag("config", Root.PersistentFlags().Lookup("config"))
	config.BindFlags(Cfg, Root.PersistentFlags())
	Root.AddCommand(runCmd, templateCmd, versionCmd)
}

func loadSettings() (*config.Settings, error) {
	return config.Load(Cfg, Cfg.GetString("config"))
}

func buildTemplate(s *config.Settings) (*tlcal.ParameterSet, int, error) {
	ps, err := tlcal.LoadParameters(s.ParameterFile)
	if err != nil {
		return nil, 0, err
	}
	_, n, err := tlcal.BuildTemplate(ps, s.BaselinePath(), s.TemplatePath(), tlcal.TemplateOptions{
		DistrictColumn: s.DistrictColumn,
		ReachColumn:    s.ReachColumn,
		Delimiter:      s.DelimiterRune(),
	})
	if err != nil {
		return nil, 0, err
	}
	return ps, n, nil
}

func runStudy(ctx context.Context, s *config.Settings) error {
	tt := mmio.NewTimer()

	ps, n, err := buildTemplate(s)
	if err != nil {
		return err
	}
	tt.Lap(fmt.Sprintf("template written: %d parameters (%d varying)", n, len(ps.Varying())))

	dirs, err := tlcal.NewWorkdirs(s.CalibDir, s.WorkdirBase, s.KeepPrevious)
	if err != nil {
		return err
	}
	deleted, err := dirs.Prepare()
	if err != nil {
		return err
	}
	mmio.MakeDir(s.ResultsDir)
	if !mmio.DirExists(s.ResultsDir) {
		return fmt.Errorf("cannot create results directory %s", s.ResultsDir)
	}

	studyID := uuid.New().String()
	logger, lf, err := logging.Open(s.LogLevel, s.LogFormat, os.Stderr, s.LogPath())
	if err != nil {
		return err
	}
	defer lf.Close()
	logger = logger.With("study", studyID)
	logger.Info("study started", "model", s.ModelDir, "calib_dir", s.CalibDir, "sampler", s.Sampler, "deleted_dirs", len(deleted))

	var tw io.Writer
	if s.TraceFile != "" {
		f, err := os.Create(s.TraceFile)
		if err != nil {
			return err
		}
		defer f.Close()
		tw = f
	}
	shutdown, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Exporter: s.TraceExporter,
		Endpoint: s.TraceEndpoint,
		Writer:   tw,
		StudyID:  studyID,
	}, logger)
	if err != nil {
		return err
	}
	defer telemetry.ShutdownWithTimeout(context.Background(), shutdown, logger)

	reg := prometheus.NewRegistry()
	coll, err := telemetry.NewCollector(reg)
	if err != nil {
		return err
	}

	tpl, err := tlcal.LoadTemplate(s.TemplatePath())
	if err != nil {
		return err
	}
	study, err := tlcal.NewStudy(tlcal.StudyConfig{
		Params:   ps,
		Template: tpl,
		Dirs:     dirs,
		Runner: &tlcal.Runner{
			ModelDir: s.ModelDir,
			Exe:      s.ModelExe,
			Args:     s.ModelArgs,
			Timeout:  s.ModelTimeout,
		},
		Objective: &tlcal.Objective{
			OutputFile:      s.OutputFile,
			EntityColumn:    s.EntityColumn,
			KindColumn:      s.KindColumn,
			MetadataColumns: s.MetadataCols,
			Logger:          logger,
		},
		InputFile: s.InputFile,
		Workers:   s.Workers,
		Logger:    logger,
		Observer:  coll,
		LogScale:  s.LogScale,
	})
	if err != nil {
		return err
	}

	plan := tlcal.Plan{
		Sampler:   s.Sampler,
		ValsPer:   s.ValsPerParam,
		N:         s.NSamples,
		Seed:      s.Seed,
		OutputDir: s.ResultsDir,
	}
	nrun := study.Planned(plan)
	fmt.Printf(" %s: %d samples over %d varying parameters, %d workers\n", s.Sampler, nrun, len(ps.Varying()), study.Workers)

	done := func(tlcal.RunResult) {}
	if nrun > 0 {
		uiprogress.Start()
		bar := uiprogress.AddBar(nrun).AppendCompleted().PrependElapsed()
		done = func(tlcal.RunResult) { bar.Incr() }
	}
	cerr := study.Calibrate(ctx, plan, done)
	if nrun > 0 {
		uiprogress.Stop()
	}

	// results are saved even when the study was interrupted
	if err := study.Save(s.ResultsPath(), s.SamplesPath()); err != nil {
		return err
	}
	if s.MetricsFile != "" {
		if err := coll.WriteTextfile(s.MetricsFile); err != nil {
			logger.Warn("metrics not written", "err", err.Error())
		}
	}
	summarize(logger, study.Results())
	if cerr != nil {
		return cerr
	}
	tt.Lap(fmt.Sprintf("Total running time. n processes: %v", runtime.GOMAXPROCS(0)))
	return nil
}

func summarize(logger *slog.Logger, rt *tlcal.ResultsTable) {
	nfail := 0
	for _, r := range rt.Runs() {
		if r.Failed() {
			nfail++
		}
	}
	logger.Info("study complete", "runs", rt.Len(), "failed", nfail)
	if best, ok := rt.Best(); ok {
		fmt.Printf("\n best run %s: mean RMSE %s\n", best.RunID, tlcal.FormatValue(best.Score()))
		var sb strings.Builder
		for _, e := range rt.Entities() {
			fmt.Fprintf(&sb, "   %-12s %s\n", e, tlcal.FormatValue(best.Get(e)))
		}
		fmt.Print(sb.String())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Root.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Fatalf(" tlcal: %v\n", err)
	}
}
