// Package config reads the calibration control file. The file is INI with
// a [Settings] group by default; YAML, TOML and JSON are accepted by
// extension. Every setting can be overridden by a command-line flag or a
// TLCAL_SETTINGS_<NAME> environment variable.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/porterma/tlcal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Group is the control file section holding the settings.
const Group = "settings"

type option struct {
	name, usage string
	defaultVal  interface{}
}

// Options are the recognized settings and their defaults.
var Options = []option{
	{"base_dir", "directory relative paths are resolved against (default: control file directory)", ""},
	{"model_dir", "directory holding the model executable; the model runs with this as its working directory", "matlab"},
	{"model_exe", "model executable, relative to model_dir", "StateTL.exe"},
	{"model_args", "model arguments; {run}, {workdir} and {workdir_rel} are expanded", tlcal.DefaultModelArgs},
	{"model_timeout", "kill a model run after this long (0: never)", time.Duration(0)},
	{"input_file", "baseline model input table in model_dir, and the input name written to each run directory", "StateTL_inputdata.csv"},
	{"template_file", "template written to model_dir", "StateTL_inputdata.tpl"},
	{"parameter_file", "calibration parameter table", "python/StateTL_calibration_inputdata.csv"},
	{"output_file", "model output table read from each run directory", "StateTL_out_calday.csv"},
	{"calib_dir", "directory holding the run directories", "tests"},
	{"results_dir", "results directory, relative to calib_dir", "results"},
	{"results_file", "results table, in results_dir", "parstudy_results.csv"},
	{"samples_file", "per-run sample listing, in results_dir (empty: not written)", "samples.csv"},
	{"log_file", "study log, in results_dir", "parstudy.log"},
	{"workdir_base", "run directory prefix; run n uses <calib_dir>/<workdir_base>.<n>", "par"},
	{"keep_previous", "prior run directories: delete or reuse", tlcal.KeepDelete},
	{"district_column", "district column of the baseline input table", "WD"},
	{"reach_column", "reach column of the baseline input table", "Reach"},
	{"entity_column", "entity column of the model output", "WDID"},
	{"kind_column", "observed/simulated discriminator column of the model output", "1-Gage/2-Sim"},
	{"metadata_columns", "leading non-series columns of the model output", 7},
	{"delimiter", "template placeholder delimiter", string(tlcal.DefaultDelimiter)},
	{"vals_per_param", "par-study values per varying parameter", 2},
	{"workers", "concurrent model runs (0: one per CPU)", 0},
	{"sampler", "parstudy, initial, lhc, montecarlo, sce or rbf", tlcal.SamplerParStudy},
	{"n_samples", "samples (lhc, montecarlo), complexes (sce) or evaluations (rbf)", 0},
	{"seed", "random seed (0: clock)", int64(0)},
	{"log_scale", "symbols sampled in log space", []string{}},
	{"log_level", "debug, info, warn or error", "info"},
	{"log_format", "console log format: text or json", "text"},
	{"metrics_file", "prometheus textfile written at the end of the study (empty: none)", ""},
	{"trace_exporter", "none, stdout or otlp", "none"},
	{"trace_endpoint", "OTLP gRPC endpoint", "localhost:4317"},
	{"trace_file", "stdout exporter destination (empty: standard output)", ""},
}

// Key returns the viper key of setting name.
func Key(name string) string { return Group + "." + name }

// New returns a viper instance holding the defaults and reading
// TLCAL_-prefixed environment variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TLCAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, o := range Options {
		v.SetDefault(Key(o.name), o.defaultVal)
	}
	return v
}

// BindFlags declares one flag per setting on set and binds it into v.
func BindFlags(v *viper.Viper, set *pflag.FlagSet) {
	for _, o := range Options {
		switch d := o.defaultVal.(type) {
		case string:
			set.String(o.name, d, o.usage)
		case int:
			set.Int(o.name, d, o.usage)
		case int64:
			set.Int64(o.name, d, o.usage)
		case []string:
			set.StringSlice(o.name, d, o.usage)
		case time.Duration:
			set.Duration(o.name, d, o.usage)
		default:
			panic(fmt.Sprintf("config: option %s has unsupported type %T", o.name, d))
		}
		v.BindPFlag(Key(o.name), set.Lookup(o.name))
	}
}

// Settings is the resolved control file. Paths are absolute or relative to
// the working directory of the process.
type Settings struct {
	BaseDir        string
	ModelDir       string
	ModelExe       string
	ModelArgs      []string
	ModelTimeout   time.Duration
	InputFile      string
	TemplateFile   string
	ParameterFile  string
	OutputFile     string
	CalibDir       string
	ResultsDir     string
	ResultsFile    string
	SamplesFile    string
	LogFile        string
	WorkdirBase    string
	KeepPrevious   string
	DistrictColumn string
	ReachColumn    string
	EntityColumn   string
	KindColumn     string
	MetadataCols   int
	Delimiter      string
	ValsPerParam   int
	Workers        int
	Sampler        string
	NSamples       int
	Seed           int64
	LogScale       []string
	LogLevel       string
	LogFormat      string
	MetricsFile    string
	TraceExporter  string
	TraceEndpoint  string
	TraceFile      string
}

// Load reads the control file fp (none when empty) into v and returns the
// validated settings.
func Load(v *viper.Viper, fp string) (*Settings, error) {
	cdir := "."
	if fp != "" {
		v.SetConfigFile(fp)
		switch strings.ToLower(filepath.Ext(fp)) {
		case ".yaml", ".yml", ".toml", ".json":
		default:
			v.SetConfigType("ini")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load %s: %w", fp, err)
		}
		cdir = filepath.Dir(fp)
	}

	s := fromViper(v)
	if s.BaseDir == "" {
		s.BaseDir = cdir
	} else if !filepath.IsAbs(s.BaseDir) {
		s.BaseDir = filepath.Join(cdir, s.BaseDir)
	}
	s.ModelDir = s.path(s.ModelDir)
	s.ParameterFile = s.path(s.ParameterFile)
	s.CalibDir = s.path(s.CalibDir)
	if !filepath.IsAbs(s.ResultsDir) {
		s.ResultsDir = filepath.Join(s.CalibDir, s.ResultsDir)
	}
	if s.MetricsFile != "" {
		s.MetricsFile = s.path(s.MetricsFile)
	}
	if s.TraceFile != "" {
		s.TraceFile = s.path(s.TraceFile)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func fromViper(v *viper.Viper) *Settings {
	str := func(n string) string { return strings.TrimSpace(v.GetString(Key(n))) }
	return &Settings{
		BaseDir:        str("base_dir"),
		ModelDir:       str("model_dir"),
		ModelExe:       str("model_exe"),
		ModelArgs:      v.GetStringSlice(Key("model_args")),
		ModelTimeout:   v.GetDuration(Key("model_timeout")),
		InputFile:      str("input_file"),
		TemplateFile:   str("template_file"),
		ParameterFile:  str("parameter_file"),
		OutputFile:     str("output_file"),
		CalibDir:       str("calib_dir"),
		ResultsDir:     str("results_dir"),
		ResultsFile:    str("results_file"),
		SamplesFile:    str("samples_file"),
		LogFile:        str("log_file"),
		WorkdirBase:    str("workdir_base"),
		KeepPrevious:   strings.ToLower(str("keep_previous")),
		DistrictColumn: str("district_column"),
		ReachColumn:    str("reach_column"),
		EntityColumn:   str("entity_column"),
		KindColumn:     str("kind_column"),
		MetadataCols:   v.GetInt(Key("metadata_columns")),
		Delimiter:      str("delimiter"),
		ValsPerParam:   v.GetInt(Key("vals_per_param")),
		Workers:        v.GetInt(Key("workers")),
		Sampler:        strings.ToLower(str("sampler")),
		NSamples:       v.GetInt(Key("n_samples")),
		Seed:           v.GetInt64(Key("seed")),
		LogScale:       v.GetStringSlice(Key("log_scale")),
		LogLevel:       strings.ToLower(str("log_level")),
		LogFormat:      strings.ToLower(str("log_format")),
		MetricsFile:    str("metrics_file"),
		TraceExporter:  strings.ToLower(str("trace_exporter")),
		TraceEndpoint:  str("trace_endpoint"),
		TraceFile:      str("trace_file"),
	}
}

func (s *Settings) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.BaseDir, p)
}

// Validate rejects settings no study can run with.
func (s *Settings) Validate() error {
	bad := func(name string, val interface{}, why string) error {
		return fmt.Errorf("config: %s = %v: %s", name, val, why)
	}
	switch s.KeepPrevious {
	case tlcal.KeepDelete, tlcal.KeepReuse:
	default:
		return bad("keep_previous", s.KeepPrevious, "must be delete or reuse")
	}
	if s.ValsPerParam < 1 {
		return bad("vals_per_param", s.ValsPerParam, "must be at least 1")
	}
	if s.Workers < 0 {
		return bad("workers", s.Workers, "must not be negative")
	}
	if s.MetadataCols < 1 {
		return bad("metadata_columns", s.MetadataCols, "must be at least 1")
	}
	if s.ModelTimeout < 0 {
		return bad("model_timeout", s.ModelTimeout, "must not be negative")
	}
	if r, n := utf8.DecodeRuneInString(s.Delimiter); n == 0 || n != len(s.Delimiter) || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return bad("delimiter", s.Delimiter, "must be a single punctuation character")
	}
	for n, v := range map[string]string{
		"model_exe":      s.ModelExe,
		"input_file":     s.InputFile,
		"template_file":  s.TemplateFile,
		"parameter_file": s.ParameterFile,
		"output_file":    s.OutputFile,
		"calib_dir":      s.CalibDir,
		"results_file":   s.ResultsFile,
		"log_file":       s.LogFile,
	} {
		if v == "" {
			return bad(n, `""`, "must be set")
		}
	}
	if strings.ContainsAny(s.WorkdirBase, `/\`) {
		return bad("workdir_base", s.WorkdirBase, "must be a plain name")
	}
	wb := s.WorkdirBase
	if wb == "" {
		wb = "par"
	}
	if filepath.Clean(filepath.Dir(s.ResultsDir)) == filepath.Clean(s.CalibDir) && strings.HasPrefix(filepath.Base(s.ResultsDir), wb+".") {
		return bad("results_dir", s.ResultsDir, "is named like a run directory and would be purged")
	}
	switch s.Sampler {
	case tlcal.SamplerParStudy, tlcal.SamplerInitial, tlcal.OptimizeSCE, tlcal.OptimizeRBF:
	case tlcal.SamplerLHC, tlcal.SamplerMonteCarlo:
		if s.NSamples < 1 {
			return bad("n_samples", s.NSamples, "must be at least 1 for sampler "+s.Sampler)
		}
	default:
		return bad("sampler", s.Sampler, "unknown sampler")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return bad("log_level", s.LogLevel, err.Error())
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return bad("log_format", s.LogFormat, "must be text or json")
	}
	switch s.TraceExporter {
	case "none", "", "stdout", "otlp":
	default:
		return bad("trace_exporter", s.TraceExporter, "must be none, stdout or otlp")
	}
	return nil
}

// DelimiterRune returns the placeholder delimiter.
func (s *Settings) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(s.Delimiter)
	return r
}

// ResultsPath returns the results table location.
func (s *Settings) ResultsPath() string { return filepath.Join(s.ResultsDir, s.ResultsFile) }

// LogPath returns the study log location.
func (s *Settings) LogPath() string { return filepath.Join(s.ResultsDir, s.LogFile) }

// SamplesPath returns the sample listing location, empty when disabled.
func (s *Settings) SamplesPath() string {
	if s.SamplesFile == "" {
		return ""
	}
	return filepath.Join(s.ResultsDir, s.SamplesFile)
}

// BaselinePath returns the baseline model input table.
func (s *Settings) BaselinePath() string { return filepath.Join(s.ModelDir, s.InputFile) }

// TemplatePath returns where the template is written.
func (s *Settings) TemplatePath() string { return filepath.Join(s.ModelDir, s.TemplateFile) }
