package config

// Command-line flags are parsed first, then applied as the last Option so
// that they win over the settings file and the environment. Only flags the
// user actually passed are applied.

import (
	"flag"
	"fmt"
	"io"
	"time"
)

type flagValues struct {
	url, file, dir, urlsFile string
	recursive                bool

	output string
	resume bool

	token, apiBase string
	retries        int

	model, language          string
	ocr, noFormula, noTable  bool
	concurrency, batchSize   int
	pollInterval, jobTimeout time.Duration
	batchTimeout             time.Duration
	schedule                 string

	logLevel, logFile string

	settings string
}

// Load parses args, loads .env and the settings file, and returns the
// validated Config. A --help request returns flag.ErrHelp.
func Load(args []string, usage io.Writer) (*Config, error) {
	fv, set, err := parseFlags(args, usage)
	if err != nil {
		return nil, err
	}

	LoadDotEnv()

	settingsFile := RuntimeSettingsFilePath()
	if fv.settings != "" {
		settingsFile = fv.settings
	}

	var opts []Option
	if settingsFile != "" {
		settings, err := LoadRuntimeSettingsFile(settingsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRuntimeSettings(settings))
	}
	opts = append(opts, withFlags(fv, set))

	return NewFromEnv(opts...)
}

func parseFlags(args []string, usage io.Writer) (*flagValues, map[string]bool, error) {
	fs := flag.NewFlagSet("mineru-batch", flag.ContinueOnError)
	fs.SetOutput(usage)
	fs.Usage = func() {
		fmt.Fprintln(usage, "Usage: mineru-batch (--url URL | --file PATH | --dir DIR | --urls-file PATH) [options]")
		fmt.Fprintln(usage)
		fs.PrintDefaults()
	}

	fv := &flagValues{}
	defineInputFlags(fs, fv)
	defineConvertFlags(fs, fv)
	defineRunFlags(fs, fv)
	defineUtilityFlags(fs, fv)

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return fv, set, nil
}

func defineInputFlags(fs *flag.FlagSet, fv *flagValues) {
	fs.StringVar(&fv.url, "url", "", "Convert one remote document")
	fs.StringVar(&fv.file, "file", "", "Convert one local file")
	fs.StringVar(&fv.dir, "dir", "", "Convert every supported file in a directory")
	fs.StringVar(&fv.urlsFile, "urls-file", "", "Convert the URLs listed one per line in a file")
	fs.BoolVar(&fv.recursive, "recursive", false, "Scan --dir recursively")
	fs.StringVar(&fv.output, "output", "", "Output root (default ./output)")
	fs.BoolVar(&fv.resume, "resume", false, "Skip documents whose output already exists")
}

func defineConvertFlags(fs *flag.FlagSet, fv *flagValues) {
	fs.StringVar(&fv.token, "token", "", "API token (default $MINERU_TOKEN)")
	fs.StringVar(&fv.apiBase, "api-base", "", "API base URL")
	fs.StringVar(&fv.model, "model", "", "Model version: pipeline | vlm | MinerU-HTML")
	fs.BoolVar(&fv.ocr, "ocr", false, "Force OCR")
	fs.BoolVar(&fv.noFormula, "no-formula", false, "Disable formula recognition")
	fs.BoolVar(&fv.noTable, "no-table", false, "Disable table recognition")
	fs.StringVar(&fv.language, "language", "", "Document language hint for OCR")
}

func defineRunFlags(fs *flag.FlagSet, fv *flagValues) {
	fs.IntVar(&fv.concurrency, "concurrency", 0, "Documents in flight (default 5)")
	fs.IntVar(&fv.concurrency, "c", 0, "Same as --concurrency")
	fs.IntVar(&fv.batchSize, "batch-size", 0, "Files per upload batch (default 1)")
	fs.IntVar(&fv.retries, "retries", 0, "Attempts per remote operation (default 5)")
	fs.Var(durationValue{&fv.pollInterval}, "poll-interval", "Status poll interval, e.g. 5s or 5 (default 5s)")
	fs.Var(durationValue{&fv.jobTimeout}, "timeout", "Per-document timeout (default 10m)")
	fs.Var(durationValue{&fv.batchTimeout}, "batch-timeout", "Whole-run timeout, 0 for none")
	fs.StringVar(&fv.schedule, "schedule", "", "Cron expression; rescan --dir on this schedule")
}

func defineUtilityFlags(fs *flag.FlagSet, fv *flagValues) {
	fs.StringVar(&fv.logLevel, "log-level", "", "debug | info | warn | error")
	fs.StringVar(&fv.logFile, "log-file", "", "Also append logs to this file")
	fs.StringVar(&fv.settings, "settings", "", "JSON settings file (default $SETTINGS_FILE)")
}

// withFlags applies the flags present in set.
func withFlags(fv *flagValues, set map[string]bool) Option {
	return func(c *Config) {
		c.Input = InputConfig{
			URL:       fv.url,
			File:      fv.file,
			Dir:       fv.dir,
			URLsFile:  fv.urlsFile,
			Recursive: fv.recursive,
		}
		if set["output"] {
			c.Output.Dir = fv.output
		}
		if set["resume"] {
			c.Output.Resume = fv.resume
		}
		if set["token"] {
			c.API.Token = fv.token
		}
		if set["api-base"] {
			c.API.BaseURL = fv.apiBase
		}
		if set["retries"] {
			c.API.MaxAttempts = fv.retries
		}
		if set["model"] {
			c.Convert.Model = fv.model
		}
		if set["ocr"] {
			c.Convert.OCR = fv.ocr
		}
		if fv.noFormula {
			c.Convert.EnableFormula = false
		}
		if fv.noTable {
			c.Convert.EnableTable = false
		}
		if set["language"] {
			c.Convert.Language = fv.language
		}
		if set["concurrency"] || set["c"] {
			c.Run.Concurrency = fv.concurrency
		}
		if set["batch-size"] {
			c.Run.BatchSize = fv.batchSize
		}
		if set["poll-interval"] {
			c.Run.PollInterval = fv.pollInterval
		}
		if set["timeout"] {
			c.Run.JobTimeout = fv.jobTimeout
		}
		if set["batch-timeout"] {
			c.Run.BatchTimeout = fv.batchTimeout
		}
		if set["schedule"] {
			c.Run.Schedule = fv.schedule
		}
		if set["log-level"] {
			c.Log.Level = fv.logLevel
		}
		if set["log-file"] {
			c.Log.File = fv.logFile
		}
	}
}

// durationValue accepts Go durations and bare seconds.
type durationValue struct{ d *time.Duration }

func (v durationValue) String() string {
	if v.d == nil {
		return ""
	}
	return v.d.String()
}

func (v durationValue) Set(s string) error {
	d, err := parseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*v.d = d
	return nil
}
