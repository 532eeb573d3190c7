// Package main provides the parcelwatch CLI.
//
// Commands:
//   - fetch  : download the parcel layer intersecting the city boundary to GeoJSON
//   - detect : compare the current dataset against the baseline, write the
//     change summary, rotate the baseline and optionally alert Telegram
//   - bot    : run the Telegram query bot (long polling)
//   - serve  : run the HTTP query API, plus the bot when a token is configured
//
// Settings come from an optional -config file (TOML or YAML), .env, the
// environment, then flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"parcelwatch/internal/config"
	"parcelwatch/internal/logging"
	"parcelwatch/internal/meta"
)

var commands = []string{"fetch", "detect", "bot", "serve"}

// errUsage marks command-line mistakes (exit status 2).
var errUsage = errors.New("usage")

// options are the parsed command line. set records which flags were given
// explicitly, so only those override the config file.
type options struct {
	command    string
	configPath string
	logLevel   string

	current   string
	baseline  string
	summary   string
	watchlist string
	offset    string
	keyField  string
	fields    string

	sampleSize   int
	sendTelegram bool
	title        string

	chunkSize int
	pause     float64
	city      string

	listen string
	noBot  bool

	set map[string]bool
}

func usage(w io.Writer) {
	prog := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  %s fetch  [-config file] [-current out.geojson] [-chunk-size N] [-pause S]\n", prog)
	fmt.Fprintf(w, "  %s detect [-config file] [-current f] [-baseline f] [-summary f] [-sample-size N] [-send-telegram]\n", prog)
	fmt.Fprintf(w, "  %s bot    [-config file] [-offset f]\n", prog)
	fmt.Fprintf(w, "  %s serve  [-config file] [-listen addr] [-no-bot]\n", prog)
	fmt.Fprintf(w, "Run '%s <command> -h' for the flags of a command.\n", prog)
}

func parseFlags(args []string) (options, error) {
	var o options
	if len(args) == 0 {
		return o, fmt.Errorf("%w: missing command (one of %s)", errUsage, strings.Join(commands, ", "))
	}
	o.command = args[0]
	known := false
	for _, c := range commands {
		known = known || c == o.command
	}
	if !known {
		return o, fmt.Errorf("%w: unknown command %q", errUsage, o.command)
	}

	fs := flag.NewFlagSet(o.command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.configPath, "config", "", "config file (.toml, .yaml or .yml)")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&o.current, "current", "", "current parcel dataset (GeoJSON)")
	fs.StringVar(&o.summary, "summary", "", "change summary JSON")
	fs.StringVar(&o.watchlist, "watchlist", "", "watched parcel ids, one per line")
	fs.StringVar(&o.keyField, "key-field", "", "property identifying a parcel")

	switch o.command {
	case "fetch":
		fs.IntVar(&o.chunkSize, "chunk-size", 0, "object ids per feature request")
		fs.Float64Var(&o.pause, "pause", 0, "seconds to wait between chunk requests")
		fs.StringVar(&o.city, "city", "", "boundary NAME to intersect")
	case "detect":
		fs.StringVar(&o.baseline, "baseline", "", "baseline dataset from the previous run")
		fs.StringVar(&o.fields, "fields", "", "comma-separated properties to compare")
		fs.IntVar(&o.sampleSize, "sample-size", 0, "ids per sample list")
		fs.BoolVar(&o.sendTelegram, "send-telegram", false, "send the summary to TELEGRAM_CHAT_ID")
		fs.StringVar(&o.title, "title", "", "alert title")
	case "bot":
		fs.StringVar(&o.offset, "offset", "", "file persisting the update offset")
	case "serve":
		fs.StringVar(&o.offset, "offset", "", "file persisting the update offset")
		fs.StringVar(&o.listen, "listen", "", "HTTP listen address")
		fs.BoolVar(&o.noBot, "no-bot", false, "serve the API only")
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return o, err
		}
		return o, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	if o.sampleSize < 0 {
		return o, fmt.Errorf("%w: -sample-size must be >= 0", errUsage)
	}
	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// apply overlays explicitly set flags on cfg.
func (o options) apply(cfg *config.Config) {
	str := func(name, v string, dst *string) {
		if o.set[name] {
			*dst = v
		}
	}
	str("log-level", o.logLevel, &cfg.LogLevel)
	str("current", o.current, &cfg.Paths.Current)
	str("baseline", o.baseline, &cfg.Paths.Baseline)
	str("summary", o.summary, &cfg.Paths.Summary)
	str("watchlist", o.watchlist, &cfg.Paths.Watchlist)
	str("offset", o.offset, &cfg.Paths.Offset)
	str("key-field", o.keyField, &cfg.Index.KeyField)
	str("title", o.title, &cfg.Telegram.Title)
	str("city", o.city, &cfg.GIS.City)
	str("listen", o.listen, &cfg.Listen)
	if o.set["fields"] {
		cfg.Index.Fields = splitCSV(o.fields)
	}
	if o.set["sample-size"] {
		cfg.SampleSize = o.sampleSize
	}
	if o.set["chunk-size"] && o.chunkSize > 0 {
		cfg.GIS.ChunkSize = o.chunkSize
	}
	if o.set["pause"] {
		cfg.GIS.PauseSeconds = max(0, o.pause)
	}
}

// splitCSV converts a comma-separated list into a slice, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage(os.Stdout)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
	opts.apply(cfg)

	log, err := logging.Setup(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(2)
	}

	log.Debug("parcelwatch: starting", "command", opts.command, "version", meta.Version())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, opts: opts, log: log, stdout: os.Stdout}
	if err := a.run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		stop()
		os.Exit(1)
	}
}
