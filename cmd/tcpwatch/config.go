package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Config holds the recorder's CLI-derived settings, populated by
// parseFlags. Matches the teacher's own Config struct pattern
// (probes/network/tcp-flow/tcp_flow.go's Config) rather than threading
// individual flag values through the call chain.
type Config struct {
	Interface    string
	DBPath       string
	Port         uint16
	Quiet        bool
	TUIUpdate    time.Duration
	Headers      bool
	Tracepoints  bool
	KernelProbes bool
}

// parseFlags implements the CLI surface from spec.md §6: a positional
// interface name and the -f/-p/-q/--tui-update-ms/-h/-t/-k options,
// each with a long form. flag.FlagSet (not a third-party CLI library)
// is used deliberately: the parsing surface is new for this repo and
// small enough that reaching for a flag-parsing dependency the pack
// never shows would be adding a dep with no grounding (see DESIGN.md).
func parseFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("tcpwatch", flag.ContinueOnError)

	var cfg Config
	var tuiMS int

	fs.StringVar(&cfg.DBPath, "f", "capture.db", "output database path")
	fs.StringVar(&cfg.DBPath, "file", "capture.db", "output database path")
	var port int
	fs.IntVar(&port, "p", 0, "filter on this port (0 disables filtering)")
	fs.IntVar(&port, "port", 0, "filter on this port (0 disables filtering)")
	fs.BoolVar(&cfg.Quiet, "q", false, "disable the interactive dashboard")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "disable the interactive dashboard")
	fs.IntVar(&tuiMS, "tui-update-ms", 100, "telemetry sampling interval, in milliseconds")
	fs.BoolVar(&cfg.Headers, "h", false, "capture packet headers (tc/xdp)")
	fs.BoolVar(&cfg.Headers, "headers", false, "capture packet headers (tc/xdp)")
	fs.BoolVar(&cfg.Tracepoints, "t", false, "capture congestion/retransmit/checksum tracepoints")
	fs.BoolVar(&cfg.Tracepoints, "tracepoints", false, "capture congestion/retransmit/checksum tracepoints")
	fs.BoolVar(&cfg.KernelProbes, "k", false, "capture socket kprobe snapshots")
	fs.BoolVar(&cfg.KernelProbes, "kernel", false, "capture socket kprobe snapshots")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [flags] <interface>\n", os.Args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() != 1 {
		return Config{}, fmt.Errorf("tcpwatch: expected exactly one positional argument (interface), got %d", fs.NArg())
	}
	cfg.Interface = fs.Arg(0)
	cfg.Port = uint16(port)
	cfg.TUIUpdate = time.Duration(tuiMS) * time.Millisecond
	return cfg, nil
}

// sourcesSelected reports whether at least one capture source was
// enabled. spec.md §6: "Exit codes: ... non-zero if no source was
// selected."
func (c Config) sourcesSelected() bool {
	return c.Headers || c.Tracepoints || c.KernelProbes
}
