package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"duskcat/internal/config"
	"duskcat/internal/core"
)

// verbosity implements flag.Value so repeated -d/-q flags accumulate
// instead of the last one winning, matching dnscat.c's getopt loop (§12).
type verbosity struct{ delta int }

func (v *verbosity) String() string   { return fmt.Sprintf("%d", v.delta) }
func (v *verbosity) IsBoolFlag() bool { return true }
func (v *verbosity) Set(string) error {
	v.delta++
	return nil
}

type quietness struct{ delta int }

func (q *quietness) String() string   { return fmt.Sprintf("%d", q.delta) }
func (q *quietness) IsBoolFlag() bool { return true }
func (q *quietness) Set(string) error {
	q.delta++
	return nil
}

func main() {
	domain := flag.String("domain", "", "Tunnel domain (required)")
	resolver := flag.String("resolver", "", "DNS resolver address, host:port (required)")
	name := flag.String("name", "", "Session name sent in the SYN packet")
	download := flag.String("download", "", "Local path to write downloaded data to")
	chunk := flag.Int("chunk", 0, "Chunk size for --download transfers (requires --download)")
	recordTypes := flag.String("qtype", "", "Comma-separated record type rotation (txt,cname,mx,a,aaaa,ns); default txt")

	console := flag.Bool("console", false, "Send/receive output to the console (default)")
	exec := flag.String("exec", "", "Execute the given process and link it to the stream")
	listen := flag.String("listen", "", "Listen on the given address and link the first connection")
	command := flag.Bool("command", false, "Use the experimental \"command\" protocol")
	ping := flag.Bool("ping", false, "Attempt to ping a duskcat server, then exit")

	var v verbosity
	var q quietness
	flag.Var(&v, "d", "Increase verbosity (repeatable)")
	flag.Var(&q, "q", "Decrease verbosity (repeatable)")

	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(config.VerbosityToLevel(v.delta - q.delta))

	cfg, err := buildConfig(*domain, *resolver, *name, *download, *chunk, *recordTypes, *console, *exec, *listen, *command, *ping)
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}

	c, err := core.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c.Run(ctx)
	c.Shutdown()
}

func buildConfig(domain, resolver, name, download string, chunk int, recordTypesCSV string, console bool, execCmd, listenAddr string, command, ping bool) (*config.Config, error) {
	selected := 0
	driverKind := config.DriverConsole
	if console {
		selected++
		driverKind = config.DriverConsole
	}
	if execCmd != "" {
		selected++
		driverKind = config.DriverExec
	}
	if listenAddr != "" {
		selected++
		driverKind = config.DriverListener
	}
	if command {
		selected++
		driverKind = config.DriverCommand
	}
	if ping {
		selected++
		driverKind = config.DriverPing
	}
	if selected > 1 {
		return nil, fmt.Errorf("more than one of --command, --exec, --console, --listen, and --ping can't be set")
	}

	recordTypes, err := config.ParseRecordTypes(recordTypesCSV)
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Domain:      domain,
		Resolver:    resolver,
		Name:        name,
		Download:    download,
		Chunk:       chunk,
		RecordTypes: recordTypes,
		Driver:      driverKind,
		ExecCommand: execCmd,
		ListenAddr:  listenAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
