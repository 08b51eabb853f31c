// Package config holds the validated, already-parsed configuration that
// drives internal/core's wiring. It exists so the reactor/session/driver
// wiring never touches flag.FlagSet directly, grounded on the one example
// repo that factors CLI-adjacent configuration into its own typed,
// validated struct (jroosing-HydraDNS/internal/config).
package config

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

// DriverKind selects the mutually-exclusive input driver (§4.5: "exactly
// one input driver ... per process").
type DriverKind int

const (
	DriverConsole DriverKind = iota
	DriverExec
	DriverListener
	DriverCommand
	DriverPing
)

func (k DriverKind) String() string {
	switch k {
	case DriverConsole:
		return "console"
	case DriverExec:
		return "exec"
	case DriverListener:
		return "listener"
	case DriverCommand:
		return "command"
	case DriverPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Config is the fully validated configuration for a duskcat client run.
type Config struct {
	Domain   string
	Resolver string

	Name        string
	Download    string
	Chunk       int
	RecordTypes []uint16

	Driver      DriverKind
	ExecCommand string
	ListenAddr  string

	LogLevel zerolog.Level
}

// recordTypeByName maps the CLI-facing record type names to their RFC 1035
// type codes; order here has no bearing on the driver's rotation order.
var recordTypeByName = map[string]uint16{
	"txt":   dns.TypeTXT,
	"cname": dns.TypeCNAME,
	"mx":    dns.TypeMX,
	"a":     dns.TypeA,
	"aaaa":  dns.TypeAAAA,
	"ns":    dns.TypeNS,
}

// ParseRecordTypes turns a comma-separated list like "txt,cname" into the
// wire type codes used by the DNS driver's rotation (§6: "Record types
// used: TXT, CNAME, MX, A, AAAA, NS").
func ParseRecordTypes(csv string) ([]uint16, error) {
	if strings.TrimSpace(csv) == "" {
		return []uint16{dns.TypeTXT}, nil
	}
	var types []uint16
	for _, name := range strings.Split(csv, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		rtype, ok := recordTypeByName[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown record type %q", name)
		}
		types = append(types, rtype)
	}
	return types, nil
}

// VerbosityToLevel maps a signed verbosity delta (repeated -d raises it,
// repeated -q lowers it, per dnscat.c's getopt loop) onto a zerolog level,
// with zerolog.InfoLevel as the baseline the base spec's default implies.
func VerbosityToLevel(delta int) zerolog.Level {
	level := int(zerolog.InfoLevel) - delta
	switch {
	case level <= int(zerolog.TraceLevel):
		return zerolog.TraceLevel
	case level >= int(zerolog.Disabled):
		return zerolog.Disabled
	default:
		return zerolog.Level(level)
	}
}

// Validate enforces the Configuration-error table (§7) plus the
// --chunk/--download pairing dnscat.c rejects at startup (§12).
func (c *Config) Validate() error {
	if c.Domain == "" {
		return fmt.Errorf("config: --domain is required")
	}
	if c.Resolver == "" {
		return fmt.Errorf("config: --resolver is required")
	}
	if c.Chunk > 0 && c.Download == "" {
		return fmt.Errorf("config: --chunk requires --download")
	}
	if len(c.RecordTypes) == 0 {
		return fmt.Errorf("config: at least one record type is required")
	}

	switch c.Driver {
	case DriverExec:
		if c.ExecCommand == "" {
			return fmt.Errorf("config: --exec requires a command")
		}
	case DriverListener:
		if c.ListenAddr == "" {
			return fmt.Errorf("config: --listen requires an address")
		}
	case DriverConsole, DriverCommand, DriverPing:
		// no additional requirements
	default:
		return fmt.Errorf("config: unknown driver kind %d", c.Driver)
	}

	return nil
}
