package config

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Domain:      "tunnel.example.com",
		Resolver:    "8.8.8.8:53",
		RecordTypes: []uint16{dns.TypeTXT},
		Driver:      DriverConsole,
	}
}

func TestValidateRequiresDomain(t *testing.T) {
	c := validConfig()
	c.Domain = ""
	assert.Error(t, c.Validate())
}

func TestValidateRequiresResolver(t *testing.T) {
	c := validConfig()
	c.Resolver = ""
	assert.Error(t, c.Validate())
}

func TestValidateChunkRequiresDownload(t *testing.T) {
	c := validConfig()
	c.Chunk = 100
	assert.Error(t, c.Validate())

	c.Download = "/tmp/out"
	assert.NoError(t, c.Validate())
}

func TestValidateExecRequiresCommand(t *testing.T) {
	c := validConfig()
	c.Driver = DriverExec
	assert.Error(t, c.Validate())

	c.ExecCommand = "/bin/sh"
	assert.NoError(t, c.Validate())
}

func TestValidateListenerRequiresAddr(t *testing.T) {
	c := validConfig()
	c.Driver = DriverListener
	assert.Error(t, c.Validate())

	c.ListenAddr = "0.0.0.0:4444"
	assert.NoError(t, c.Validate())
}

func TestValidateAcceptsDefaultConsole(t *testing.T) {
	c := validConfig()
	assert.NoError(t, c.Validate())
}

func TestParseRecordTypesDefaultIsTXT(t *testing.T) {
	types, err := ParseRecordTypes("")
	require.NoError(t, err)
	assert.Equal(t, []uint16{dns.TypeTXT}, types)
}

func TestParseRecordTypesMultiple(t *testing.T) {
	types, err := ParseRecordTypes("txt, cname ,MX")
	require.NoError(t, err)
	assert.Equal(t, []uint16{dns.TypeTXT, dns.TypeCNAME, dns.TypeMX}, types)
}

func TestParseRecordTypesUnknown(t *testing.T) {
	_, err := ParseRecordTypes("bogus")
	assert.Error(t, err)
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, VerbosityToLevel(0))
	assert.Equal(t, zerolog.DebugLevel, VerbosityToLevel(1))
	assert.Equal(t, zerolog.TraceLevel, VerbosityToLevel(2))
	assert.Equal(t, zerolog.TraceLevel, VerbosityToLevel(10))
	assert.Equal(t, zerolog.WarnLevel, VerbosityToLevel(-1))
	assert.Equal(t, zerolog.ErrorLevel, VerbosityToLevel(-2))
}

func TestDriverKindString(t *testing.T) {
	assert.Equal(t, "console", DriverConsole.String())
	assert.Equal(t, "exec", DriverExec.String())
	assert.Equal(t, "listener", DriverListener.String())
	assert.Equal(t, "command", DriverCommand.String())
	assert.Equal(t, "ping", DriverPing.String())
}
