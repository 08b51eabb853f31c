package driver

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duskcat/internal/bus"
	"duskcat/internal/reactor"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestConsolePublishesDataOutFromStdin(t *testing.T) {
	b := bus.New()
	r := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	stdinR, stdinW := io.Pipe()
	var stdout bytes.Buffer
	c := &Console{in: stdinR, out: &stdout}
	c.Register(r, b)

	var received []byte
	b.Subscribe(bus.EventDataOut, func(payload any) {
		received = append(received, payload.(bus.Data).Bytes...)
	})

	go stdinW.Write([]byte("hello"))

	waitFor(t, time.Second, func() bool { return string(received) == "hello" })
}

func TestConsoleWritesDataInToStdout(t *testing.T) {
	b := bus.New()
	r := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	stdinR, _ := io.Pipe()
	var stdout bytes.Buffer
	c := &Console{in: stdinR, out: &stdout}
	c.Register(r, b)

	b.Publish(bus.EventDataIn, bus.Data{Bytes: []byte("world")})
	assert.Equal(t, "world", stdout.String())
}

func TestConsoleEOFPublishesShutdown(t *testing.T) {
	b := bus.New()
	r := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	stdinR, stdinW := io.Pipe()
	var stdout bytes.Buffer
	c := &Console{in: stdinR, out: &stdout}
	c.Register(r, b)

	var shutdown bool
	b.Subscribe(bus.EventShutdown, func(payload any) { shutdown = true })

	stdinW.Close()

	waitFor(t, time.Second, func() bool { return shutdown })
}

func TestDNSRecordTypeRoundRobin(t *testing.T) {
	d := &DNS{recordTypes: []uint16{dns.TypeTXT, dns.TypeMX, dns.TypeCNAME}}

	assert.Equal(t, uint16(dns.TypeTXT), d.nextRecordType())
	assert.Equal(t, uint16(dns.TypeMX), d.nextRecordType())
	assert.Equal(t, uint16(dns.TypeCNAME), d.nextRecordType())
	assert.Equal(t, uint16(dns.TypeTXT), d.nextRecordType())
}

func TestDNSDefaultRecordTypeIsTXT(t *testing.T) {
	assert.Equal(t, []uint16{dns.TypeTXT}, DefaultRecordTypes)
}

func TestCommandOldestPendingPicksLowestID(t *testing.T) {
	c := NewCommand()
	defer c.Close()

	c.pending.Set("00000000000000000002", pendingRequest{line: "second"}, 0)
	c.pending.Set("00000000000000000001", pendingRequest{line: "first"}, 0)

	id, req, ok := c.oldestPending()
	require.True(t, ok)
	assert.Equal(t, "00000000000000000001", id)
	assert.Equal(t, "first", req.line)
}

func TestCommandOldestPendingEmpty(t *testing.T) {
	c := NewCommand()
	defer c.Close()

	_, _, ok := c.oldestPending()
	assert.False(t, ok)
}

func TestCommandSYNOptionsSetsCommandBit(t *testing.T) {
	c := NewCommand()
	defer c.Close()
	assert.NotEqual(t, uint16(0), c.SYNOptions())
}
