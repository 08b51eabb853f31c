package driver

import (
	"bufio"
	"io"
	"os/exec"

	"github.com/rs/zerolog/log"

	"duskcat/internal/bus"
	"duskcat/internal/reactor"
)

// Exec spawns a child process and wires its stdin/stdout to session bytes,
// forwarding stderr to the log (§4.5). On child exit it posts shutdown.
type Exec struct {
	command string
	args    []string

	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewExec builds an Exec driver that will run command with args when
// registered.
func NewExec(command string, args ...string) *Exec {
	return &Exec{command: command, args: args}
}

func (e *Exec) Register(r *reactor.Reactor, b *bus.Bus) {
	cmd := exec.Command(e.command, e.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Error().Err(err).Str("command", e.command).Msg("exec: failed to open stdin pipe")
		r.Post(func() { b.Publish(bus.EventShutdown, nil) })
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Error().Err(err).Str("command", e.command).Msg("exec: failed to open stdout pipe")
		r.Post(func() { b.Publish(bus.EventShutdown, nil) })
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		log.Error().Err(err).Str("command", e.command).Msg("exec: failed to open stderr pipe")
		r.Post(func() { b.Publish(bus.EventShutdown, nil) })
		return
	}

	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Str("command", e.command).Msg("exec: failed to start child process")
		r.Post(func() { b.Publish(bus.EventShutdown, nil) })
		return
	}
	e.cmd = cmd
	e.stdin = stdin

	log.Info().Str("command", e.command).Int("pid", cmd.Process.Pid).Msg("exec: child started")

	b.Subscribe(bus.EventDataIn, func(payload any) {
		data := payload.(bus.Data)
		if len(data.Bytes) > 0 {
			if _, err := stdin.Write(data.Bytes); err != nil {
				log.Warn().Err(err).Msg("exec: write to child stdin failed")
			}
		}
		if data.EOF {
			stdin.Close()
		}
	})

	go e.copyStdout(r, b, stdout)
	go e.forwardStderr(stderr)
	go e.waitForExit(r, b)
}

func (e *Exec) copyStdout(r *reactor.Reactor, b *bus.Bus, stdout io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			r.Post(func() { b.Publish(bus.EventDataOut, bus.Data{Bytes: chunk}) })
		}
		if err != nil {
			return
		}
	}
}

func (e *Exec) forwardStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		log.Info().Str("command", e.command).Msg(scanner.Text())
	}
}

func (e *Exec) waitForExit(r *reactor.Reactor, b *bus.Bus) {
	err := e.cmd.Wait()
	log.Info().Str("command", e.command).Err(err).Msg("exec: child exited")
	r.Post(func() { b.Publish(bus.EventShutdown, nil) })
}

func (e *Exec) Close() error {
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}
	return e.cmd.Process.Kill()
}
