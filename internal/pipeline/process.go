package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/privacy"
)

const (
	// processWaitDelay bounds how long Stop waits for a signalled process before killing it.
	processWaitDelay = 5 * time.Second

	// maxOutputLine is the longest output line parsed; anything after a longer
	// line is drained unread so the child never blocks on a full pipe.
	maxOutputLine = 1024 * 1024
)

// Process runs an external analysis command and feeds its watchdog from the
// frame marker lines the command prints on stdout.
type Process struct {
	settings conf.PipelineSettings
	watchdog *Watchdog
	log      logger.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewProcess creates a process adapter for one configured pipeline. It does not start it.
func NewProcess(settings conf.PipelineSettings, log logger.Logger) *Process {
	if settings.FrameMarker == "" {
		settings.FrameMarker = conf.DefaultFrameMarker
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Process{
		settings: settings,
		watchdog: NewWatchdog(settings.Timeout),
		log:      log.Module(componentName).With(logger.String("pipeline", settings.Name)),
	}
}

// Watchdog returns the process's probe.
func (p *Process) Watchdog() *Watchdog {
	return p.watchdog
}

// Start implements Starter. The process outlives ctx only until Stop is called
// or ctx is cancelled.
func (p *Process) Start(ctx context.Context) (Control, Probe, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return nil, nil, errors.Newf("pipeline %s already started", p.settings.Name).
			Component(componentName).
			Category(errors.CategoryState).
			Build()
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, p.settings.Command, p.settings.Args...) //nolint:gosec // G204: command comes from operator configuration
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = processWaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, nil, p.startError(err, "stdout_pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, nil, p.startError(err, "stderr_pipe")
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, p.startError(err, "start_process")
	}

	p.cmd = cmd
	p.cancel = cancel
	p.done = make(chan struct{})

	p.log.Info("pipeline process started",
		logger.String("command", p.settings.Command),
		logger.Any("args", privacy.SanitizeArgs(p.settings.Args)),
		logger.Int("pid", cmd.Process.Pid))

	var readers sync.WaitGroup
	readers.Go(func() { p.readFrames(stdout) })
	readers.Go(func() { p.readStderr(stderr) })

	go func() {
		// Pipes must be drained before Wait closes them.
		readers.Wait()
		waitErr := cmd.Wait()
		p.watchdog.MarkExited()

		p.mu.Lock()
		p.err = waitErr
		p.mu.Unlock()

		if waitErr != nil && procCtx.Err() == nil {
			p.log.Error("pipeline process exited", logger.Error(waitErr))
		} else {
			p.log.Info("pipeline process stopped")
		}
		close(p.done)
	}()

	return p, p.watchdog, nil
}

// Stop implements Control. It signals the process and waits for it to exit or ctx to end.
func (p *Process) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pipeline %s to exit: %w", p.settings.Name, ctx.Err())
	}
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Err returns the process exit error once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Process) readFrames(r io.Reader) {
	scanner := newOutputScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == p.settings.FrameMarker {
			p.watchdog.Tick()
			continue
		}
		if line != "" {
			p.log.Debug("pipeline output", logger.String("line", line))
		}
	}
	p.drain(r, scanner.Err(), "stdout")
}

func (p *Process) readStderr(r io.Reader) {
	scanner := newOutputScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			p.log.Warn("pipeline stderr", logger.String("line", line))
		}
	}
	p.drain(r, scanner.Err(), "stderr")
}

// drain discards the rest of a stream after a scan error.
func (p *Process) drain(r io.Reader, scanErr error, stream string) {
	if scanErr == nil {
		return
	}
	p.log.Warn("pipeline output unreadable, discarding the rest",
		logger.String("stream", stream),
		logger.Error(scanErr))
	_, _ = io.Copy(io.Discard, r)
}

func newOutputScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxOutputLine)
	return scanner
}

func (p *Process) startError(err error, operation string) error {
	return errors.New(fmt.Errorf("failed to start pipeline %s: %w", p.settings.Name, err)).
		Component(componentName).
		Category(errors.CategorySystem).
		Context("operation", operation).
		Context("command", p.settings.Command).
		Build()
}
