package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// outputBufferSize is the read size for capturing subprocess stdout/stderr.
const outputBufferSize = 4096

// defaultOutputLimit is how much trailing output a Result keeps.
const defaultOutputLimit = 4096

// Spec describes one program run.
type Spec struct {
	// Name identifies the run in logs and exit reports, usually the trigger name.
	Name string

	// Program is the path to the executable.
	Program string

	// Args are passed after the program name.
	Args []string

	// Env is appended to the gateway's own environment (key=value format).
	Env []string

	// WorkDir is the working directory. Empty inherits the gateway's.
	WorkDir string
}

// Result reports how a spawned program ended.
type Result struct {
	Spec     Spec
	PID      int
	ExitCode int
	Err      error
	Duration time.Duration

	// Output holds the tail of the combined stdout and stderr.
	Output string
}

// Config holds spawner limits.
type Config struct {
	// Timeout kills a program's process group after this long. 0 means no limit.
	Timeout time.Duration

	// GracefulTimeout is how long Shutdown waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OutputLimit caps the output kept in Result. 0 uses a 4 KiB default.
	OutputLimit int
}

// Logger defines the logging interface for the spawner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ErrShutdown is returned by Spawn after Shutdown has been called.
var ErrShutdown = errors.New("process: spawner shut down")

// Spawner starts programs without waiting for them.
//
// Each program runs in its own process group. When it exits, the OnExit
// callback receives a Result on the spawner's goroutine; callers that own
// state elsewhere must hand the result over themselves.
//
// Thread Safety: all methods are safe for concurrent use.
type Spawner struct {
	config Config
	logger Logger
	onExit func(Result)

	mu       sync.Mutex
	running  map[int]*exec.Cmd
	shutdown bool
	wg       sync.WaitGroup
}

// NewSpawner creates a spawner.
func NewSpawner(cfg Config) *Spawner {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = defaultOutputLimit
	}
	return &Spawner{
		config:  cfg,
		logger:  noopLogger{},
		running: make(map[int]*exec.Cmd),
	}
}

// SetLogger sets the logger for the spawner.
func (s *Spawner) SetLogger(logger Logger) {
	s.logger = logger
}

// OnExit registers the exit callback. Set it before the first Spawn.
func (s *Spawner) OnExit(fn func(Result)) {
	s.onExit = fn
}

// Spawn starts spec and returns once the program is running.
// Only start failures are returned; the exit status goes to OnExit.
func (s *Spawner) Spawn(spec Spec) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrShutdown
	}
	s.wg.Add(1)
	s.mu.Unlock()

	cmd := exec.Command(spec.Program, spec.Args...) //nolint:gosec // program comes from the operator's rule file
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = spec.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.wg.Done()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.wg.Done()
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		s.wg.Done()
		return fmt.Errorf("starting %s: %w", spec.Program, err)
	}

	pid := cmd.Process.Pid
	s.mu.Lock()
	s.running[pid] = cmd
	s.mu.Unlock()

	s.logger.Debug("process started", "name", spec.Name, "program", spec.Program, "pid", pid)

	go s.wait(spec, cmd, started, stdout, stderr)
	return nil
}

// wait collects output, reaps the program and reports the result.
func (s *Spawner) wait(spec Spec, cmd *exec.Cmd, started time.Time, stdout, stderr io.Reader) {
	defer s.wg.Done()

	pid := cmd.Process.Pid
	if s.config.Timeout > 0 {
		timer := time.AfterFunc(s.config.Timeout, func() {
			s.logger.Warn("process timed out, killing", "name", spec.Name, "pid", pid, "timeout", s.config.Timeout)
			signalGroup(pid, syscall.SIGKILL)
		})
		defer timer.Stop()
	}

	out := &tailBuffer{limit: s.config.OutputLimit}
	var capture sync.WaitGroup
	capture.Add(2)
	go s.captureOutput(&capture, spec.Name, "stdout", stdout, out)
	go s.captureOutput(&capture, spec.Name, "stderr", stderr, out)
	capture.Wait()

	err := cmd.Wait()

	s.mu.Lock()
	delete(s.running, pid)
	s.mu.Unlock()

	result := Result{
		Spec:     spec,
		PID:      pid,
		ExitCode: cmd.ProcessState.ExitCode(),
		Err:      err,
		Duration: time.Since(started),
		Output:   out.String(),
	}

	if err != nil {
		s.logger.Warn("process failed", "name", spec.Name, "pid", pid, "exit_code", result.ExitCode, "error", err)
	} else {
		s.logger.Debug("process finished", "name", spec.Name, "pid", pid, "duration", result.Duration)
	}

	if s.onExit != nil {
		s.onExit(result)
	}
}

// captureOutput reads from r, logging each chunk and keeping the tail.
func (s *Spawner) captureOutput(wg *sync.WaitGroup, name, stream string, r io.Reader, out *tailBuffer) {
	defer wg.Done()
	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out.Write(buf[:n]) //nolint:errcheck // tailBuffer never fails
			s.logger.Debug("process output", "name", name, "stream", stream, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Running returns the number of programs that have not exited yet.
func (s *Spawner) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown stops accepting new programs, sends SIGTERM to every running
// process group and waits for them. Groups still alive when ctx ends or the
// graceful timeout passes get SIGKILL.
func (s *Spawner) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	pids := make([]int, 0, len(s.running))
	for pid := range s.running {
		pids = append(pids, pid)
	}
	s.mu.Unlock()

	for _, pid := range pids {
		signalGroup(pid, syscall.SIGTERM)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	case <-time.After(s.config.GracefulTimeout):
	}

	s.mu.Lock()
	for pid := range s.running {
		signalGroup(pid, syscall.SIGKILL)
	}
	s.mu.Unlock()

	<-done
	return ctx.Err()
}

// signalGroup signals the process group led by pid.
func signalGroup(pid int, sig syscall.Signal) {
	_ = syscall.Kill(-pid, sig) //nolint:errcheck // ESRCH when the group has already gone
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
