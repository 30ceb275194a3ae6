package process

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func spawnAndWait(t *testing.T, sp *Spawner, spec Spec) Result {
	t.Helper()
	results := make(chan Result, 1)
	sp.OnExit(func(r Result) { results <- r })

	if err := sp.Spawn(spec); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	select {
	case r := <-results:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for exit report")
		return Result{}
	}
}

func TestSpawner_ReportsOutputAndEnv(t *testing.T) {
	sp := NewSpawner(Config{})

	r := spawnAndWait(t, sp, Spec{
		Name:    "echo",
		Program: "/bin/sh",
		Args:    []string{"-c", `echo "$OBSGATE_DEVICE $1"`, "sh", "temperature"},
		Env:     []string{"OBSGATE_DEVICE=ccd0"},
	})

	if r.Err != nil || r.ExitCode != 0 {
		t.Fatalf("result = %+v", r)
	}
	if got := strings.TrimSpace(r.Output); got != "ccd0 temperature" {
		t.Errorf("Output = %q, want %q", got, "ccd0 temperature")
	}
	if r.Spec.Name != "echo" || r.PID == 0 {
		t.Errorf("result spec/pid = %+v", r)
	}
	if sp.Running() != 0 {
		t.Errorf("Running() = %d after exit", sp.Running())
	}
}

func TestSpawner_NonZeroExit(t *testing.T) {
	sp := NewSpawner(Config{})

	r := spawnAndWait(t, sp, Spec{Name: "fail", Program: "/bin/sh", Args: []string{"-c", "echo oops >&2; exit 3"}})

	if r.Err == nil || r.ExitCode != 3 {
		t.Errorf("ExitCode = %d, Err = %v, want 3 and an error", r.ExitCode, r.Err)
	}
	if !strings.Contains(r.Output, "oops") {
		t.Errorf("Output = %q, want stderr captured", r.Output)
	}
}

func TestSpawner_StartFailure(t *testing.T) {
	sp := NewSpawner(Config{})
	sp.OnExit(func(Result) { t.Error("OnExit called for a program that never started") })

	if err := sp.Spawn(Spec{Program: "/nonexistent/program"}); err == nil {
		t.Error("Spawn() expected error for missing program")
	}
}

func TestSpawner_TimeoutKills(t *testing.T) {
	sp := NewSpawner(Config{Timeout: 100 * time.Millisecond})

	r := spawnAndWait(t, sp, Spec{Name: "sleepy", Program: "/bin/sleep", Args: []string{"30"}})
	if r.Err == nil {
		t.Error("expected killed program to report an error")
	}
	if r.Duration > 10*time.Second {
		t.Errorf("Duration = %v, timeout did not apply", r.Duration)
	}
}

func TestSpawner_Shutdown(t *testing.T) {
	sp := NewSpawner(Config{GracefulTimeout: 2 * time.Second})
	if err := sp.Spawn(Spec{Program: "/bin/sleep", Args: []string{"30"}}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sp.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if sp.Running() != 0 {
		t.Errorf("Running() = %d after Shutdown", sp.Running())
	}
	if err := sp.Spawn(Spec{Program: "/bin/true"}); !errors.Is(err, ErrShutdown) {
		t.Errorf("Spawn() after Shutdown error = %v, want ErrShutdown", err)
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 5}
	b.Write([]byte("abc"))   //nolint:errcheck // test
	b.Write([]byte("defgh")) //nolint:errcheck // test
	if got := b.String(); got != "defgh" {
		t.Errorf("String() = %q, want %q", got, "defgh")
	}
}
