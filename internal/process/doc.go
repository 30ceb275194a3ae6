// Package process runs external programs on behalf of trigger actions.
//
// Programs are fire-and-forget: Spawn returns as soon as the program has
// started, and its exit status, duration and trailing output are delivered
// later through the OnExit callback.
//
// Features:
//   - each program runs in its own process group
//   - optional per-program timeout (SIGKILL to the group)
//   - stdout/stderr captured to the debug log and kept as a bounded tail
//   - Shutdown sends SIGTERM, then SIGKILL after a grace period
//
// Example usage:
//
//	sp := process.NewSpawner(process.Config{Timeout: 10 * time.Minute})
//	sp.OnExit(func(r process.Result) { ... })
//	if err := sp.Spawn(process.Spec{Name: "dome-alarm", Program: "/usr/local/bin/alarm"}); err != nil {
//	    return err
//	}
//	defer sp.Shutdown(ctx)
package process
