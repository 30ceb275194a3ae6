// Package reactor runs the gateway's single event loop.
//
// All gateway state (connections, sessions, triggers, messages) is owned by
// one goroutine running Reactor.Run. Other goroutines never touch that
// state directly: MQTT callbacks and HTTP handlers hand closures to the
// loop with Post (fire-and-forget) or Do (wait for completion).
//
// Timers are clock callbacks that post into the loop, so timer work is
// serialised with everything else. Cancelling a timer is idempotent and a
// cancelled timer never runs its function, even if its tick was already
// queued.
//
// Usage:
//
//	r := reactor.New(reactor.SystemClock())
//	go r.Run(ctx)
//
//	err := r.Do(ctx, func() {
//	    count = registry.Count()
//	})
//
//	t := r.Every(time.Minute, pollDevices)
//	defer t.Cancel()
package reactor
