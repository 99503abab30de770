// Package memory keeps the cache process inside its container memory limit.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before the RAM cache starts to fill:
//
//	func main() {
//	    memory.ConfigureFromEnv()
//	    // ...
//	}
//
// GOMEMLIMIT, when set, wins. Otherwise MEMORY_LIMIT (bytes, usually from the
// Kubernetes Downward API) is multiplied by MEMORY_RATIO (default 0.85) and
// applied with debug.SetMemoryLimit. The remainder is headroom for libvips,
// which allocates outside the Go heap.
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
//
// # Backpressure
//
// A [Monitor] samples the heap on a ticker. When usage crosses the critical
// water mark it pauses, and the pipeline blocks in [Monitor.WaitIfPaused]
// before decoding another image into RAM. Usage has to fall below the high
// water mark before the pause lifts, so the monitor does not flap around a
// single threshold.
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	if err := monitor.WaitIfPaused(ctx); err != nil {
//	    return err
//	}
//
// A nil *Monitor never pauses.
package memory
