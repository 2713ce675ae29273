// Package portcheck implements the batched reachability probe (spec
// §4.8's PortCheck dispatch row): check each target with a timed TCP
// connect and report which ones accepted a connection.
//
// The source's non-blocking connect + poll(POLLOUT) + SO_ERROR sequence
// becomes a single net.DialTimeout per target here — Go's dialer already
// performs a non-blocking connect under the runtime's netpoller and
// surfaces the equivalent of SO_ERROR as the dial's returned error.
package portcheck

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/websoft9/appos/engine/internal/jobs"
)

// DefaultTimeout is used when a PortCheck request omits timeout_ms (spec
// §4.8: "Default timeout 2000 ms").
const DefaultTimeout = 2000 * time.Millisecond

// maxConcurrentProbes bounds how many dials a single batch may run at
// once, regardless of batch size.
const maxConcurrentProbes = 32

// Target is one reachability probe request.
type Target struct {
	ID   string
	Host string
	Port int
}

// Result is one probe outcome; CheckBatch returns results in the same
// order as the input batch.
type Result struct {
	ID     string
	Online bool
}

// CheckBatch probes every target concurrently, at most maxConcurrentProbes
// dials at a time (a per-batch semaphore), and returns one Result per target
// once all have completed (spec §7 example 6). Each probe runs on pool when
// it accepts the task and on a goroutine of its own otherwise.
func CheckBatch(pool *jobs.Pool, targets []Target, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentProbes)

	for i, target := range targets {
		i, target := i, target
		wg.Add(1)
		probe := func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = Result{ID: target.ID, Online: dial(target, timeout)}
		}
		if pool == nil || !pool.Submit(probe) {
			go probe()
		}
	}
	wg.Wait()
	return results
}

func dial(target Target, timeout time.Duration) bool {
	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
