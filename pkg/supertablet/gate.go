package supertablet

import "sync"

// mutationGate implements the MutationInterlock/MutationLull pair
// spec.md §4.4 describes: every mutation entry point acquires an
// Interlock (reader-like, many concurrent holders), while a split
// acquires a Lull (exclusive — blocks new Interlocks and waits for
// every already-acquired one to release) before touching the tablet
// vector. Grounded on the reader/writer gate shape described in
// original_source/src/cc/kdi/tablet/SuperTablet.cc; built directly over
// two sync.Cond rather than sync.RWMutex because a plain RWMutex would
// let a writer starve waiting for a steady stream of new readers —
// here new Interlocks are refused outright once a Lull is requested.
type mutationGate struct {
	mu             sync.Mutex
	allowMutations sync.Cond
	allQuiet       sync.Cond
	blocked        bool
	pending        int
}

func newMutationGate() *mutationGate {
	g := &mutationGate{}
	g.allowMutations.L = &g.mu
	g.allQuiet.L = &g.mu
	return g
}

// interlock blocks while a Lull is in effect, then records one more
// in-flight mutation. Returns a release func the caller must defer.
func (g *mutationGate) interlock() func() {
	g.mu.Lock()
	for g.blocked {
		g.allowMutations.Wait()
	}
	g.pending++
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		g.pending--
		if g.pending == 0 {
			g.allQuiet.Broadcast()
		}
		g.mu.Unlock()
	}
}

// lull blocks new interlocks and waits for every pending mutation to
// finish, returning a release func that lets mutations resume.
func (g *mutationGate) lull() func() {
	g.mu.Lock()
	g.blocked = true
	for g.pending > 0 {
		g.allQuiet.Wait()
	}
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		g.blocked = false
		g.mu.Unlock()
		g.allowMutations.Broadcast()
	}
}
