package rulesync

import "sync"

// guards tracks which subscriptions have a diff update in flight.
type guards struct {
	mu   sync.Mutex
	held map[string]*subGuard
}

type subGuard struct {
	once sync.Once
}

func newGuards() *guards {
	return &guards{held: make(map[string]*subGuard)}
}

// TryAcquire claims subID. It returns false when subID is already held.
// The returned release func is safe to call more than once.
func (g *guards) TryAcquire(subID string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[subID]; busy {
		return nil, false
	}
	sg := &subGuard{}
	g.held[subID] = sg

	return func() {
		sg.once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.held[subID] == sg {
				delete(g.held, subID)
			}
		})
	}, true
}

// Busy reports whether subID is held.
func (g *guards) Busy(subID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.held[subID]
	return busy
}
