package pool

import "errors"

// Policy selects a pool slot for a new router given current per-slot load.
type Policy interface {
	Select(routerCounts []int) (int, error)
}

var errEmptyPool = errors.New("no workers in pool")

// LeastLoaded picks the slot with the fewest routers, breaking ties by the
// lowest index so allocation stays stable and reproducible. A random policy
// gives no convergence guarantee under skewed room lifetimes and is not
// provided.
type LeastLoaded struct{}

func (LeastLoaded) Select(routerCounts []int) (int, error) {
	if len(routerCounts) == 0 {
		return -1, errEmptyPool
	}
	best := 0
	for i, n := range routerCounts {
		if n < routerCounts[best] {
			best = i
		}
	}
	return best, nil
}
