package framework

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a named per-user rate limit.
//
// Delay is the minimum time between two uses by the same user. Limit, when
// positive, caps uses per Window; it is enforced as a token bucket that holds
// Limit tokens and refills one token every Window/Limit.
type Bucket struct {
	Delay  time.Duration
	Window time.Duration
	Limit  int
}

type bucketUser struct {
	last    time.Time
	limiter *rate.Limiter
}

type bucketState struct {
	Bucket
	mu    sync.Mutex
	users map[string]*bucketUser
}

func newBucketState(b Bucket) *bucketState {
	return &bucketState{
		Bucket: b,
		users:  make(map[string]*bucketUser),
	}
}

// take records a use by key at now. It returns zero when the use is allowed
// and the time left until it would be otherwise; a rejected use costs nothing.
func (s *bucketState) take(key string, now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[key]
	if !ok {
		u = &bucketUser{}
		if s.Limit > 0 && s.Window > 0 {
			u.limiter = rate.NewLimiter(rate.Every(s.Window/time.Duration(s.Limit)), s.Limit)
		}
		s.users[key] = u
	}

	var wait time.Duration
	if !u.last.IsZero() && s.Delay > 0 {
		if elapsed := now.Sub(u.last); elapsed < s.Delay {
			wait = s.Delay - elapsed
		}
	}

	if u.limiter != nil {
		r := u.limiter.ReserveN(now, 1)
		if d := r.DelayFrom(now); d > 0 || wait > 0 {
			r.CancelAt(now)
			if d > wait {
				wait = d
			}
		}
	}

	if wait > 0 {
		return wait
	}
	u.last = now
	return 0
}

// prune forgets users whose state has fully recovered by now
func (s *bucketState) prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	idle := s.Delay
	if s.Window > idle {
		idle = s.Window
	}
	removed := 0
	for key, u := range s.users {
		if now.Sub(u.last) >= idle {
			delete(s.users, key)
			removed++
		}
	}
	return removed
}

func (s *bucketState) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
