package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// The lock guards read-modify-write flows like "start session, consume play".
// These properties check that concurrent flows on one user serialize and that
// different users never block each other's correctness.

func TestLockSerializesPerUser(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1_000_000).Draw(t, "userID")
		numFlows := rapid.IntRange(2, 20).Draw(t, "numFlows")

		ul := NewUserLock()
		playsRemaining := int64(numFlows)
		started := 0

		var wg sync.WaitGroup
		wg.Add(numFlows)
		for i := 0; i < numFlows; i++ {
			go func() {
				defer wg.Done()
				ul.Lock(userID)
				defer ul.Unlock(userID)
				if playsRemaining > 0 {
					playsRemaining--
					started++
				}
			}()
		}
		wg.Wait()

		if started != numFlows || playsRemaining != 0 {
			t.Fatalf("lost update: started=%d remaining=%d (want %d and 0)",
				started, playsRemaining, numFlows)
		}
	})
}

func TestWithLockSerializes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1_000_000).Draw(t, "userID")
		numFlows := rapid.IntRange(5, 30).Draw(t, "numFlows")

		ul := NewUserLock()
		counter := 0

		var wg sync.WaitGroup
		wg.Add(numFlows)
		for i := 0; i < numFlows; i++ {
			go func() {
				defer wg.Done()
				_ = ul.WithLock(userID, func() error {
					counter++
					return nil
				})
			}()
		}
		wg.Wait()

		if counter != numFlows {
			t.Fatalf("counter = %d, want %d", counter, numFlows)
		}
	})
}

func TestUsersLockIndependently(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numUsers := rapid.IntRange(2, 10).Draw(t, "numUsers")
		flowsPerUser := rapid.IntRange(5, 20).Draw(t, "flowsPerUser")

		ul := NewUserLock()
		counters := make([]int, numUsers)

		var wg sync.WaitGroup
		wg.Add(numUsers * flowsPerUser)
		for u := 0; u < numUsers; u++ {
			for i := 0; i < flowsPerUser; i++ {
				go func(u int) {
					defer wg.Done()
					ul.Lock(int64(u + 1))
					defer ul.Unlock(int64(u + 1))
					counters[u]++
				}(u)
			}
		}
		wg.Wait()

		for u, count := range counters {
			if count != flowsPerUser {
				t.Fatalf("user %d: count = %d, want %d", u+1, count, flowsPerUser)
			}
		}
	})
}

func TestTryLockAdmitsOneAtATime(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1_000_000).Draw(t, "userID")
		numAttempts := rapid.IntRange(5, 20).Draw(t, "numAttempts")

		ul := NewUserLock()
		var holders atomic.Int32
		var admitted atomic.Int32
		start := make(chan struct{})

		var wg sync.WaitGroup
		wg.Add(numAttempts)
		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-start
				if !ul.TryLock(userID) {
					return
				}
				if holders.Add(1) > 1 {
					panic("two holders inside TryLock section")
				}
				admitted.Add(1)
				holders.Add(-1)
				ul.Unlock(userID)
			}()
		}
		close(start)
		wg.Wait()

		if admitted.Load() < 1 {
			t.Fatalf("no attempt acquired the lock")
		}
		if !ul.TryLock(userID) {
			t.Fatal("lock held after every section released it")
		}
		ul.Unlock(userID)
	})
}

func TestBalancedCyclesLeaveLockFree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1_000_000).Draw(t, "userID")
		numCycles := rapid.IntRange(1, 50).Draw(t, "numCycles")

		ul := NewUserLock()
		for i := 0; i < numCycles; i++ {
			ul.Lock(userID)
			ul.Unlock(userID)
		}

		if ul.IsLocked(userID) {
			t.Fatal("lock reported held after balanced lock/unlock cycles")
		}
		if !ul.TryLock(userID) {
			t.Fatal("lock unavailable after balanced cycles")
		}
		ul.Unlock(userID)
	})
}
