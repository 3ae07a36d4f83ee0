package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Close must not hold the bus lock while firing subscription Onces:
// Unsubscribe takes the lock inside its sync.Once, so the two shutdown paths
// would otherwise deadlock against each other.
func TestCloseConcurrentWithUnsubscribe(t *testing.T) {
	for i := 0; i < 100; i++ {
		b := New()
		subs := make([]*Subscription, 4)
		for j := range subs {
			sub, err := b.Subscribe("config.*")
			require.NoError(t, err)
			subs[j] = sub
		}

		// Park every Unsubscribe inside its Once, blocked on the bus lock,
		// with Close queued behind them, then release the lock so all of
		// them race for it.
		b.mu.Lock()
		var wg sync.WaitGroup
		for _, sub := range subs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sub.Unsubscribe()
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Close()
		}()
		time.Sleep(time.Millisecond)
		b.mu.Unlock()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("bus shutdown deadlocked against Unsubscribe")
		}
	}
}
