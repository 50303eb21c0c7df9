package store_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsanders-rh/modelctl/internal/store"
)

func TestLocks(t *testing.T) {
	t.Run("serializes holders of the same key", func(t *testing.T) {
		locks := store.NewLocks()
		counter := 0

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := locks.Lock("dep_a")
				defer unlock()
				v := counter
				counter = v + 1
			}()
		}
		wg.Wait()

		assert.Equal(t, 50, counter)
		assert.Equal(t, 0, locks.Held())
	})

	t.Run("distinct keys do not block each other", func(t *testing.T) {
		locks := store.NewLocks()
		unlockA := locks.Lock("dep_a")
		unlockB := locks.Lock("dep_b")
		assert.Equal(t, 2, locks.Held())
		unlockA()
		unlockB()
		assert.Equal(t, 0, locks.Held())
	})
}
