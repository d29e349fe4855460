package service

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGenerator(t *testing.T) {
	gen := NewUUIDGenerator()
	a, b := gen.NewID(), gen.NewID()

	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSequentialGenerator(t *testing.T) {
	gen := NewSequentialGenerator("credit")
	assert.Equal(t, "credit-1", gen.NewID())
	assert.Equal(t, "credit-2", gen.NewID())
}

func TestSequentialGenerator_Concurrent(t *testing.T) {
	gen := NewSequentialGenerator("id")
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.NewID()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}
