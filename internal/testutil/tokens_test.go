package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedTokenGenerator(t *testing.T) {
	gen := NewFixedTokenGenerator("cycle-x")
	for i := 0; i < 3; i++ {
		assert.Equal(t, "cycle-x", gen.Generate())
	}
	assert.Equal(t, "test-cycle", NewFixedTokenGenerator("").Generate())
}

func TestSequentialTokenGenerator(t *testing.T) {
	gen := NewSequentialTokenGenerator("run")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
}

func TestSequentialTokenGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequentialTokenGenerator("c")
	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen.Store(gen.Generate(), true)
		}()
	}
	wg.Wait()

	count := 0
	seen.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.Equal(t, 50, count)
}
