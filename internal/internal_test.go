package internal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	// Test basic ID generation and format
	id := GenerateID()
	assert.NotEmpty(t, id)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
}

func TestGenerateIDConcurrency(t *testing.T) {
	// Test concurrent ID generation for uniqueness
	const numGoroutines = 100
	const idsPerGoroutine = 10

	idChan := make(chan string, numGoroutines*idsPerGoroutine)
	var wg sync.WaitGroup

	// Generate IDs concurrently
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- GenerateID()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	// Collect all IDs and verify uniqueness
	idSet := make(map[string]bool)
	for id := range idChan {
		assert.NotEmpty(t, id)
		assert.False(t, idSet[id], "Duplicate ID generated: %s", id)
		idSet[id] = true
	}

	assert.Len(t, idSet, numGoroutines*idsPerGoroutine)
}

func TestGenerateIDWithPrefix(t *testing.T) {
	id := GenerateIDWithPrefix("task")
	assert.NotEmpty(t, id)
	assert.Regexp(t, `^task-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
}

func BenchmarkGenerateID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateID()
	}
}
