package ids_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/korebog/ids"
	"github.com/stretchr/testify/require"
)

func TestNewIsUniqueAndOrdered(t *testing.T) {
	const n = 5000
	seen := make(map[string]struct{}, n)
	prev := ""
	for i := 0; i < n; i++ {
		id := ids.New()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestNewConcurrent(t *testing.T) {
	const workers, per = 8, 500
	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*per)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id := ids.New()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers*per)
}

func TestWithPrefix(t *testing.T) {
	id := ids.WithPrefix("trip")
	require.True(t, strings.HasPrefix(id, "trip_"))
	require.Len(t, id, len("trip_")+26)
}
