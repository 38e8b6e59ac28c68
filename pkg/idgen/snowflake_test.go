package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflakeWorkerRange(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(maxWorkerID + 1)
	assert.Error(t, err)

	g, err := NewSnowflake(maxWorkerID)
	require.NoError(t, err)
	assert.Positive(t, g.Generate())
}

func TestGenerateUniqueAndIncreasing(t *testing.T) {
	g, err := NewSnowflake(3)
	require.NoError(t, err)

	prev := int64(0)
	for i := 0; i < 10000; i++ {
		id := g.Generate()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestNewNoConcurrent(t *testing.T) {
	const n = 2000
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			no := PurchaseNo()
			mu.Lock()
			seen[no] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(PurchaseNo(), "PO"))
	assert.True(t, strings.HasPrefix(SaleNo(), "SA"))
	no := FinancialNo()
	assert.True(t, strings.HasPrefix(no, "FIN"))
	assert.Len(t, no, len("FIN")+14+8)
}
