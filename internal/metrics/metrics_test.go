package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordCall(t *testing.T) {
	m := New()
	m.RecordCall(1000, 200, true, false, true)
	m.RecordCall(500, 500, false, true, false)

	snap := m.Snap()
	assert.EqualValues(t, 2, snap.TotalCalls)
	assert.EqualValues(t, 1, snap.ProjectionCalls)
	assert.EqualValues(t, 1, snap.SearchCalls)
	assert.EqualValues(t, 1, snap.AutoTruncations)
	assert.EqualValues(t, 1500, snap.OriginalBytes)
	assert.EqualValues(t, 700, snap.FilteredBytes)
}

func TestConnectionLifecycle(t *testing.T) {
	m := New()
	m.ConnectionUp()
	m.ConnectionUp()
	m.ConnectionFailed()
	m.ConnectionDown()

	snap := m.Snap()
	assert.EqualValues(t, 1, snap.ActiveConnections)
	assert.EqualValues(t, 1, snap.FailedConnections)
}

func TestConcurrentRecordCall(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordCall(10, 5, false, false, false)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 100, m.Snap().TotalCalls)
}
