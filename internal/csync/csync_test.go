package csync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapGetSet(t *testing.T) {
	m := NewMap[string, int]()
	_, ok := m.Get("a")
	assert.False(t, ok)

	m.Set("a", 1)
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.Set("a", 2)
	v, _ = m.Get("a")
	assert.Equal(t, 2, v)
}

func TestMapDelete(t *testing.T) {
	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Delete("a")
	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestMapSeqStopsOnFalse(t *testing.T) {
	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	seen := 0
	m.Seq(func(k string, v int) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}

func TestMapSeqVisitsAll(t *testing.T) {
	m := NewMap[string, int]()
	want := map[string]int{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		m.Set(k, v)
	}

	got := map[string]int{}
	m.Seq(func(k string, v int) bool {
		got[k] = v
		return true
	})
	assert.Equal(t, want, got)
}

func TestMapSeq2(t *testing.T) {
	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	got := map[string]int{}
	for k, v := range m.Seq2() {
		got[k] = v
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)
}

func TestMapValues(t *testing.T) {
	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	var got []int
	for v := range m.Values() {
		got = append(got, v)
	}
	assert.ElementsMatch(t, []int{1, 2}, got)
}

func TestMapClear(t *testing.T) {
	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Clear()

	_, ok := m.Get("a")
	assert.False(t, ok)
	count := 0
	m.Seq(func(string, int) bool { count++; return true })
	assert.Zero(t, count)
}

func TestMapConcurrentAccess(t *testing.T) {
	m := NewMap[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(i, i*i)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		v, ok := m.Get(i)
		assert.True(t, ok)
		assert.Equal(t, i*i, v)
	}
}
