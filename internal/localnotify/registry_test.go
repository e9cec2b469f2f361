package localnotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListRegistryOnlyFirstWaiterSends(t *testing.T) {
	var r listRegistry
	assert.True(t, r.add(func([]Record) {}))
	assert.False(t, r.add(func([]Record) {}))
	assert.False(t, r.add(nil))
	assert.Equal(t, 3, r.pending())

	assert.Equal(t, 3, r.resolve(nil))
	assert.Equal(t, 0, r.pending())
	assert.True(t, r.add(func([]Record) {}))
}

func TestListRegistryWaiterAddedDuringResolveWaitsForNextReply(t *testing.T) {
	var r listRegistry
	calls := 0
	r.add(func([]Record) {
		calls++
		r.add(func([]Record) { calls += 10 })
	})

	r.resolve(nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, r.pending())
}

func TestGetRegistryResolve(t *testing.T) {
	var r getRegistry
	var got []*Record
	r.add("a", func(rec *Record) { got = append(got, rec) })
	r.add("a", func(rec *Record) { got = append(got, rec) })

	assert.Equal(t, 0, r.resolve("unknown", &Record{Name: "unknown"}, true))

	rec := &Record{Name: "a"}
	assert.Equal(t, 2, r.resolve("a", rec, true))
	assert.Equal(t, []*Record{rec, rec}, got)
	assert.Equal(t, 0, r.pending("a"))

	got = nil
	r.add("a", func(rec *Record) { got = append(got, rec) })
	assert.Equal(t, 1, r.resolve("a", rec, false))
	assert.Equal(t, []*Record{nil}, got)
}
