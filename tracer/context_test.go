package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanContextBaggageIsCopyOnWrite(t *testing.T) {

	base := NewSpanContext(10, 20, true)
	first := base.WithBaggageItem("User-ID", "42")
	second := first.WithBaggageItem("tenant", "acme").WithBaggageItem("user-id", "43")

	assert.Equal(t, 0, base.BaggageLen())

	v, ok := first.BaggageItem("user-id")
	require.True(t, ok)
	assert.Equal(t, "42", v)

	var keys []string
	second.ForeachBaggageItem(func(k, v string) bool {
		keys = append(keys, k+"="+v)
		return true
	})
	assert.Equal(t, []string{"user-id=43", "tenant=acme"}, keys)
	assert.Equal(t, map[string]string{"user-id": "43", "tenant": "acme"}, second.Baggage())
}

func TestSpanContextForeachStops(t *testing.T) {

	c := NewSpanContext(1, 2, false).WithBaggageItem("a", "1").WithBaggageItem("b", "2")

	visited := 0
	c.ForeachBaggageItem(func(k, v string) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestSpanContextRemote(t *testing.T) {

	c := NewSpanContext(1, 2, true)
	assert.True(t, c.IsRemote())
	assert.Equal(t, uint64(0), c.ParentID())
	assert.Equal(t, "1:2:0:true", c.String())
	assert.Same(t, c, c.WithBaggageItem("", "ignored"))
}
