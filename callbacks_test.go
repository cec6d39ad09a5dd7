package collab

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCallbackList(t *testing.T) {
	callbacks := NewCallbackList[func(int)]()

	values := []int{}
	aId := callbacks.Add(func(value int) {
		values = append(values, value)
	})
	bId := callbacks.Add(func(value int) {
		values = append(values, 10*value)
	})

	for _, callback := range callbacks.Get() {
		callback(1)
	}
	// callbacks run in add order
	assert.Equal(t, values, []int{1, 10})

	callbacks.Remove(aId)
	for _, callback := range callbacks.Get() {
		callback(2)
	}
	assert.Equal(t, values, []int{1, 10, 20})

	callbacks.Remove(bId)
	assert.Equal(t, len(callbacks.Get()), 0)
}
