package collab

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// makes a copy of the list on get so that callbacks can be invoked
// without holding the lock
type CallbackList[T any] struct {
	mutex          sync.Mutex
	nextCallbackId int
	callbacks      map[int]T
	order          []int
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		callbacks: map[int]T{},
	}
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, 0, len(self.order))
	for _, callbackId := range self.order {
		callbacks = append(callbacks, self.callbacks[callbackId])
	}
	return callbacks
}

func (self *CallbackList[T]) Add(callback T) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := self.nextCallbackId
	self.nextCallbackId += 1
	self.callbacks[callbackId] = callback
	self.order = append(self.order, callbackId)
	return callbackId
}

func (self *CallbackList[T]) Remove(callbackId int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if _, ok := self.callbacks[callbackId]; !ok {
		// not present
		return
	}
	delete(self.callbacks, callbackId)
	i := slices.Index(self.order, callbackId)
	self.order = slices.Delete(self.order, i, i+1)
}

func (self *CallbackList[T]) Clear() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	maps.Clear(self.callbacks)
	self.order = self.order[:0]
}
