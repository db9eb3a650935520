// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusPublishesToAllSubscribers(t *testing.T) {
	b := New[string]()
	var got []string

	unsub1 := b.Subscribe(func(s string) { got = append(got, "a:"+s) })
	_ = b.Subscribe(func(s string) { got = append(got, "b:"+s) })

	b.Publish("hello")
	require.ElementsMatch(t, []string{"a:hello", "b:hello"}, got)

	unsub1()
	got = nil
	b.Publish("again")
	require.Equal(t, []string{"b:again"}, got)
}

func TestBusStrictOccurrenceOrder(t *testing.T) {
	b := New[int]()
	var order []int
	b.Subscribe(func(n int) { order = append(order, n) })

	for i := 0; i < 5; i++ {
		b.Publish(i)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBusSubscriberPanicDoesNotPropagate(t *testing.T) {
	b := New[int]()
	var called bool
	b.Subscribe(func(int) { panic("boom") })
	b.Subscribe(func(int) { called = true })

	require.NotPanics(t, func() { b.Publish(1) })
	require.True(t, called)
}

func TestBusSubscriberCount(t *testing.T) {
	b := New[int]()
	require.Equal(t, 0, b.SubscriberCount())
	unsub := b.Subscribe(func(int) {})
	require.Equal(t, 1, b.SubscriberCount())
	unsub()
	require.Equal(t, 0, b.SubscriberCount())
}
