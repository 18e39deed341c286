// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simhost

import "time"

// timer is a scheduled one-shot event on the virtual clock
type timer struct {
	wake    time.Duration
	seq     uint64
	handler func()
	next    *timer
}

// scheduler keeps timers in a list sorted by wake time.
// Timers with equal wake times fire in the order they were added.
type scheduler struct {
	head *timer
	seq  uint64
}

// add inserts a timer in sorted order
func (s *scheduler) add(wake time.Duration, fn func()) {
	s.seq++
	t := &timer{wake: wake, seq: s.seq, handler: fn}

	if s.head == nil || t.wake < s.head.wake {
		t.next = s.head
		s.head = t
		return
	}

	current := s.head
	for current.next != nil && current.next.wake <= t.wake {
		current = current.next
	}

	t.next = current.next
	current.next = t
}

// pop removes and returns the first timer due at or before now
func (s *scheduler) pop(now time.Duration) *timer {
	if s.head == nil || s.head.wake > now {
		return nil
	}
	t := s.head
	s.head = t.next
	t.next = nil
	return t
}

// len returns the number of armed timers
func (s *scheduler) len() int {
	n := 0
	for t := s.head; t != nil; t = t.next {
		n++
	}
	return n
}

// nextWake returns the wake time of the earliest timer
func (s *scheduler) nextWake() (time.Duration, bool) {
	if s.head == nil {
		return 0, false
	}
	return s.head.wake, true
}
