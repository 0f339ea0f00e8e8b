package app

import "testing"

func TestUserLocksScanOverlap(t *testing.T) {
	l := newUserLocks()
	if !l.BeginScan("t:1") {
		t.Fatal("first begin must succeed")
	}
	if l.BeginScan("t:1") {
		t.Fatal("overlapping scan must be refused")
	}
	if !l.BeginScan("t:2") {
		t.Fatal("other users are independent")
	}
	l.EndScan("t:1")
	if !l.BeginScan("t:1") {
		t.Fatal("begin must succeed after end")
	}
}

func TestUserLocksLockUnlock(t *testing.T) {
	l := newUserLocks()
	l.Lock("t:1")
	done := make(chan struct{})
	go func() {
		l.Lock("t:1")
		l.Unlock("t:1")
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("second lock acquired while held")
	default:
	}
	l.Unlock("t:1")
	<-done
}
