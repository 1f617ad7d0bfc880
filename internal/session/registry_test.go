package session

import (
	"errors"
	"testing"
	"time"
)

func TestRegistryCreatesConnectionOnce(t *testing.T) {
	created := 0
	r := NewRegistry(testLogger(), func() Connection {
		created++

		return newFakeConn()
	})

	first := r.Conn()
	second := r.Conn()

	if created != 1 {
		t.Fatalf("expected one factory call, got %d", created)
	}
	if first != second {
		t.Fatal("expected the same connection instance")
	}
}

func TestRegistryInvalidateLogsOutAndRecreates(t *testing.T) {
	var conns []*fakeConn
	r := NewRegistry(testLogger(), func() Connection {
		f := newFakeConn()
		conns = append(conns, f)

		return f
	})

	r.SetSelectedTopic("usr2il9s")
	_ = r.Conn()
	r.Invalidate()

	if r.SelectedTopic() != "" {
		t.Fatalf("expected cleared selection, got %q", r.SelectedTopic())
	}
	if !conns[0].loggedOut {
		t.Fatal("expected logout on the discarded connection")
	}

	_ = r.Conn()
	if len(conns) != 2 {
		t.Fatalf("expected a fresh connection after invalidation, got %d", len(conns))
	}
}

func TestRegistryLeavesPreviousTopicOnReselect(t *testing.T) {
	f := newFakeConn()
	r := NewRegistry(testLogger(), f.asFactory())
	_ = r.Conn()
	f.live["usrOld"] = true

	r.SetSelectedTopic("usrOld")
	r.SetSelectedTopic("grpNew")

	left := f.leftTopics()
	if len(left) != 1 || left[0] != "usrOld" {
		t.Fatalf("expected one leave of usrOld, got %v", left)
	}

	// Reselecting the same topic must not leave it.
	f.live["grpNew"] = true
	r.SetSelectedTopic("grpNew")
	if left := f.leftTopics(); len(left) != 1 {
		t.Fatalf("expected no extra leave, got %v", left)
	}
}

func TestRegistryLeaveFailureDoesNotBlockSelection(t *testing.T) {
	f := newFakeConn()
	f.leaveErr = errors.New("boom")
	r := NewRegistry(testLogger(), f.asFactory())
	_ = r.Conn()
	f.live["usrOld"] = true

	r.SetSelectedTopic("usrOld")

	done := make(chan struct{})
	go func() {
		r.SetSelectedTopic("grpNew")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reselect blocked on a failing leave")
	}
	if r.SelectedTopic() != "grpNew" {
		t.Fatalf("expected grpNew selected, got %q", r.SelectedTopic())
	}
}

func TestRegistrySkipsLeaveWhenNotLive(t *testing.T) {
	f := newFakeConn()
	r := NewRegistry(testLogger(), f.asFactory())
	_ = r.Conn()

	r.SetSelectedTopic("usrOld")
	r.SetSelectedTopic("grpNew")

	if left := f.leftTopics(); len(left) != 0 {
		t.Fatalf("expected no leave for a dead subscription, got %v", left)
	}
}
