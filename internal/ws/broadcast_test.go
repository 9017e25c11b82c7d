package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dirsync/server/internal/snapshot"
)

func testDelta(paths ...string) snapshot.Delta {
	mod := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var d snapshot.Delta
	for _, p := range paths {
		d.Added = append(d.Added, snapshot.FileRecord{Path: p, ModTime: mod})
	}
	return d
}

// receiveDelta pops one queued frame from the session and decodes it.
func receiveDelta(t *testing.T, s *Session) (uint64, DeltaPayload) {
	t.Helper()
	select {
	case frame := <-s.send:
		var msg Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("undecodable frame: %v", err)
		}
		if msg.Type != MsgDelta {
			t.Fatalf("frame type = %q, want %q", msg.Type, MsgDelta)
		}
		var p DeltaPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			t.Fatalf("undecodable delta payload: %v", err)
		}
		return msg.Seq, p
	default:
		t.Fatal("no frame queued")
		return 0, DeltaPayload{}
	}
}

func assertNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case frame := <-s.send:
		t.Fatalf("unexpected frame queued: %s", frame)
	default:
	}
}

func TestPublishFansOutToAllSessions(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	sessions := []*Session{newIdleSession("a"), newIdleSession("b"), newIdleSession("c")}
	for _, s := range sessions {
		r.Register(s)
	}

	b.Publish(testDelta("/d/x", "/d/y"))

	for _, s := range sessions {
		_, p := receiveDelta(t, s)
		if len(p.Added) != 2 {
			t.Errorf("session %s received %d added records, want 2", s.ID(), len(p.Added))
		}
	}

	published, degenerate, dropped := b.Counters()
	if published != 1 || degenerate != 0 || dropped != 0 {
		t.Errorf("Counters() = %d/%d/%d, want 1/0/0", published, degenerate, dropped)
	}
}

func TestPublishEmptyDeltaContactsNobody(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	s := newIdleSession("a")
	r.Register(s)

	b.Publish(snapshot.Delta{})

	assertNoFrame(t, s)

	published, degenerate, _ := b.Counters()
	if published != 0 {
		t.Errorf("published = %d, want 0", published)
	}
	if degenerate != 1 {
		t.Errorf("degenerate = %d, want 1", degenerate)
	}
}

func TestPublishDropsSaturatedSession(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	slow := newSession("slow", nil, 1, time.Minute, time.Second)
	slow.markActive()
	slow.send <- []byte("stuck") // queue full, observer not draining
	fast := newIdleSession("fast")

	r.Register(slow)
	r.Register(fast)

	b.Publish(testDelta("/d/x"))

	if _, p := receiveDelta(t, fast); len(p.Added) != 1 {
		t.Error("healthy session did not receive the delta")
	}
	if got := r.Len(); got != 1 {
		t.Errorf("registry has %d sessions after drop, want 1", got)
	}
	if slow.State() != Closing {
		t.Errorf("saturated session state = %v, want closing", slow.State())
	}

	_, _, dropped := b.Counters()
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	// The dropped session stays excluded from subsequent publishes.
	b.Publish(testDelta("/d/y"))
	if _, p := receiveDelta(t, fast); len(p.Added) != 1 {
		t.Error("healthy session missed the follow-up delta")
	}
}

func TestPublishMidCloseSessionNotCountedAsDrop(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	leaving := newIdleSession("leaving")
	leaving.beginClose() // write failed; the reader has not unregistered it yet
	healthy := newIdleSession("healthy")

	r.Register(leaving)
	r.Register(healthy)

	b.Publish(testDelta("/d/x"))

	if _, p := receiveDelta(t, healthy); len(p.Added) != 1 {
		t.Error("healthy session did not receive the delta")
	}
	if got := r.Len(); got != 1 {
		t.Errorf("registry has %d sessions after publish, want 1", got)
	}

	_, _, dropped := b.Counters()
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0: a session already closing is not a backpressure drop", dropped)
	}
}

func TestPublishSequenceAndOrder(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	s := newIdleSession("a")
	r.Register(s)

	b.Publish(testDelta("/d/one"))
	b.Publish(testDelta("/d/two"))
	b.Publish(testDelta("/d/three"))

	wantPaths := []string{"/d/one", "/d/two", "/d/three"}
	for i, want := range wantPaths {
		seq, p := receiveDelta(t, s)
		if seq != uint64(i+1) {
			t.Errorf("frame %d seq = %d, want %d", i, seq, i+1)
		}
		if len(p.Added) != 1 || p.Added[0].Path != want {
			t.Errorf("frame %d added = %v, want [%s]", i, p.Added, want)
		}
	}
}

func TestPublishEmptyDeltaDoesNotAdvanceSeq(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	s := newIdleSession("a")
	r.Register(s)

	b.Publish(snapshot.Delta{})
	b.Publish(testDelta("/d/x"))

	seq, _ := receiveDelta(t, s)
	if seq != 1 {
		t.Errorf("seq = %d after a degenerate publish, want 1", seq)
	}
}

func TestPublishWithNoSessions(t *testing.T) {
	b := NewBroadcaster(NewRegistry())

	b.Publish(testDelta("/d/x")) // must not panic or block

	published, _, _ := b.Counters()
	if published != 1 {
		t.Errorf("published = %d, want 1", published)
	}
}
