package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingChannel struct {
	mu     sync.Mutex
	events []string
}

func (c *recordingChannel) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	first, second := &recordingChannel{}, &recordingChannel{}

	r.Register("u1", first)
	r.Register("u1", second)

	got, ok := r.Lookup("u1")
	if !ok {
		t.Fatal("expected u1 to be online")
	}
	if got != second {
		t.Fatal("expected the most recent registration to win")
	}
	if n := r.OnlineCount(); n != 1 {
		t.Fatalf("OnlineCount = %d, want 1", n)
	}
}

func TestRegistry_StaleDeregisterKeepsNewerConnection(t *testing.T) {
	r := NewRegistry()
	oldGen := r.Register("u1", &recordingChannel{})
	newer := &recordingChannel{}
	newGen := r.Register("u1", newer)

	if r.Deregister("u1", oldGen) {
		t.Fatal("stale deregister must not remove the newer connection")
	}
	if got, ok := r.Lookup("u1"); !ok || got != newer {
		t.Fatal("newer connection was evicted")
	}

	if !r.Deregister("u1", newGen) {
		t.Fatal("current generation should deregister")
	}
	if r.IsOnline("u1") {
		t.Fatal("u1 should be offline")
	}
}

func TestRegistry_DeregisterUnknownUser(t *testing.T) {
	r := NewRegistry()
	if r.Deregister("nobody", 1) {
		t.Fatal("deregistering an unknown user reported a removal")
	}
	if _, ok := r.LastSeen("nobody"); !ok {
		t.Fatal("deregister should still touch last seen")
	}
}

func TestRegistry_LastSeenSurvivesDisconnect(t *testing.T) {
	r := NewRegistry()
	connectedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r.now = fixedClock(connectedAt)

	if _, ok := r.LastSeen("u1"); ok {
		t.Fatal("unseen user should have no last seen")
	}

	gen := r.Register("u1", &recordingChannel{})
	if seen, _ := r.LastSeen("u1"); !seen.Equal(connectedAt) {
		t.Fatalf("LastSeen after register = %v, want %v", seen, connectedAt)
	}

	leftAt := connectedAt.Add(5 * time.Minute)
	r.now = fixedClock(leftAt)
	r.Deregister("u1", gen)

	seen, ok := r.LastSeen("u1")
	if !ok || !seen.Equal(leftAt) {
		t.Fatalf("LastSeen after disconnect = %v (%v), want %v", seen, ok, leftAt)
	}
	if r.IsOnline("u1") {
		t.Fatal("u1 should be offline")
	}
}

func TestRegistry_ConcurrentRegisterDeregister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%5)
			gen := r.Register(user, &recordingChannel{})
			r.IsOnline(user)
			r.Deregister(user, gen)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		if _, ok := r.LastSeen(fmt.Sprintf("user-%d", i)); !ok {
			t.Fatalf("user-%d has no last seen", i)
		}
	}
}

func BenchmarkRegistry_RegisterDeregister(b *testing.B) {
	r := NewRegistry()
	ch := &recordingChannel{}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			gen := r.Register("user-1", ch)
			r.Deregister("user-1", gen)
		}
	})
}

func BenchmarkRegistry_Lookup(b *testing.B) {
	r := NewRegistry()
	for i := 0; i < 1000; i++ {
		r.Register(fmt.Sprintf("user-%d", i), &recordingChannel{})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			r.Lookup(fmt.Sprintf("user-%d", i%1000))
			i++
		}
	})
}
