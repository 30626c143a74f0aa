package gosocks

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_Order(t *testing.T) {
	reg := newRegistry()
	for _, name := range []string{"c", "a", "b"} {
		reg.getOrCreate(name, func() *Channel { return newChannel(name, nil) })
	}

	got := ""
	for _, ch := range reg.snapshot() {
		got += ch.Name()
	}
	if got != "cab" {
		t.Errorf("order = %s, want cab", got)
	}
}

func TestRegistry_GetOrCreate(t *testing.T) {
	reg := newRegistry()
	first, created := reg.getOrCreate("a", func() *Channel { return newChannel("a", nil) })
	if !created {
		t.Error("created = false on first call")
	}

	second, created := reg.getOrCreate("a", func() *Channel {
		t.Error("create called for existing channel")
		return nil
	})
	if created || second != first {
		t.Error("second getOrCreate did not return the existing channel")
	}
}

func TestRegistry_RemoveStale(t *testing.T) {
	reg := newRegistry()
	old, _ := reg.getOrCreate("a", func() *Channel { return newChannel("a", nil) })
	if !reg.remove(old) {
		t.Fatal("remove = false")
	}
	cur, _ := reg.getOrCreate("a", func() *Channel { return newChannel("a", nil) })

	if reg.remove(old) {
		t.Error("stale remove dropped the new subscription")
	}
	if got, ok := reg.get("a"); !ok || got != cur {
		t.Error("current subscription missing")
	}
	if reg.len() != 1 {
		t.Errorf("len = %d, want 1", reg.len())
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := newRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("ch-%d", i%10)
			reg.getOrCreate(name, func() *Channel { return newChannel(name, nil) })
			reg.snapshot()
		}(i)
	}
	wg.Wait()

	if reg.len() != 10 {
		t.Errorf("len = %d, want 10", reg.len())
	}
	if len(reg.snapshot()) != 10 {
		t.Errorf("len(snapshot) = %d, want 10", len(reg.snapshot()))
	}
}

func TestChannel_Members(t *testing.T) {
	ch := newChannel("private-room", nil)
	ch.addMember(Member{ID: "b"})
	ch.addMember(Member{ID: "a"})

	members := ch.Members()
	if len(members) != 2 || members[0].ID != "a" || members[1].ID != "b" {
		t.Errorf("Members() = %v, want [a b]", members)
	}

	if !ch.removeMember("a") {
		t.Error("removeMember(a) = false")
	}
	if ch.removeMember("a") {
		t.Error("removeMember(a) twice = true")
	}
	if ch.HasMember("a") || !ch.HasMember("b") {
		t.Error("membership wrong after remove")
	}
}

func TestChannel_Detached(t *testing.T) {
	ch := newChannel("private-room", nil)

	if err := ch.Send(context.Background(), "x"); err != ErrNotConnected {
		t.Errorf("Send err = %v, want ErrNotConnected", err)
	}
	if err := ch.Unsubscribe(context.Background()); err != ErrNotConnected {
		t.Errorf("Unsubscribe err = %v, want ErrNotConnected", err)
	}
}
