package session

import (
	"context"
	"testing"
	"time"

	"github.com/pcoip-broker/broker/internal/broker/protocol"
)

func TestStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemory())

	unlock := store.Lock("abc")
	defer unlock()

	if sess, err := store.Get(ctx, "abc"); err != nil || sess != nil {
		t.Fatalf("expected no session initially, got %+v err=%v", sess, err)
	}

	want := &protocol.Session{State: protocol.WaitingForGetResourceList, Username: "Euler"}
	if err := store.Set(ctx, "abc", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Username != "Euler" || got.State != protocol.WaitingForGetResourceList {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if sess, err := store.Get(ctx, "abc"); err != nil || sess != nil {
		t.Fatalf("expected deleted session to be gone, got %+v err=%v", sess, err)
	}
}

func TestStoreLockIsPerKey(t *testing.T) {
	store := NewStore(NewMemory())

	unlockA := store.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := store.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on a different key blocked unexpectedly")
	}
	unlockA()
}
