package resourcepool

import (
	"context"
	"testing"
	"time"
)

type fakeResource struct {
	alive  bool
	closed bool
}

func (f *fakeResource) GoodToUse() bool { return f.alive }
func (f *fakeResource) Close() error    { f.closed = true; return nil }

func TestAcquireCreatesUpToMax(t *testing.T) {
	created := 0
	p := New(2, func() (Resource, error) {
		created++
		return &fakeResource{alive: true}, nil
	})

	h1, err := p.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := p.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if created != 2 {
		t.Fatalf("expected 2 resources created, got %d", created)
	}

	if _, err := p.Acquire(context.Background(), 50*time.Millisecond); err == nil {
		t.Fatal("expected acquire to time out once at capacity")
	}

	h1.Release()
	h2.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := New(1, func() (Resource, error) {
		return &fakeResource{alive: true}, nil
	})
	h, err := p.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	h.Release()
	h.Release() // must not panic or double-return the resource

	if h.Resource() != nil {
		t.Error("expected a released handle's resource to be nil")
	}
}

func TestAcquireDiscardsDeadResource(t *testing.T) {
	bad := &fakeResource{alive: false}
	calls := 0
	p := New(1, func() (Resource, error) {
		calls++
		if calls == 1 {
			return bad, nil
		}
		return &fakeResource{alive: true}, nil
	})

	h, err := p.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if h.Resource() == bad {
		t.Error("expected the dead resource to be discarded, not handed out")
	}
	if !bad.closed {
		t.Error("expected the dead resource to be closed")
	}
}
