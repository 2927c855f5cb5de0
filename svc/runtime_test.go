package svc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"microrpc/registry"
	"microrpc/wire"
)

type fakeRegistrar struct{}

func (fakeRegistrar) RegisterService(ctx context.Context, cfg *registry.ServiceConfig) error {
	return nil
}

func (fakeRegistrar) DeregisterService(ctx context.Context, name, guid, host string) error {
	return nil
}

func (fakeRegistrar) NextAvailablePort(ctx context.Context, name, guid, host string) (int, error) {
	return 0, nil
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	r := New(Config{Name: "concurrency-test"}, fakeRegistrar{}, log)
	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

// TestRunServesConcurrentConnections guards against the accept loop
// blocking on one connection before it can serve another: a pooled
// caller keeps several connections open at once (several clients per
// instance, plus one per heartbeat supervisor where a client runs one), so a second
// connection must be served without waiting on a first, idle one to
// close.
func TestRunServesConcurrentConnections(t *testing.T) {
	r := newTestRuntime(t)
	addr := r.listener.Addr().String()

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(context.Background()) }()

	idle, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer idle.Close()

	active, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer active.Close()

	if err := wire.WriteMessage(active, wire.MsgRequest, [][]byte{[]byte("heartbeat"), nil}); err != nil {
		t.Fatal(err)
	}

	active.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frames, err := wire.ReadMessage(active)
	if err != nil {
		t.Fatalf("second connection never got a reply while the first sat idle: %v", err)
	}
	if len(frames) == 0 || string(frames[0]) != "PONG" {
		t.Fatalf("unexpected reply: %v", frames)
	}
}

// TestRunSerializesDispatch checks the other half of the invariant:
// concurrently served connections never run two handlers at once.
func TestRunSerializesDispatch(t *testing.T) {
	r := newTestRuntime(t)
	addr := r.listener.Addr().String()

	inHandler := make(chan struct{})
	release := make(chan struct{})
	r.Register("block", HandlerFunc(func(ctx context.Context, _ []byte) ([]byte, error) {
		inHandler <- struct{}{}
		<-release
		return []byte("done"), nil
	}))

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(context.Background()) }()

	connA, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer connA.Close()
	connB, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer connB.Close()

	if err := wire.WriteMessage(connA, wire.MsgRequest, [][]byte{[]byte("block"), nil}); err != nil {
		t.Fatal(err)
	}
	<-inHandler // connA's handler is now running and blocked on release

	if err := wire.WriteMessage(connB, wire.MsgRequest, [][]byte{[]byte("block"), nil}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-inHandler:
		t.Fatal("a second handler ran while the first was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := wire.ReadMessage(connA); err != nil {
		t.Fatalf("connA never got its reply: %v", err)
	}

	<-inHandler
}
