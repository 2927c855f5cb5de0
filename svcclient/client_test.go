package svcclient

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"microrpc/registry"
	"microrpc/wire"
)

// startEchoServer answers every request frame's function name with a
// fixed reply, so tests can exercise Request without a real svc.Runtime.
func startEchoServer(t *testing.T, reply string) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				for {
					_, frames, err := wire.ReadMessage(conn)
					if err != nil {
						return
					}
					_ = frames
					if err := wire.WriteMessage(conn, wire.MsgResponse, [][]byte{[]byte(reply)}); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String(), func() { close(done); ln.Close() }
}

func testConfig(t *testing.T, addr string) *registry.ServiceConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return &registry.ServiceConfig{
		Host:      host,
		Port:      port,
		Functions: map[string]struct{}{"heartbeat": {}},
	}
}

func TestRequestSucceeds(t *testing.T) {
	addr, stop := startEchoServer(t, "PONG")
	defer stop()

	client, err := NewClient("echo", testConfig(t, addr), Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Shutdown()

	resp, err := client.Request(context.Background(), "heartbeat", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "PONG" {
		t.Fatalf("unexpected response: %s", resp)
	}
}

func TestRequestRejectsUnadvertisedFunction(t *testing.T) {
	addr, stop := startEchoServer(t, "PONG")
	defer stop()

	client, err := NewClient("echo", testConfig(t, addr), Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Shutdown()

	if _, err := client.Request(context.Background(), "not-advertised", nil); err == nil {
		t.Fatal("expected a function-not-available error")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	addr, stop := startEchoServer(t, "PONG")
	defer stop()

	client, err := NewClient("echo", testConfig(t, addr), Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := client.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if client.Alive() {
		t.Fatal("expected client to report not alive after shutdown")
	}
}
