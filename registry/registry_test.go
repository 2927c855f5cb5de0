package registry

import "testing"

func TestClientSocketTypeIsInvolution(t *testing.T) {
	pairs := []SocketType{REQ, REP, PUB, SUB, PUSH, PULL}
	for _, st := range pairs {
		flipped, err := ClientSocketType(st)
		if err != nil {
			t.Fatalf("ClientSocketType(%s): %v", st, err)
		}
		back, err := ClientSocketType(flipped)
		if err != nil {
			t.Fatalf("ClientSocketType(%s): %v", flipped, err)
		}
		if back != st {
			t.Errorf("flipping %s twice gave %s, want %s", st, back, st)
		}
	}
}

func TestClientSocketTypeUnknown(t *testing.T) {
	if _, err := ClientSocketType("BOGUS"); err == nil {
		t.Fatal("expected an error for an unknown socket type")
	}
}

func TestFlipConnectMethodIsInvolution(t *testing.T) {
	for _, cm := range []ConnectMethod{Bind, Connect} {
		if got := FlipConnectMethod(FlipConnectMethod(cm)); got != cm {
			t.Errorf("flipping %s twice gave %s, want %s", cm, got, cm)
		}
	}
}

func TestServiceConfigHasFunction(t *testing.T) {
	cfg := &ServiceConfig{Functions: map[string]struct{}{"heartbeat": {}}}
	if !cfg.HasFunction("heartbeat") {
		t.Error("expected heartbeat to be advertised")
	}
	if cfg.HasFunction("stop") {
		t.Error("did not expect stop to be advertised")
	}
}

func TestKeyLayout(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{servicesKey(), "se:s"},
		{serviceGUIDsKey("greeter"), "se:s:greeter:g"},
		{serviceInstanceKey("greeter", "abc123"), "hm:s:greeter:g:abc123"},
		{hostPortsKey("10.0.0.1"), "zs:h:10.0.0.1:p"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}
