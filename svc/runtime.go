// Package svc implements the service runtime: the bootstrap sequence
// that claims a port and registers into the directory, and the accept
// loop that answers function calls over wire connections — served
// concurrently, dispatched one at a time — until told to stop.
package svc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"microrpc/registry"
	"microrpc/rpcerr"
	"microrpc/wire"
)

// Registrar is the subset of the directory the runtime needs at
// bootstrap and shutdown.
type Registrar interface {
	RegisterService(ctx context.Context, cfg *registry.ServiceConfig) error
	DeregisterService(ctx context.Context, name, guid, host string) error
	NextAvailablePort(ctx context.Context, name, guid, host string) (int, error)
}

// Config is the operator-supplied description of the instance about
// to be bootstrapped; everything else (guid, port, host, start_time)
// is filled in by Bootstrap.
type Config struct {
	Name          string
	Env           string
	Host          string // operator override; determineHost may replace it
	SocketType    registry.SocketType
	ConnectMethod registry.ConnectMethod
	PIDDir        string
}

// Runtime is one running service instance.
type Runtime struct {
	Config
	GUID      string
	PID       int
	Port      int
	StartTime int64

	reg      Registrar
	log      *logrus.Logger
	listener net.Listener
	handlers map[string]Handler
	chain    Middleware
	stats    *stats

	// dispatchMu serializes handler invocation across every connection's
	// goroutine: connections are served concurrently, but only one
	// handler ever runs at a time.
	dispatchMu sync.Mutex

	shuttingDown bool
	shutdownDone bool
	shutdownMu   sync.Mutex
	wg           sync.WaitGroup
}

// New builds a Runtime, installs the built-in handlers, and applies
// cfg's socket defaults (REP/bind). The advertised host is determined
// later, in Bootstrap.
func New(cfg Config, reg Registrar, log *logrus.Logger, middlewares ...Middleware) *Runtime {
	if cfg.SocketType == "" {
		cfg.SocketType = registry.REP
	}
	if cfg.ConnectMethod == "" {
		cfg.ConnectMethod = registry.Bind
	}

	r := &Runtime{
		Config:   cfg,
		reg:      reg,
		log:      log,
		handlers: make(map[string]Handler),
		stats:    newStats(),
	}
	r.installBuiltinHandlers()
	r.chain = Chain(middlewares...)
	return r
}

// Register installs (or overrides) a handler for a named function.
func (r *Runtime) Register(function string, h Handler) {
	r.handlers[function] = h
}

// Bootstrap claims a port, opens a listener, and registers the
// instance into the directory. It deregisters and closes the listener
// on any failure partway through, mirroring the original service's
// "undo on failed setup" behavior.
func (r *Runtime) Bootstrap(ctx context.Context) error {
	if !r.SocketType.Valid() {
		return &rpcerr.UnknownSocketTypeError{SocketType: string(r.SocketType)}
	}
	if !r.ConnectMethod.Valid() {
		return &rpcerr.BadServiceConfigError{Reason: fmt.Sprintf("invalid connect_method: %s", r.ConnectMethod)}
	}

	r.GUID = uuid.NewString()
	r.PID = pidOf()
	r.StartTime = microsNow()
	r.Host = determineHost(r.Config.Host)

	port, err := r.reg.NextAvailablePort(ctx, r.Name, r.GUID, r.Host)
	if err != nil {
		return err
	}
	r.Port = port

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", r.Port))
	if err != nil {
		_ = r.reg.DeregisterService(ctx, r.Name, r.GUID, r.Host)
		return &rpcerr.BadServiceConfigError{Reason: err.Error()}
	}
	r.listener = listener

	if err := r.reg.RegisterService(ctx, r.toServiceConfig()); err != nil {
		listener.Close()
		_ = r.reg.DeregisterService(ctx, r.Name, r.GUID, r.Host)
		return err
	}

	if err := writePIDFile(r.PIDDir, r); err != nil {
		r.log.WithError(err).Warn("could not write pid file")
	}

	return nil
}

func (r *Runtime) toServiceConfig() *registry.ServiceConfig {
	functions := make(map[string]struct{}, len(r.handlers))
	for name := range r.handlers {
		functions[name] = struct{}{}
	}
	return &registry.ServiceConfig{
		Name:          r.Name,
		Env:           r.Env,
		GUID:          r.GUID,
		PID:           r.PID,
		Host:          r.Host,
		Port:          r.Port,
		SocketType:    r.SocketType,
		ConnectMethod: r.ConnectMethod,
		Functions:     functions,
		StartTime:     r.StartTime,
		Alive:         true,
	}
}

// Run accepts connections concurrently, one goroutine per connection,
// and serves each until it closes or a handler raises StopServiceError.
// Pooled clients dial several long-lived connections per instance, and
// a client running a heartbeat supervisor adds one more, so the accept
// loop can never block on a single connection the way a one-at-a-time
// accept would.
// Handler invocation itself still never overlaps: dispatch serializes
// on dispatchMu regardless of which connection's goroutine calls it.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.wg.Wait()

	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if r.isShuttingDown() {
				return nil
			}
			return err
		}

		r.wg.Add(1)
		go r.serveConn(ctx, conn)
	}
}

// serveConn processes requests from one connection until it closes or
// a handler raises StopServiceError, in which case it asks Run to
// unwind the whole accept loop by closing the listener.
func (r *Runtime) serveConn(ctx context.Context, conn net.Conn) {
	defer r.wg.Done()
	defer conn.Close()

	for {
		msgType, frames, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}

		if msgType == wire.MsgHeartbeat {
			r.respondHeartbeat(conn, frames)
			continue
		}

		if len(frames) < 2 {
			continue
		}
		function := string(frames[0])
		payload := frames[1]

		resp, shouldStop := r.dispatch(ctx, function)(payload)
		if err := wire.WriteMessage(conn, wire.MsgResponse, [][]byte{resp}); err != nil {
			return
		}
		if shouldStop {
			r.requestStop()
			return
		}
	}
}

func (r *Runtime) respondHeartbeat(conn net.Conn, frames [][]byte) {
	_ = wire.WriteMessage(conn, wire.MsgResponse, [][]byte{[]byte("PONG")})
}

// dispatch resolves function to a handler (falling back to "default"
// for anything unknown) and returns a closure that runs it through the
// middleware chain, records stats, and reports whether a stop was
// requested. The closure holds dispatchMu for the lifetime of the
// handler call, so concurrently served connections never run two
// handlers at once.
func (r *Runtime) dispatch(ctx context.Context, function string) func(payload []byte) ([]byte, bool) {
	h, ok := r.handlers[function]
	recordedName := function
	if !ok {
		h = r.handlers["default"]
		recordedName = "default"
	}
	wrapped := r.chain(h)

	return func(payload []byte) ([]byte, bool) {
		r.dispatchMu.Lock()
		defer r.dispatchMu.Unlock()

		r.stats.recordFunction(recordedName)
		start := time.Now()

		resp, err := wrapped.Handle(ctx, payload)
		_, isStop := err.(*rpcerr.StopServiceError)

		if err != nil && !isStop {
			r.stats.recordResult(false, time.Since(start))
			if resp == nil {
				resp = errorEnvelopeBytes(err)
			}
			return resp, false
		}
		r.stats.recordResult(true, time.Since(start))
		return resp, isStop
	}
}

func (r *Runtime) isShuttingDown() bool {
	r.shutdownMu.Lock()
	defer r.shutdownMu.Unlock()
	return r.shuttingDown
}

// requestStop marks the runtime as shutting down and closes its
// listener so Run's Accept unblocks and returns, without touching the
// directory registration — that happens when Shutdown is called,
// which main already does unconditionally once Run returns.
func (r *Runtime) requestStop() {
	r.shutdownMu.Lock()
	already := r.shuttingDown
	r.shuttingDown = true
	r.shutdownMu.Unlock()

	if !already && r.listener != nil {
		r.listener.Close()
	}
}

// Shutdown deregisters the instance, closes its listener, and removes
// its pid file. It is safe to call more than once.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownMu.Lock()
	if r.shutdownDone {
		r.shutdownMu.Unlock()
		return nil
	}
	r.shutdownDone = true
	r.shuttingDown = true
	r.shutdownMu.Unlock()

	if r.listener != nil {
		r.listener.Close()
	}
	removePIDFile(r.PIDDir, r.Name, r.GUID)
	return r.reg.DeregisterService(ctx, r.Name, r.GUID, r.Host)
}
