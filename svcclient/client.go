// Package svcclient implements the duplex client side of a single
// service connection: request/reply with exponential-backoff retry,
// plus an optional heartbeat supervisor that watches the connection
// between calls and flips the client dead when it stops answering.
package svcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"microrpc/registry"
	"microrpc/rpcerr"
	"microrpc/wire"
)

// Defaults mirror the framework's historical tuning: three tries at a
// five-second timeout, doubling the wait between each, thirty seconds
// between heartbeat cycles.
const (
	DefaultTimeout          = 5000 * time.Millisecond
	DefaultMaxTries         = 3
	DefaultSleepBeforeRetry = 3000 * time.Millisecond
	DefaultHeartbeatFreq    = 30000 * time.Millisecond

	heartbeatTimeout  = 2000 * time.Millisecond
	heartbeatMaxTries = 1
)

// Options tunes a Client's retry and heartbeat behavior.
type Options struct {
	Timeout            time.Duration
	MaxTries           int
	SleepBeforeRetry   time.Duration
	HeartbeatFrequency time.Duration
	StartHeartbeat     bool
}

// Blocking is the sentinel Timeout value meaning "no deadline, wait as
// long as it takes for a reply" — used by the method caller's pooled
// clients, which rely on the pool's own acquire timeout instead.
const Blocking time.Duration = -1

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxTries == 0 {
		o.MaxTries = DefaultMaxTries
	}
	if o.SleepBeforeRetry == 0 {
		o.SleepBeforeRetry = DefaultSleepBeforeRetry
	}
	if o.HeartbeatFrequency == 0 {
		o.HeartbeatFrequency = DefaultHeartbeatFreq
	}
	return o
}

// Client is a single service instance's client-side connection. It is
// not safe to call Request concurrently from multiple goroutines; the
// caller package pools one Client per concurrent in-flight call.
type Client struct {
	serviceName string
	cfg         *registry.ServiceConfig
	opts        Options

	mu   sync.Mutex // guards conn against replacement by reopen/Shutdown
	conn net.Conn

	alive        atomic.Bool
	shutdownOnce sync.Once
	shutdownTime atomic.Int64

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// NewClient dials the instance described by cfg and, if requested,
// starts the background heartbeat supervisor.
func NewClient(serviceName string, cfg *registry.ServiceConfig, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	c := &Client{
		serviceName: serviceName,
		cfg:         cfg,
		opts:        opts,
	}

	conn, err := c.dial()
	if err != nil {
		return nil, &rpcerr.ServiceClientError{Cause: err}
	}
	c.conn = conn
	c.alive.Store(true)

	if opts.StartHeartbeat {
		c.stopHeartbeat = make(chan struct{})
		c.heartbeatDone = make(chan struct{})
		go c.runHeartbeat()
	}

	return c, nil
}

func (c *Client) dial() (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	if c.opts.Timeout == Blocking {
		return net.Dial("tcp", addr)
	}
	return net.DialTimeout("tcp", addr, c.opts.Timeout)
}

// Alive reports whether the client still believes its connection is
// usable — false once a retry budget is exhausted or the heartbeat
// supervisor has given up.
func (c *Client) Alive() bool {
	return c.alive.Load()
}

// reopen replaces the underlying connection without reusing the old
// socket, mirroring the original client's "reconnect on timeout" behavior.
func (c *Client) reopen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Request sends function with payload and returns the reply payload.
// It makes up to opts.MaxTries attempts, retrying only on timeout and
// sleeping 2^try * SleepBeforeRetry between attempts, and gives up
// immediately (no retry) on any other transport error. A failed
// Request shuts the client down.
func (c *Client) Request(ctx context.Context, function string, payload []byte) ([]byte, error) {
	if c.cfg != nil && !c.cfg.HasFunction(function) {
		return nil, &rpcerr.ServiceFunctionNotAvailableError{Service: c.serviceName, Function: function}
	}

	var lastErr error
	var sleepDuration time.Duration
	tryNum := 0

	for c.alive.Load() && tryNum < c.opts.MaxTries {
		if sleepDuration > 0 {
			time.Sleep(sleepDuration)
			if err := c.reopen(); err != nil {
				lastErr = &rpcerr.ServiceClientError{Cause: err}
				break
			}
		}

		resp, err := c.roundTrip(function, payload)
		if err == nil {
			return resp, nil
		}

		if isTimeout(err) {
			c.mu.Lock()
			if c.conn != nil {
				c.conn.Close()
			}
			c.mu.Unlock()
			lastErr = &rpcerr.ServiceClientTimeoutError{
				Service:          c.serviceName,
				Function:         function,
				TimeoutMS:        int(c.opts.Timeout / time.Millisecond),
				MaxTries:         c.opts.MaxTries,
				SleepBeforeRetry: int(c.opts.SleepBeforeRetry / time.Millisecond),
			}
			sleepDuration = time.Duration(1<<uint(tryNum)) * c.opts.SleepBeforeRetry
			tryNum++
			continue
		}

		lastErr = &rpcerr.ServiceClientError{Cause: err}
		break
	}

	c.Shutdown()
	if lastErr == nil {
		lastErr = &rpcerr.ServiceClientError{Cause: fmt.Errorf("request exhausted retries with no recorded error")}
	}
	return nil, lastErr
}

func (c *Client) roundTrip(function string, payload []byte) ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("svcclient: connection not open")
	}

	if c.opts.Timeout == Blocking {
		if err := conn.SetDeadline(time.Time{}); err != nil {
			return nil, err
		}
	} else if err := conn.SetDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
		return nil, err
	}

	if err := wire.WriteMessage(conn, wire.MsgRequest, [][]byte{[]byte(function), payload}); err != nil {
		return nil, err
	}

	_, frames, err := wire.ReadMessage(conn)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}
	return frames[0], nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Ping calls the built-in heartbeat function and reports whether the
// instance answered "PONG".
func (c *Client) Ping(ctx context.Context) (bool, error) {
	resp, err := c.Request(ctx, "heartbeat", nil)
	if err != nil {
		return false, err
	}
	return string(resp) == "PONG", nil
}

// Stop calls the built-in stop function, asking the instance to shut down.
func (c *Client) Stop(ctx context.Context) ([]byte, error) {
	return c.Request(ctx, "stop", nil)
}

// Description calls the built-in description function and decodes the
// JSON status document it returns.
func (c *Client) Description(ctx context.Context) (map[string]any, error) {
	return c.callJSON(ctx, "description")
}

// Healthcheck calls the built-in healthcheck function and decodes the
// JSON status document it returns.
func (c *Client) Healthcheck(ctx context.Context) (map[string]any, error) {
	return c.callJSON(ctx, "healthcheck")
}

func (c *Client) callJSON(ctx context.Context, function string) (map[string]any, error) {
	resp, err := c.Request(ctx, function, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, &rpcerr.BadServiceRequestError{Cause: err}
	}
	return out, nil
}

// Shutdown is idempotent: the first call flips alive false, stops the
// heartbeat supervisor, closes the connection, and stamps the shutdown
// time; later calls are no-ops.
func (c *Client) Shutdown() error {
	c.shutdownOnce.Do(func() {
		c.alive.Store(false)
		if c.stopHeartbeat != nil {
			close(c.stopHeartbeat)
			<-c.heartbeatDone
		}
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
		c.shutdownTime.Store(time.Now().UnixMicro())
	})
	return nil
}
