package svcclient

import (
	"fmt"
	"net"
	"time"

	"microrpc/wire"
)

// runHeartbeat owns a connection of its own, separate from the one
// Request uses, so a heartbeat probe can never interleave frames with
// an in-flight call. It always closes heartbeatDone on exit, whether
// asked to stop via stopHeartbeat or because the probe itself gave up;
// it never calls Shutdown directly, since Shutdown joins this goroutine
// and would deadlock if invoked from inside it.
func (c *Client) runHeartbeat() {
	defer close(c.heartbeatDone)

	conn, err := c.dial()
	if err != nil {
		c.alive.Store(false)
		return
	}
	defer conn.Close()

	backoff := c.opts.SleepBeforeRetry
	tryNum := 0

	for {
		select {
		case <-c.stopHeartbeat:
			return
		default:
		}

		ok, probeErr := probeOnce(conn)
		if ok {
			tryNum = 0
			backoff = c.opts.SleepBeforeRetry
			select {
			case <-c.stopHeartbeat:
				return
			case <-time.After(c.opts.HeartbeatFrequency):
				continue
			}
		}

		if isTimeout(probeErr) {
			conn.Close()
			sleep := time.Duration(1<<uint(tryNum)) * backoff
			tryNum++
			select {
			case <-c.stopHeartbeat:
				return
			case <-time.After(sleep):
			}
			conn, err = c.dial()
			if err != nil {
				c.alive.Store(false)
				return
			}
			continue
		}

		// Any other error is terminal for the heartbeat supervisor: the
		// peer is gone, not just slow.
		c.alive.Store(false)
		return
	}
}

// probeOnce sends a single heartbeat frame with a short, hard-coded
// timeout and reports whether the instance answered "PONG" in time.
func probeOnce(conn net.Conn) (bool, error) {
	if err := conn.SetDeadline(time.Now().Add(heartbeatTimeout)); err != nil {
		return false, err
	}
	if err := wire.WriteMessage(conn, wire.MsgHeartbeat, [][]byte{[]byte("heartbeat"), []byte("heartbeat")}); err != nil {
		return false, err
	}
	_, frames, err := wire.ReadMessage(conn)
	if err != nil {
		return false, err
	}
	if len(frames) == 0 || string(frames[0]) != "PONG" {
		return false, fmt.Errorf("svcclient: heartbeat got unexpected reply")
	}
	return true, nil
}
