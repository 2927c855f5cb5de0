// Package wire implements the frame protocol microrpc services and
// clients speak over a duplex TCP socket.
//
// A ZeroMQ REQ/REP pair exchanges multipart messages: a request is
// `[function_name, payload]`, a reply is a single frame. This package
// reproduces that multipart contract over plain TCP with a small
// fixed-size header per message and a length prefix per frame, so the rest of the framework (registry,
// client, runtime) can be written against a socket abstraction that
// behaves like the duplex messaging socket the spec describes without
// depending on an external message broker.
//
// Frame format (per logical message):
//
//	0      3  4  5        9
//	┌──────┬──┬──┬─────────┬──────────────┬ ... ┐
//	│magic │v │mt│ nframes │ frame[0] ... │     │
//	│ mwp  │01│  │ uint32  │              │     │
//	└──────┴──┴──┴─────────┴──────────────┴ ... ┘
//
// Each frame within the message is itself length-prefixed:
//
//	┌─────────┬─────────────┐
//	│ len(4)  │ bytes(len)  │
//	└─────────┴─────────────┘
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	magic0 byte = 0x6d // 'm'
	magic1 byte = 0x77 // 'w'
	magic2 byte = 0x70 // 'p'
	version byte = 0x01

	headerSize = 3 + 1 + 1 + 4 // magic + version + msgtype + nframes
)

// MsgType distinguishes request, response, and heartbeat messages.
type MsgType byte

const (
	MsgRequest   MsgType = 0
	MsgResponse  MsgType = 1
	MsgHeartbeat MsgType = 2
)

// WriteMessage writes a complete multipart message to w.
// The caller must serialize writes if multiple goroutines share w.
func WriteMessage(w io.Writer, msgType MsgType, frames [][]byte) error {
	header := make([]byte, headerSize)
	header[0], header[1], header[2] = magic0, magic1, magic2
	header[3] = version
	header[4] = byte(msgType)
	binary.BigEndian.PutUint32(header[5:9], uint32(len(frames)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	for _, frame := range frames {
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(frame)))
		if _, err := w.Write(lenBuf); err != nil {
			return err
		}
		if len(frame) > 0 {
			if _, err := w.Write(frame); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadMessage reads one complete multipart message from r.
func ReadMessage(r io.Reader) (MsgType, [][]byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	if header[0] != magic0 || header[1] != magic1 || header[2] != magic2 {
		return 0, nil, fmt.Errorf("wire: invalid magic number: %x", header[0:3])
	}
	if header[3] != version {
		return 0, nil, fmt.Errorf("wire: unsupported version: %d", header[3])
	}
	msgType := MsgType(header[4])
	nframes := binary.BigEndian.Uint32(header[5:9])

	frames := make([][]byte, 0, nframes)
	for i := uint32(0); i < nframes; i++ {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return 0, nil, err
		}
		frameLen := binary.BigEndian.Uint32(lenBuf)
		frame := make([]byte, frameLen)
		if frameLen > 0 {
			if _, err := io.ReadFull(r, frame); err != nil {
				return 0, nil, err
			}
		}
		frames = append(frames, frame)
	}
	return msgType, frames, nil
}
