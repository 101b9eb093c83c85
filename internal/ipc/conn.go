package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"pkt.systems/pslog"
)

// Conn frames messages as one JSON object per line over an arbitrary
// reader/writer pair. The master wires it to a worker's stdin/stdout pipes;
// tests wire it to in-memory pipes. Writes are serialized by a mutex so any
// goroutine may send; reads happen on a single loop.
type Conn struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Scanner
	logger pslog.Logger
}

// Line length cap for a single IPC frame. A full rooms_response for a worker
// at the room cap fits well under this.
const maxFrameBytes = 4 << 20

// NewConn wraps a reader/writer pair in a line-delimited message transport.
func NewConn(r io.Reader, w io.Writer, logger pslog.Logger) *Conn {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFrameBytes)
	return &Conn{w: w, r: sc, logger: logger}
}

// Send writes one message frame. Safe for concurrent use.
func (c *Conn) Send(msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode ipc frame: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write ipc frame: %w", err)
	}
	return nil
}

// ReadLoop consumes frames until the reader closes, delivering each valid
// message to handle. Invalid frames are logged and dropped; they never stop
// the loop and never panic (a malformed peer must not take this process
// down). Returns the scanner error, or nil on clean EOF.
func (c *Conn) ReadLoop(handle func(Message)) error {
	for c.r.Scan() {
		line := c.r.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := Decode(line)
		if err != nil {
			c.logger.Warn("dropping invalid ipc frame", "error", err)
			continue
		}
		handle(msg)
	}
	return c.r.Err()
}
