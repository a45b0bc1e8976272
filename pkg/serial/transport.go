// Package serial implements the half-duplex, single-outstanding-request
// exchange over the physical UART link to the TinyBMS module. It knows
// nothing about register semantics; it only moves framed byte buffers back
// and forth and enforces the mutual-exclusion, timeout and resync rules of
// spec §4.3. The physical port is opened through github.com/tarm/serial, the
// same library the seedhammer pack entry uses for its own UART device.
package serial

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/vesselenergy/tinybms-gateway/pkg/modbus"
)

// Port is the minimal surface this package needs from a physical serial
// connection; github.com/tarm/serial.Port satisfies it directly, and tests
// substitute an in-memory pipe.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// Config describes how to open and drive the physical link.
type Config struct {
	Device         string        // e.g. "/dev/ttyUSB0" or "COM3"
	BaudRate       int           // 115200 or 9600 depending on TinyBMS variant
	ResponseTimeout time.Duration // default 800ms if zero
	readChunk      time.Duration // internal read poll granularity
}

const defaultResponseTimeout = 800 * time.Millisecond
const defaultReadChunk = 20 * time.Millisecond

// Transport drives one physical link with single-outstanding-request
// discipline. All exported methods are safe for concurrent use; concurrent
// callers queue on an internal mutex.
type Transport struct {
	mu      sync.Mutex
	port    Port
	logger  *slog.Logger
	timeout time.Duration
	chunk   time.Duration
}

// Open opens the physical serial device described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ResponseTimeout
	if timeout <= 0 {
		timeout = defaultResponseTimeout
	}
	chunk := cfg.readChunk
	if chunk <= 0 {
		chunk = defaultReadChunk
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.BaudRate,
		ReadTimeout: chunk,
	})
	if err != nil {
		return nil, err
	}
	return &Transport{
		port:    port,
		logger:  logger.With("service", "[serial]"),
		timeout: timeout,
		chunk:   chunk,
	}, nil
}

// New wraps an already-open Port (used by tests and by embedders supplying
// their own physical-layer implementation).
func New(port Port, timeout time.Duration, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultResponseTimeout
	}
	return &Transport{port: port, logger: logger.With("service", "[serial]"), timeout: timeout, chunk: defaultReadChunk}
}

// Close closes the underlying port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port.Close()
}

// Exchange sends request and waits for a complete, CRC-verified reply frame
// matching expectedCmd. Only one exchange is in flight at a time; concurrent
// callers block on the internal mutex until their turn. On timeout the RX
// buffer is drained before returning so the next request starts resynced.
func (t *Transport) Exchange(ctx context.Context, request []byte, expectedCmd byte) (*modbus.ReplyFrame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.port.Write(request); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(t.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	var buf []byte
	readBuf := make([]byte, 64)
	for {
		if time.Now().After(deadline) {
			t.drain()
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			t.drain()
			return nil, ctx.Err()
		default:
		}

		n, err := t.port.Read(readBuf)
		if n > 0 {
			buf = resync(append(buf, readBuf[:n]...))
			reply, perr := modbus.ParseReply(buf, expectedCmd)
			switch {
			case perr == nil:
				return reply, nil
			case perr == modbus.ErrShortBuffer:
				continue
			default:
				t.drain()
				return nil, perr
			}
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
	}
}

// resync discards any bytes preceding the first 0xAA sync byte, per the
// framing resynchronisation rule of spec §4.3.
func resync(buf []byte) []byte {
	for i, b := range buf {
		if b == modbus.Sync {
			return buf[i:]
		}
	}
	return buf[:0]
}

// drain reads and discards any bytes still arriving on the link so the next
// exchange starts from a clean slate.
func (t *Transport) drain() {
	scratch := make([]byte, 64)
	for {
		n, err := t.port.Read(scratch)
		if n == 0 || err != nil {
			return
		}
	}
}
