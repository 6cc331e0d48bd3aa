// Package bridge attaches the firmware's UART ports to real host serial
// devices, so the simulated display can talk to a bench BLE module or a
// live motor controller. Each Link pumps one direction pair: host bytes go
// into the firmware's receive path, firmware transmit bytes go out the
// host port.
package bridge

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	drainSilence  = 100 * time.Millisecond  // silence threshold for drain loop
	drainTimeout  = 1500 * time.Millisecond // max time to spend draining
	readTimeout   = 20 * time.Millisecond   // pump read granularity
	txPollPeriod  = 5 * time.Millisecond    // firmware TX drain period
	reconnectWait = 500 * time.Millisecond
)

// Config holds one link's serial attachment.
type Config struct {
	PortPath string
	BaudRate int
}

// Link joins one firmware UART to one host serial port. rx delivers a host
// byte into the firmware receive path; drain returns whatever the firmware
// has transmitted since the last call.
type Link struct {
	name     string
	portPath string
	baudRate int

	rx    func(b byte)
	drain func() []byte

	mu        sync.Mutex
	port      serial.Port
	connected bool
}

// NewLink creates a link for one firmware port. name is used in logs only.
func NewLink(name string, cfg Config, rx func(b byte), drain func() []byte) *Link {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	return &Link{
		name:     name,
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		rx:       rx,
		drain:    drain,
	}
}

func (l *Link) Name() string { return l.name }

// IsConnected returns whether the link has an open port.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Connect opens the serial port and clears any stale bytes.
func (l *Link) Connect() error {
	mode := &serial.Mode{
		BaudRate: l.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(l.portPath, mode)
	if err != nil {
		return fmt.Errorf("bridge: failed to open %s: %w", l.portPath, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("bridge: failed to set timeout: %w", err)
	}

	l.mu.Lock()
	l.port = port
	l.connected = true
	l.mu.Unlock()

	log.Printf("[%s] opened %s at %d baud", l.name, l.portPath, l.baudRate)
	l.drainSerial("open")
	return nil
}

// Close shuts the port down.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// drainSerial reads and discards pending data until there is silence for
// drainSilence, or drainTimeout has elapsed. This clears boot garbage and
// stale buffers before the pump starts.
func (l *Link) drainSerial(label string) {
	l.mu.Lock()
	port := l.port
	l.mu.Unlock()
	if port == nil {
		return
	}

	port.ResetInputBuffer()
	port.SetReadTimeout(drainSilence)
	defer port.SetReadTimeout(readTimeout)

	total := 0
	deadline := time.Now().Add(drainTimeout)
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		n, _ := port.Read(buf)
		if n == 0 {
			break
		}
		if total == 0 {
			log.Printf("[%s] drain(%s) first bytes: % X", l.name, label, buf[:n])
		}
		total += n
	}
	if total > 0 {
		log.Printf("[%s] drain(%s) cleared %d bytes", l.name, label, total)
	}
}

// Run pumps both directions until the context ends or the port fails. Host
// bytes are delivered one at a time, matching the receive-interrupt model;
// the firmware's transmit buffer is drained on a short period.
func (l *Link) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		buf := make([]byte, 256)
		for ctx.Err() == nil {
			l.mu.Lock()
			port := l.port
			l.mu.Unlock()
			if port == nil {
				return
			}
			n, err := port.Read(buf)
			if err != nil {
				log.Printf("[%s] read failed: %v", l.name, err)
				l.Close()
				return
			}
			for _, b := range buf[:n] {
				l.rx(b)
			}
		}
	}()

	go func() {
		defer wg.Done()
		t := time.NewTicker(txPollPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				out := l.drain()
				if len(out) == 0 {
					continue
				}
				l.mu.Lock()
				port := l.port
				l.mu.Unlock()
				if port == nil {
					return
				}
				if _, err := port.Write(out); err != nil {
					log.Printf("[%s] write failed: %v", l.name, err)
					l.Close()
					return
				}
			}
		}
	}()

	wg.Wait()
}

// ConnectWithRetry attempts Connect with exponential backoff, then runs the
// pump. If the pump exits from a port failure it reconnects and resumes.
// Starts at 1s, doubles up to 60s; after maxAttempts it keeps retrying at
// the max interval.
func (l *Link) ConnectWithRetry(ctx context.Context, maxAttempts int) {
	for ctx.Err() == nil {
		delay := 1 * time.Second
		maxDelay := 60 * time.Second
		attempt := 0

		for ctx.Err() == nil {
			if err := l.Connect(); err == nil {
				log.Printf("[%s] connected (attempt %d)", l.name, attempt+1)
				break
			} else {
				attempt++
				if attempt <= maxAttempts {
					log.Printf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
						l.name, attempt, maxAttempts, err, delay)
				} else {
					log.Printf("[%s] connect attempt %d failed: %v (retry in %v)",
						l.name, attempt, err, delay)
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				delay *= 2
				if delay > maxDelay {
					delay = maxDelay
				}
			}
		}
		if ctx.Err() != nil {
			return
		}

		l.Run(ctx)
		if ctx.Err() == nil {
			log.Printf("[%s] link dropped, reconnecting", l.name)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectWait):
			}
		}
	}
}
