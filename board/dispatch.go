// Package board implements the per-board foreground dispatch loop shared
// by all three boards: poll the packet control interface, step whatever
// state machines the board owns, and run the command handler the packet's
// type resolves to. Each board (SensAct, Manip, PM) builds a Dispatcher
// wired to its own handler table and poll functions; the loop shape itself
// lives here once.
package board

import (
	"context"
	"log"
	"time"

	"tribot.dev/pci"
)

// Handler processes one command's payload. Handlers are expected to
// validate data_length themselves and silently do nothing on mismatch, per
// the wire protocol's "every handler validates data_length exactly"
// contract; Dispatcher does not enforce this for them.
type Handler func(data []byte)

// pollInterval is the foreground loop's iteration period. The original
// firmware's main loop runs as fast as the CPU allows between interrupts;
// polling at this rate is frequent enough to service both the byte parser
// and the lift/PM step functions without the host process spinning.
const pollInterval = time.Millisecond

// Dispatcher is the foreground loop for one board: it drains the packet
// parser, looks up and runs the handler for whatever command arrives, and
// runs every registered poller once per iteration.
type Dispatcher struct {
	name   string
	parser *pci.Parser
	sender *pci.Sender

	handlers map[pci.Type]Handler
	pollers  []func()

	start time.Time
}

// newDispatcher constructs a Dispatcher draining src and replying through
// sink, with its uptime clock started now.
func newDispatcher(name string, src pci.Source, sink pci.Sink) *Dispatcher {
	return &Dispatcher{
		name:     name,
		parser:   pci.NewParser(src),
		sender:   pci.NewSender(sink),
		handlers: make(map[pci.Type]Handler),
		start:    time.Now(),
	}
}

// handle registers fn as the handler for command type t, overwriting any
// previous registration.
func (d *Dispatcher) handle(t pci.Type, fn Handler) {
	d.handlers[t] = fn
}

// poll registers fn to run once every foreground loop iteration, after
// command dispatch. Used for the lift-actuator Step() and the power-loop
// Poll(); SensAct's PID tick runs off its own ticker instead, since its
// ~61.3 Hz rate is a genuine timer interrupt, not a foreground poll.
func (d *Dispatcher) poll(fn func()) {
	d.pollers = append(d.pollers, fn)
}

// reply sends a response packet, logging (but not propagating) a failure:
// a send failure here mirrors the original firmware silently dropping an
// oversized reply rather than crashing the loop.
func (d *Dispatcher) reply(t pci.Type, data []byte) {
	if err := d.sender.Send(t, data); err != nil {
		log.Printf("%s: send %v: %v", d.name, t, err)
	}
}

// uptimeMillis returns milliseconds since the Dispatcher was constructed,
// standing in for the original firmware's free-running millisecond timer.
func (d *Dispatcher) uptimeMillis() uint32 {
	return uint32(time.Since(d.start).Milliseconds())
}

// Exec runs the dispatch loop until ctx is cancelled: drain the parser,
// dispatch one command if a frame completed, run every poller, repeat.
func (d *Dispatcher) Exec(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		d.parser.ProcessInput()
		if d.parser.GetState() == pci.RecvCommand {
			pkt := d.parser.GetPacket()
			if fn, ok := d.handlers[pkt.Type]; ok {
				fn(pkt.Data)
			}
			// Unknown/unhandled types are silently ignored, matching
			// spec.md §6/§7: INVALID and unsupported-but-known types
			// both get no reply.
		}

		for _, p := range d.pollers {
			p()
		}
	}
}
