// Package scan classifies adapter discovery traffic into a per-address
// lifecycle and locates a target device in that traffic.
package scan

import (
	"context"
	"log/slog"

	"github.com/chaz8081/hm-remote/internal/ble"
)

// Status is the discovery state of an address. It only ever moves from
// StatusDiscovered to StatusUpdated.
type Status int

const (
	StatusDiscovered Status = iota
	StatusUpdated
)

// Record is the engine's view of one address.
type Record struct {
	Address ble.Address
	Status  Status
}

// Kind tags a classified event.
type Kind int

const (
	KindAdvertised Kind = iota
	KindLost
	KindUpdated
	KindNew
)

func (k Kind) String() string {
	switch k {
	case KindAdvertised:
		return "ADVERTISED"
	case KindLost:
		return "LOST"
	case KindUpdated:
		return "UPDATE"
	case KindNew:
		return "NEW"
	default:
		return "UNKNOWN"
	}
}

// Classified is a human-facing discovery event.
type Classified struct {
	Kind    Kind
	Address ble.Address
	Display string // "ADDR Name"; empty for KindAdvertised
}

// Options tunes what the engine reports.
type Options struct {
	Verbose       bool // report advertisements and repeated updates
	FilterUnnamed bool // suppress KindNew for devices without a name
}

// Engine owns the record table for the duration of a scan. It is not safe
// for concurrent use.
type Engine struct {
	dir     ble.Directory
	opts    Options
	records map[ble.Address]*Record
}

// NewEngine creates an engine resolving names through dir.
func NewEngine(dir ble.Directory, opts Options) *Engine {
	return &Engine{
		dir:     dir,
		opts:    opts,
		records: make(map[ble.Address]*Record),
	}
}

// Record returns a copy of the record for addr.
func (e *Engine) Record(addr ble.Address) (Record, bool) {
	r, ok := e.records[addr]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Classify applies one adapter event to the table and returns what should
// be reported, in order.
func (e *Engine) Classify(ev ble.Event) []Classified {
	switch ev.Kind {
	case ble.EventDiscovered:
		e.records[ev.Address] = &Record{Address: ev.Address, Status: StatusDiscovered}
		if e.opts.Verbose {
			return []Classified{{Kind: KindAdvertised, Address: ev.Address}}
		}

	case ble.EventLost:
		out := []Classified{{Kind: KindLost, Address: ev.Address, Display: e.display(ev.Address)}}
		delete(e.records, ev.Address)
		return out

	case ble.EventUpdated:
		var out []Classified
		if e.opts.Verbose {
			out = append(out, Classified{Kind: KindUpdated, Address: ev.Address, Display: e.display(ev.Address)})
		}
		rec, ok := e.records[ev.Address]
		if !ok {
			rec = &Record{Address: ev.Address, Status: StatusDiscovered}
			e.records[ev.Address] = rec
		}
		if rec.Status == StatusDiscovered {
			_, named := e.name(ev.Address)
			if named || !e.opts.FilterUnnamed {
				out = append(out, Classified{Kind: KindNew, Address: ev.Address, Display: e.display(ev.Address)})
			}
			rec.Status = StatusUpdated
		}
		return out
	}
	return nil
}

// Run classifies events until ctx is done, which ends the scan normally,
// or until the stream closes, which is reported as ble.ErrAdapterStopped.
func (e *Engine) Run(ctx context.Context, events <-chan ble.Event, report func(Classified)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return ble.ErrAdapterStopped
			}
			// A select with both sources ready picks at random.
			if ctx.Err() != nil {
				return nil
			}
			for _, c := range e.Classify(ev) {
				report(c)
			}
		}
	}
}

func (e *Engine) name(addr ble.Address) (string, bool) {
	p, err := e.dir.Peripheral(addr)
	if err != nil {
		slog.Debug("[SCAN] name lookup failed", "addr", addr, "error", err)
		return "", false
	}
	return p.Name()
}

func (e *Engine) display(addr ble.Address) string {
	p, err := e.dir.Peripheral(addr)
	if err != nil {
		return addr.String() + " <Unnamed>"
	}
	return ble.DisplayName(p)
}
