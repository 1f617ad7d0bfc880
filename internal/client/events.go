package client

import "sync"

// EventKind tags a push event delivered by the server or a connection
// lifecycle change.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventLogin
	EventData
	EventPres
	EventInfo
	EventMetaDesc
	EventMetaSub
	EventMetaTags
	EventMetaCred
)

// Event is the tagged union dispatched to registered handlers. Only the
// fields matching Kind are set.
type Event struct {
	Kind  EventKind
	Topic string
	Code  int
	Text  string
	Data  *MsgData
	Pres  *MsgPres
	Info  *MsgInfo
	Desc  *TopicDesc
	Sub   *SubEntry
	Tags  []string
	Cred  []Cred
}

type Handler func(Event)

// Dispatcher routes events to handlers registered per kind. Composition
// by registration replaces per-feature listener subclassing: each
// component registers only the kinds it cares about.
type Dispatcher struct {
	mu       sync.Mutex
	nextID   int
	handlers map[EventKind]map[int]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventKind]map[int]Handler)}
}

// Handle registers a handler for one event kind and returns a function
// that removes it.
func (d *Dispatcher) Handle(kind EventKind, fn Handler) (remove func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	if d.handlers[kind] == nil {
		d.handlers[kind] = make(map[int]Handler)
	}
	d.handlers[kind][id] = fn

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[kind], id)
	}
}

// Dispatch delivers the event to every handler registered for its kind,
// on the caller's goroutine. The connection's read loop is the single
// dispatch context for all state transitions.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.Lock()
	fns := make([]Handler, 0, len(d.handlers[ev.Kind]))
	for _, fn := range d.handlers[ev.Kind] {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
