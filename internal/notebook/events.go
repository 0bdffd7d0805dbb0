package notebook

// EventType tells subscribers what changed
type EventType int

const (
	CellChanged EventType = iota
	CellDeleted
	StateChanged
	Notified
)

// Event is published on every cell transition, session state change and
// host notification.
type Event struct {
	Type  EventType
	Cell  Cell
	State State
	Err   error
	Level string
	Text  string
}

// Subscribe returns a channel of future events and a function that ends the
// subscription. Events are dropped for subscribers that fall behind.
func (n *Notebook) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	n.subMu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.subMu.Unlock()

	var once bool
	return ch, func() {
		n.subMu.Lock()
		defer n.subMu.Unlock()
		if once {
			return
		}
		once = true
		delete(n.subs, id)
		close(ch)
	}
}

func (n *Notebook) publish(ev Event) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// publishCell must be called with n.mu held
func (n *Notebook) publishCell(e *entry) {
	n.publish(Event{Type: CellChanged, Cell: e.cell.clone()})
}
