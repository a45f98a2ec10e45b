package events

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (archives, feeds).
type Emitter interface {
	Emit(Event)
}
