package engine

import "github.com/PyRo1121/omg-sub002/internal/pkgdb"

// ProgressPublisher fans a single adapter progress stream out to any number
// of subscribers (e.g. the daemon connection that requested the transaction,
// plus an audit-log tap), each buffered independently so a slow subscriber
// never blocks the worker goroutine.
type ProgressPublisher struct {
	subscribers []chan pkgdb.ProgressEvent
}

// Subscribe returns a new buffered channel that receives every event until
// the publisher's source channel closes.
func (p *ProgressPublisher) Subscribe(buffer int) <-chan pkgdb.ProgressEvent {
	ch := make(chan pkgdb.ProgressEvent, buffer)
	p.subscribers = append(p.subscribers, ch)
	return ch
}

// Pump reads from source until it closes, broadcasting each event to every
// subscriber and then closing all of them.
func (p *ProgressPublisher) Pump(source <-chan pkgdb.ProgressEvent) {
	for ev := range source {
		for _, sub := range p.subscribers {
			select {
			case sub <- ev:
			default:
				// A full subscriber buffer drops the event rather than
				// stalling the transaction; subscribers that need every
				// event must size their buffer for the transaction.
			}
		}
	}
	for _, sub := range p.subscribers {
		close(sub)
	}
}
