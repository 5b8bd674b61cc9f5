package mempool

import "github.com/containerman17/dolos-ledger/collab"

// subscriber is one Subscribe() call's delivery channel, identified so
// Unsubscribe can find and remove it.
type subscriber struct {
	id uint64
	ch chan collab.MempoolEvent
}

// Subscribe returns a channel of every stage transition this Mempool
// makes from here on — the Go-native counterpart to
// original_source/crates/redb3/src/mempool.rs's
// tokio::sync::broadcast::Sender<MempoolEvent> feed. A buffered channel
// plus a non-blocking send (a full reader misses the new event; the writer never blocks) is
// the idiomatic Go substitute for a broadcast channel's lagging-receiver
// semantics; there's no third-party pub/sub library in the example pack
// suited to a single-process, in-core event feed like this one; it's
// reached for only across real process/network boundaries, which this
// isn't.
func (m *Mempool) Subscribe(buffer int) (<-chan collab.MempoolEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	m.subsMu.Lock()
	sub := subscriber{id: uint64(m.subsID), ch: make(chan collab.MempoolEvent, buffer)}
	m.subsID++
	m.subs = append(m.subs, sub)
	m.subsMu.Unlock()

	unsubscribe := func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		for i, s := range m.subs {
			if s.id == sub.id {
				close(s.ch)
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
	return sub.ch, unsubscribe
}

// publish fans an event out to every live subscriber, dropping it for
// any subscriber whose buffer is currently full rather than blocking the
// mempool's single writer on a slow reader.
func (m *Mempool) publish(ev collab.MempoolEvent) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, s := range m.subs {
		select {
		case s.ch <- ev:
		default:
		}
	}
}
