package comm

import (
	"fmt"
	"sync"
)

type message struct {
	source, tag int
	data        []float64
}

type msgKey struct {
	source, tag int
}

// Mailbox is one endpoint of an in-process communicator network: every
// rank runs in its own goroutine and exchanges messages over buffered
// channels, with out-of-order arrivals parked in a pending queue until a
// matching receive is posted. Lets a single process stand in for a
// multi-rank run, which is how the distributed exchange paths get tested.
type Mailbox struct {
	rank    int
	inboxes []chan message // shared across the network; inboxes[r] feeds rank r

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[msgKey][]message
}

// NewMailboxNetwork creates n connected endpoints, one per rank.
func NewMailboxNetwork(n int) []*Mailbox {
	if n < 1 {
		panic(fmt.Sprintf("invalid network size %d", n))
	}
	inboxes := make([]chan message, n)
	for i := range inboxes {
		inboxes[i] = make(chan message, 16)
	}
	boxes := make([]*Mailbox, n)
	for i := range boxes {
		mb := &Mailbox{
			rank:    i,
			inboxes: inboxes,
			pending: make(map[msgKey][]message),
		}
		mb.cond = sync.NewCond(&mb.mu)
		go mb.pump()
		boxes[i] = mb
	}
	return boxes
}

// pump drains this rank's inbox into the pending queues.
func (mb *Mailbox) pump() {
	for msg := range mb.inboxes[mb.rank] {
		k := msgKey{msg.source, msg.tag}
		mb.mu.Lock()
		mb.pending[k] = append(mb.pending[k], msg)
		mb.cond.Broadcast()
		mb.mu.Unlock()
	}
}

// Close shuts down this endpoint's inbox. No sends to this rank may
// follow.
func (mb *Mailbox) Close() {
	close(mb.inboxes[mb.rank])
}

func (mb *Mailbox) Rank() int { return mb.rank }

func (mb *Mailbox) Size() int { return len(mb.inboxes) }

// Send delivers a copy of data to dest. The caller may reuse data as soon
// as Send returns.
func (mb *Mailbox) Send(dest, tag int, data []float64) error {
	if dest < 0 || dest >= len(mb.inboxes) {
		return fmt.Errorf("%w: send to unknown rank %d (network size %d)",
			ErrProtocol, dest, len(mb.inboxes))
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	mb.inboxes[dest] <- message{source: mb.rank, tag: tag, data: cp}
	return nil
}

// Recv blocks until a message from source with the given tag arrives and
// copies it into data. A payload whose size differs from len(data) is a
// fatal protocol error; the data is never truncated or padded.
func (mb *Mailbox) Recv(source, tag int, data []float64) error {
	if source < 0 || source >= len(mb.inboxes) {
		return fmt.Errorf("%w: receive from unknown rank %d (network size %d)",
			ErrProtocol, source, len(mb.inboxes))
	}
	k := msgKey{source, tag}
	mb.mu.Lock()
	for len(mb.pending[k]) == 0 {
		mb.cond.Wait()
	}
	msg := mb.pending[k][0]
	if rest := mb.pending[k][1:]; len(rest) > 0 {
		mb.pending[k] = rest
	} else {
		delete(mb.pending, k)
	}
	mb.mu.Unlock()
	if len(msg.data) != len(data) {
		return fmt.Errorf("%w: rank %d expected %d values from rank %d (tag %d), received %d",
			ErrProtocol, mb.rank, len(data), source, tag, len(msg.data))
	}
	copy(data, msg.data)
	return nil
}
