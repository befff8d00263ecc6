// Package comm abstracts the point-to-point message passing the halo
// exchange engine runs on: an MPI-like rank/size/send/recv surface with a
// no-op single-process implementation and an in-process channel-backed
// network for tests and demos.
package comm

import (
	"errors"
	"fmt"
)

// ErrProtocol flags a fatal message-passing inconsistency: a payload
// whose size disagrees with the posted receive, or traffic addressed to a
// rank that does not exist. Indicates a stale or mismatched couple list;
// never recoverable.
var ErrProtocol = errors.New("communication protocol error")

// Communicator provides blocking matched point-to-point message passing
// between mesh partitions. All calls block; callers supply concurrency
// with goroutines (post all receives, post all sends, wait). Messages
// between the same (source, dest) pair match on tag.
type Communicator interface {
	Rank() int
	Size() int
	Send(dest, tag int, data []float64) error
	Recv(source, tag int, data []float64) error
}

// Single is the communicator for single-process runs: rank 0 of 1, with
// no neighbors to talk to.
type Single struct{}

func (Single) Rank() int { return 0 }

func (Single) Size() int { return 1 }

func (Single) Send(dest, tag int, data []float64) error {
	return fmt.Errorf("%w: send to rank %d in a single-rank run", ErrProtocol, dest)
}

func (Single) Recv(source, tag int, data []float64) error {
	return fmt.Errorf("%w: receive from rank %d in a single-rank run", ErrProtocol, source)
}
