// Package mock provides a test double for the wake.Detector interface.
package mock

import (
	"sync"

	"github.com/groovi/groovi/pkg/provider/wake"
)

var _ wake.Detector = (*Detector)(nil)

// Detector reports a hit according to Func, or else pops Queue, or else
// returns Default.
type Detector struct {
	mu sync.Mutex

	Queue   []bool
	Default bool
	Func    func(chunk []byte) bool
	Err     error

	calls  int
	resets int
}

// Detect implements wake.Detector.
func (d *Detector) Detect(chunk []byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.Err != nil {
		return false, d.Err
	}
	if d.Func != nil {
		return d.Func(chunk), nil
	}
	if len(d.Queue) > 0 {
		hit := d.Queue[0]
		d.Queue = d.Queue[1:]
		return hit, nil
	}
	return d.Default, nil
}

// Reset implements wake.Detector.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
}

// CallCount returns the number of Detect calls.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// ResetCount returns the number of Reset calls.
func (d *Detector) ResetCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}
