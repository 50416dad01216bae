// ABOUTME: SteadyClock is the default Clock, backed by the process's monotonic time.Now()
package wire

import (
	"time"

	"github.com/relaycast/relaycast/pkg/audio"
)

// SteadyClock stamps messages using time.Now() relative to its own
// construction time. Two SteadyClocks never agree on an absolute epoch;
// only differences within one instance are meaningful, matching the
// "never derived from wall-clock time" rule.
type SteadyClock struct {
	epoch time.Time
}

// NewSteadyClock returns a clock anchored to the current instant.
func NewSteadyClock() *SteadyClock {
	return &SteadyClock{epoch: time.Now()}
}

func (c *SteadyClock) Now() audio.Timeval {
	return audio.Now(c.epoch)
}
