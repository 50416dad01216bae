// ABOUTME: NTP-style clock synchronization between client and server steady clocks
// ABOUTME: Adapted from the teacher's internal/sync.ClockSync, generalized from raw int64 micros to audio.Timeval
package timesync

import (
	"log"
	"sync"
	"time"

	"github.com/relaycast/relaycast/pkg/audio"
)

const microsecond = time.Microsecond

// Quality reflects how trustworthy the current offset estimate is.
type Quality int

const (
	QualityLost Quality = iota
	QualityDegraded
	QualityGood
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

const (
	maxAcceptableRTTMicros = 100_000 // discard samples with more contention than this
	goodRTTMicros          = 50_000
	staleAfter             = 5 * time.Second
	smoothingRate          = 0.1 // weight given to each new sample
)

// ClockSync maintains the smoothed offset between this side's steady
// clock and the remote side's, from a rolling series of Time message
// round trips.
type ClockSync struct {
	mu sync.RWMutex

	offsetMicros    int64
	rawOffsetMicros int64
	rttMicros       int64
	quality         Quality
	lastSync        time.Time
	sampleCount     int
}

// NewClockSync returns a ClockSync with no samples yet (quality Lost).
func NewClockSync() *ClockSync {
	return &ClockSync{quality: QualityLost}
}

// ProcessSample feeds one Time message round trip: t1 is when this side
// sent the request, t2/t3 are the remote side's receive/send
// timestamps echoed back, t4 is when this side received the response.
func (c *ClockSync) ProcessSample(t1, t2, t3, t4 audio.Timeval) {
	rtt, offset := calculateOffset(t1.Micros(), t2.Micros(), t3.Micros(), t4.Micros())

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rttMicros = rtt
	c.rawOffsetMicros = offset
	c.lastSync = time.Now()

	if rtt > maxAcceptableRTTMicros {
		log.Printf("timesync: discarding sample, rtt %dus exceeds %dus", rtt, maxAcceptableRTTMicros)
		return
	}

	if c.sampleCount == 0 {
		c.offsetMicros = offset
	} else {
		c.offsetMicros = int64(float64(c.offsetMicros)*(1-smoothingRate) + float64(offset)*smoothingRate)
	}
	c.sampleCount++

	if rtt < goodRTTMicros {
		c.quality = QualityGood
	} else {
		c.quality = QualityDegraded
	}
}

// calculateOffset computes NTP-style round-trip time and clock offset
// from the four timestamps of one round trip.
func calculateOffset(t1, t2, t3, t4 int64) (rtt, offset int64) {
	rtt = (t4 - t1) - (t3 - t2)
	offset = ((t2 - t1) + (t3 - t4)) / 2
	return
}

// Offset returns the current smoothed offset in microseconds; positive
// means the remote clock runs ahead of ours.
func (c *ClockSync) Offset() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offsetMicros
}

// Stats returns the current offset, last round-trip time, and quality.
func (c *ClockSync) Stats() (offsetMicros, rttMicros int64, quality Quality) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offsetMicros, c.rttMicros, c.quality
}

// CheckQuality downgrades quality to Lost if no sample has landed
// recently, independent of ProcessSample being called.
func (c *ClockSync) CheckQuality() Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sampleCount == 0 || time.Since(c.lastSync) > staleAfter {
		c.quality = QualityLost
	}
	return c.quality
}

// ToLocal converts a remote steady-clock timestamp into our own steady
// clock's frame of reference using the current offset.
func (c *ClockSync) ToLocal(remote audio.Timeval) audio.Timeval {
	offset := c.Offset()
	localMicros := remote.Micros() - offset
	return audio.FromDuration(time.Duration(localMicros) * microsecond)
}
