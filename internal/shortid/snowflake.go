package shortid

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Snowflake layout: 41 bits of milliseconds since the epoch, 10 bits of
// machine id, 12 bits of per-millisecond sequence. IDs from different
// processes never collide as long as machine ids differ.
const (
	// snowflakeEpoch is the custom epoch in Unix milliseconds
	// (2011-03-13T07:06:40Z). Changing it invalidates previously issued ids.
	snowflakeEpoch int64 = 1300000000000

	machineBits  = 10
	sequenceBits = 12

	maxMachineID = (1 << machineBits) - 1
	maxSequence  = (1 << sequenceBits) - 1

	machineShift   = sequenceBits
	timestampShift = sequenceBits + machineBits
)

var (
	// ErrInvalidMachineID is returned for machine ids outside 0..1023.
	ErrInvalidMachineID = errors.New("machine ID must be between 0 and 1023")

	// ErrClockMovedBackwards is returned when the wall clock runs behind the
	// timestamp of the last issued id. Generating would risk duplicates.
	ErrClockMovedBackwards = errors.New("clock moved backwards, refusing to generate ID")
)

// Snowflake generates time-ordered 64-bit ids without coordination.
type Snowflake struct {
	mu            sync.Mutex
	machineID     int64
	sequence      int64
	lastTimestamp int64
}

// NewSnowflake creates a generator bound to the given machine id.
func NewSnowflake(machineID int64) (*Snowflake, error) {
	if machineID < 0 || machineID > maxMachineID {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMachineID, machineID)
	}
	return &Snowflake{machineID: machineID}, nil
}

// Next returns the next id. Safe for concurrent use.
func (s *Snowflake) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := time.Now().UnixMilli()
	if ts < s.lastTimestamp {
		return 0, fmt.Errorf("%w: last=%d current=%d", ErrClockMovedBackwards, s.lastTimestamp, ts)
	}

	if ts == s.lastTimestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// Sequence exhausted within this millisecond; spin to the next one.
			for ts <= s.lastTimestamp {
				time.Sleep(10 * time.Microsecond)
				ts = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastTimestamp = ts

	id := ((ts - snowflakeEpoch) << timestampShift) |
		(s.machineID << machineShift) |
		s.sequence
	return id, nil
}
