package sync

import "time"

// Clock supplies the wall-clock timestamps used for conflict comparison and
// cursor stamping. Injectable so tests can run with synthetic time.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) NowMillis() int64 { return time.Now().UnixMilli() }
