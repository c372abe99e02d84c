package identity

import (
	"sync"
	"time"
)

var (
	timeMu   sync.RWMutex
	fakeTime *time.Time
)

// timeNow returns the current time, or the fake time installed by tests.
func timeNow() time.Time {
	timeMu.RLock()
	defer timeMu.RUnlock()
	if fakeTime != nil {
		return *fakeTime
	}
	return time.Now()
}

// setFakeTime overrides timeNow until the returned cleanup is called.
func setFakeTime(t time.Time) func() {
	timeMu.Lock()
	defer timeMu.Unlock()
	fakeTime = &t
	return func() {
		timeMu.Lock()
		defer timeMu.Unlock()
		fakeTime = nil
	}
}
