package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := NewFakeClock(start)

	require.Equal(t, start, fake.Now())
	require.Equal(t, start.Add(time.Minute), fake.Advance(time.Minute))
	require.Equal(t, start.Add(time.Minute), fake.Now())
}

func TestFakeClockSetNow(t *testing.T) {
	fake := NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	loc := time.FixedZone("CET", 3600)
	fake.SetNow(time.Date(2026, 6, 1, 13, 0, 0, 0, loc))

	require.Equal(t, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), fake.Now())
}

func TestFakeClockConcurrentReaders(t *testing.T) {
	fake := NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = fake.Now()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		fake.Advance(time.Second)
	}
	wg.Wait()

	require.Equal(t, time.Date(2026, 3, 1, 12, 1, 40, 0, time.UTC), fake.Now())
}
