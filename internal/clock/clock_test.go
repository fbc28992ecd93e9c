package clock

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	c := New()
	before := time.Now()
	got := c.Now()
	if got.Before(before) || got.After(time.Now()) {
		t.Errorf("Now() = %v, outside the call window", got)
	}
}

func TestRealClockNowUTC(t *testing.T) {
	if got := New().NowUTC(); got.Location() != time.UTC {
		t.Errorf("NowUTC() location = %v, want UTC", got.Location())
	}
}

func TestRealClockSince(t *testing.T) {
	past := time.Now().Add(-time.Second)
	if got := New().Since(past); got < time.Second {
		t.Errorf("Since() = %v, want >= 1s", got)
	}
}

func TestMockTime(t *testing.T) {
	start := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	m := NewMock(start)

	if !m.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", m.Now(), start)
	}

	m.Advance(48 * time.Hour)
	want := start.Add(48 * time.Hour)
	if !m.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", m.Now(), want)
	}

	later := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	m.Set(later)
	if !m.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", m.Now(), later)
	}
}

func TestMockNowUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	m := NewMock(time.Date(2026, 3, 9, 12, 0, 0, 0, loc))
	if got := m.NowUTC(); got.Location() != time.UTC {
		t.Errorf("NowUTC() location = %v, want UTC", got.Location())
	}
}

func TestMockSince(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	m := NewMock(now)
	if got := m.Since(now.Add(-time.Hour)); got != time.Hour {
		t.Errorf("Since() = %v, want 1h", got)
	}
}

func TestMockTickerNeverFires(t *testing.T) {
	m := NewMock(time.Now())
	ticker := m.NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
		t.Error("mock ticker should stay silent")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMockConcurrentAccess(t *testing.T) {
	m := NewMock(time.Now())
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			_ = m.Now()
		}
		done <- struct{}{}
	}()
	go func() {
		for i := 0; i < 1000; i++ {
			m.Advance(time.Millisecond)
		}
		done <- struct{}{}
	}()

	<-done
	<-done
}
