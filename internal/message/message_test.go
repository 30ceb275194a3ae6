package message

import (
	"fmt"
	"testing"
	"time"
)

// mockBroadcaster records every broadcast.
type mockBroadcaster struct {
	channels []string
	payloads []any
}

func (m *mockBroadcaster) Broadcast(channel string, payload any) {
	m.channels = append(m.channels, channel)
	m.payloads = append(m.payloads, payload)
}

func TestLog_AppendOldestFirst(t *testing.T) {
	l := NewLog(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		l.Append(Message{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Severity:  SeverityInfo,
			Origin:    "ccd0",
			Text:      fmt.Sprintf("line %d", i),
		})
	}

	got := l.All()
	if len(got) != 3 {
		t.Fatalf("len(All()) = %d, want 3", len(got))
	}
	for i, want := range []string{"line 2", "line 3", "line 4"} {
		if got[i].Text != want {
			t.Errorf("All()[%d].Text = %q, want %q", i, got[i].Text, want)
		}
	}
}

func TestLog_DefaultCapacity(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < 100; i++ {
		l.Add(SeverityDebug, "centrald", "tick")
	}
	if l.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", l.Len(), DefaultCapacity)
	}
}

func TestLog_AddUsesClockAndBroadcasts(t *testing.T) {
	fixed := time.Date(2026, 10, 18, 22, 0, 0, 0, time.UTC)
	b := &mockBroadcaster{}

	l := NewLog(5)
	l.SetClock(func() time.Time { return fixed })
	l.SetBroadcaster(b)
	l.Add(SeverityError, "dome", "motor stalled")

	msgs := l.All()
	if len(msgs) != 1 || !msgs[0].Timestamp.Equal(fixed) {
		t.Fatalf("All() = %+v", msgs)
	}
	if len(b.channels) != 1 || b.channels[0] != BroadcastChannel {
		t.Fatalf("broadcasts = %v", b.channels)
	}
	if m, ok := b.payloads[0].(Message); !ok || m.Text != "motor stalled" {
		t.Errorf("broadcast payload = %#v", b.payloads[0])
	}
}
