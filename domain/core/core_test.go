package core

import (
	"testing"
	"time"
)

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	if a.IsEmpty() || b.IsEmpty() {
		t.Fatal("generated id is empty")
	}
	if a == b {
		t.Error("consecutive ids collided")
	}
}

func TestParseConversationID(t *testing.T) {
	if _, err := ParseConversationID("  "); err == nil {
		t.Error("blank conversation id should be rejected")
	}
	id, err := ParseConversationID("conv-1")
	if err != nil {
		t.Fatalf("ParseConversationID failed: %v", err)
	}
	if id.String() != "conv-1" {
		t.Errorf("id = %q", id.String())
	}
}

func TestEpochMillisRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	ts := NewTimestamp(now)
	if got := FromEpochMillis(ts.EpochMillis()).Time(); !got.Equal(now) {
		t.Errorf("round trip = %v, want %v", got, now)
	}
}

func TestIsInputError(t *testing.T) {
	if !IsInputError(ErrEmptyUtterance) || !IsInputError(ErrNonMonotonicID) {
		t.Error("sentinels not recognized as input errors")
	}
	if IsInputError(nil) {
		t.Error("nil is not an input error")
	}
}
