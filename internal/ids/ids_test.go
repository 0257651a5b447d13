package ids

import (
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	id := NewAt(at)
	if !Valid(id) {
		t.Fatalf("Valid(%q)=false", id)
	}
	got, err := Time(id)
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("Time()=%v, want %v", got, at)
	}
	if Valid("not-an-id") {
		t.Fatal("expected invalid id")
	}
}
