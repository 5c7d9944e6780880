package bus

import "testing"

func TestChannelName(t *testing.T) {
	got := channelName("ABC123")
	want := "trivion:room:ABC123"
	if got != want {
		t.Fatalf("channelName() = %q, want %q", got, want)
	}
}
