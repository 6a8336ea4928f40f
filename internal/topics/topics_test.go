package topics

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"events.user.created", "events.user.created", true},
		{"events.user.created", "events.user.deleted", false},
		{"events.*", "events.user", true},
		{"events.*", "events.user.created", true},
		{"events.*", "events", false},
		{"events.*", "eventsuser", false},
		{"task.*", "task.completed", true},
		{"task.*", "lock.released", false},
		{"*", "anything.at.all", true},
		{"", "events.user", false},
		{"events.*", "", false},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.topic); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.topic, got, c.want)
		}
	}
}

func TestValid(t *testing.T) {
	for pattern, want := range map[string]bool{
		"events.user": true,
		"events.*":    true,
		"*":           true,
		"ev*nts":      false,
		"events*":     false,
		"":            false,
	} {
		if got := Valid(pattern); got != want {
			t.Errorf("Valid(%q) = %v, want %v", pattern, got, want)
		}
	}
}
