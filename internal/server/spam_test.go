package server

import (
	"strings"
	"testing"
	"time"
)

func TestSpamFourthRepeat(t *testing.T) {
	var f SpamFilter
	now := time.Unix(1000, 0)
	for i := 1; i <= 5; i++ {
		got := f.Check("gg", now)
		if want := i >= 4; got != want {
			t.Errorf("line %d: spam = %v, want %v", i, got, want)
		}
		now = now.Add(time.Second)
	}

	// A different line resets the repeat count.
	if f.Check("nice", now) {
		t.Error("new line flagged as spam")
	}
}

func TestSpamRepeatAfterInterval(t *testing.T) {
	var f SpamFilter
	now := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		f.Check("gg", now)
	}
	if f.Check("gg", now.Add(spamRepeatInterval)) {
		t.Error("repeat after the interval flagged as spam")
	}
}

func TestSpamCharacterBudget(t *testing.T) {
	budget := spamCharsPerMinute * int(spamCharInterval/time.Second) / 60
	line := strings.Repeat("a", 100)
	other := strings.Repeat("b", 100)

	var f SpamFilter
	now := time.Unix(1000, 0)
	if f.Check(line, now) {
		t.Fatal("first line flagged as spam")
	}
	if f.chars != len(line) {
		t.Errorf("chars = %d after first line, want %d", f.chars, len(line))
	}
	if !f.Check(other, now) {
		t.Errorf("%d chars at once passed a budget of %d", 2*len(line), budget)
	}

	// Typing slowly stays within the budget.
	var slow SpamFilter
	for i := 0; i < 10; i++ {
		if slow.Check(strings.Repeat("c", 50)+string(rune('a'+i)), now.Add(time.Duration(i)*20*time.Second)) {
			t.Fatalf("line %d flagged at a slow pace", i)
		}
	}
}
