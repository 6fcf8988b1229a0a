package server

import "time"

const (
	spamRepeatInterval = 20 * time.Second
	spamMaxRepeat      = 3
	spamCharsPerMinute = 220
	// spamCharInterval is how long a player may type at full speed.
	spamCharInterval = 30 * time.Second
	spamMaxPause     = 90 * time.Second
)

// SpamFilter limits repeated lines and typing speed of one connection.
type SpamFilter struct {
	lastText string
	lastSay  time.Time
	chars    int
	repeats  int
}

// Check records text said at now and reports whether it is spam. The fourth
// identical line within the repeat interval is spam, as is any line that
// pushes the character count over the typing budget.
func (f *SpamFilter) Check(text string, now time.Time) bool {
	pause := now.Sub(f.lastSay)
	if f.lastSay.IsZero() || pause < 0 || pause > spamMaxPause {
		pause = spamMaxPause
	}
	f.chars -= int(int64(spamCharsPerMinute) * int64(pause) / int64(time.Minute))
	if f.chars < 0 {
		f.chars = 0
	}
	f.chars += len(text)

	spam := false
	if text != "" && text == f.lastText && pause < spamRepeatInterval {
		f.repeats++
		spam = f.repeats >= spamMaxRepeat
	} else {
		f.lastText = text
		f.repeats = 0
	}
	f.lastSay = now

	if f.chars > spamCharsPerMinute*int(spamCharInterval/time.Second)/60 {
		spam = true
	}
	return spam
}
