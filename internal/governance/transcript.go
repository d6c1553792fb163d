package governance

import "time"

// Entry is one question/answer record. The transcript is append-only; entries
// are never edited after being recorded.
type Entry struct {
	State    State     `json:"state"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Vague    bool      `json:"vague,omitempty"`
	Skipped  bool      `json:"skipped,omitempty"`
	At       time.Time `json:"at"`
}

// Transcript is the ordered record of everything said during a session.
type Transcript []Entry

// Append returns a new transcript with e added. The receiver is not mutated;
// transitions over session data stay pure.
func (t Transcript) Append(e Entry) Transcript {
	out := make(Transcript, 0, len(t)+1)
	out = append(out, t...)
	out = append(out, e)
	return out
}

// Last returns the most recent entry.
func (t Transcript) Last() (Entry, bool) {
	if len(t) == 0 {
		return Entry{}, false
	}
	return t[len(t)-1], true
}
