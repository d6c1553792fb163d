package governance

// Roster names which board partition an interrogation is walking. It is a
// first-class session field; engines never infer it from response counts.
type Roster string

const (
	RosterCore   Roster = "core"
	RosterGrowth Roster = "growth"
)

func (r Roster) Valid() bool {
	return r == RosterCore || r == RosterGrowth
}
