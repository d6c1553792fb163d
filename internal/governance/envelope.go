package governance

import "encoding/json"

// Envelope is the persisted shape of a session: three discrete fields beside
// one serialized document holding everything else. Reload merges the discrete
// fields over the decoded document, so the columns stay authoritative even if
// the document drifts.
type Envelope struct {
	CurrentState       State           `json:"current_state"`
	AbstractionMode    bool            `json:"abstraction_mode"`
	VaguenessSkipCount int             `json:"vagueness_skip_count"`
	Document           json.RawMessage `json:"document"`
}

// Sealer is implemented by each workflow's session data value.
type Sealer interface {
	Seal() (Envelope, error)
}

// Seal packs data into an envelope. The document carries the full value,
// discrete fields included, which keeps the document self-describing.
func Seal(state State, abstraction bool, skipCount int, data any) (Envelope, error) {
	doc, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		CurrentState:       state,
		AbstractionMode:    abstraction,
		VaguenessSkipCount: skipCount,
		Document:           doc,
	}, nil
}

// Open decodes the envelope document into out, then hands back the discrete
// fields for the caller to overlay.
func Open(env Envelope, out any) error {
	if len(env.Document) == 0 {
		return nil
	}
	return json.Unmarshal(env.Document, out)
}
