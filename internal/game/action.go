package game

import "fmt"

// Action represents a player action kind
type Action int

const (
	Fold Action = iota
	Check
	Call
	Raise
	AllIn
)

// String returns the wire form of the action
func (a Action) String() string {
	switch a {
	case Fold:
		return "fold"
	case Check:
		return "check"
	case Call:
		return "call"
	case Raise:
		return "raise"
	case AllIn:
		return "allin"
	default:
		return "unknown"
	}
}

// ParseAction decodes the wire form of an action kind.
func ParseAction(s string) (Action, error) {
	switch s {
	case "fold":
		return Fold, nil
	case "check":
		return Check, nil
	case "call":
		return Call, nil
	case "raise":
		return Raise, nil
	case "allin", "all-in":
		return AllIn, nil
	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrMalformed, s)
	}
}

// MarshalText encodes the action for event payloads
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes the action from event payloads
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
