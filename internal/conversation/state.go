package conversation

// Phase of a session. A state is always in exactly one phase: gathering while
// the model still needs information, resolved once final SQL is attached.
type Phase int

const (
	Gathering Phase = iota
	Resolved
)

// State accumulates one session's conversation. It is owned exclusively by
// its session; the Store serializes access.
type State struct {
	OriginalQuery      string
	UserFollowups      []string
	AssistantFollowups []string
	PendingSQL         []string
}

func (s *State) Phase() Phase {
	if len(s.PendingSQL) > 0 {
		return Resolved
	}
	return Gathering
}

// clone returns a deep copy so callers never observe later mutations.
func (s *State) clone() State {
	copied := State{OriginalQuery: s.OriginalQuery}
	copied.UserFollowups = append([]string(nil), s.UserFollowups...)
	copied.AssistantFollowups = append([]string(nil), s.AssistantFollowups...)
	copied.PendingSQL = append([]string(nil), s.PendingSQL...)
	return copied
}
