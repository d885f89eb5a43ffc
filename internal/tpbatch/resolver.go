package tpbatch

// UnlockState tells whether a learner may open one batch entry.
type UnlockState struct {
	ItemID    string  `json:"item_id"`
	Position  int     `json:"position"`
	Required  bool    `json:"required"`
	Complete  bool    `json:"complete"`
	Unlocked  bool    `json:"unlocked"`
	BlockedBy *string `json:"blocked_by"`
}

// Resolve computes the unlock state of every entry in position order.
// In a sequential batch an entry is unlocked iff its direct prerequisite, if
// any, is complete; only the direct prerequisite is reported as the blocker.
// Non-sequential batches unlock everything.
func Resolve(b Batch, completed map[string]bool) ([]UnlockState, error) {
	if !b.valid {
		return nil, &ConfigError{Reason: "batch was not validated"}
	}

	seen := make(map[string]bool, len(b.entries))
	out := make([]UnlockState, 0, len(b.entries))
	for _, e := range b.entries {
		st := UnlockState{
			ItemID:   e.ItemID,
			Position: e.Position,
			Required: e.Required,
			Complete: completed[e.ItemID],
			Unlocked: true,
		}
		if b.sequential && e.HasPrerequisite() {
			// A prerequisite not yet visited in the scan points forward or to
			// itself, which would make the chain cyclic.
			if !seen[e.Prerequisite] {
				return nil, &ConfigError{ItemID: e.ItemID, Reason: "prerequisite chain is cyclic or points forward"}
			}
			if !completed[e.Prerequisite] {
				blocker := e.Prerequisite
				st.Unlocked = false
				st.BlockedBy = &blocker
			}
		}
		seen[e.ItemID] = true
		out = append(out, st)
	}
	return out, nil
}

// RequiredProgress counts complete required entries.
func RequiredProgress(b Batch, completed map[string]bool) (done, total int) {
	for _, e := range b.entries {
		if !e.Required {
			continue
		}
		total++
		if completed[e.ItemID] {
			done++
		}
	}
	return done, total
}
