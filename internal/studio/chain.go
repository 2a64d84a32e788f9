package studio

import "fmt"

type ChainIssueType string

const (
	IssueBrokenLink   ChainIssueType = "broken_link"
	IssueDanglingLink ChainIssueType = "dangling_link"
	IssueCycle        ChainIssueType = "cycle"
)

// ChainIssue is one integrity violation in a shot transition chain.
type ChainIssue struct {
	Type      ChainIssueType `json:"type"`
	ShotID    string         `json:"shot_id"`
	RelatedID string         `json:"related_id,omitempty"`
	Cycle     []string       `json:"cycle,omitempty"`
	Message   string         `json:"message"`
}

// ValidateTransitionChain checks previous/next links across shots. Links
// must point at a shot in the set, agree in both directions, and never loop.
// Issues are reported in input order.
func ValidateTransitionChain(shots []*Shot) []ChainIssue {
	byID := make(map[string]*Shot, len(shots))
	for _, s := range shots {
		byID[s.ID] = s
	}

	var issues []ChainIssue
	for _, s := range shots {
		if s.NextShotID != "" {
			next, ok := byID[s.NextShotID]
			switch {
			case !ok:
				issues = append(issues, ChainIssue{
					Type: IssueDanglingLink, ShotID: s.ID, RelatedID: s.NextShotID,
					Message: fmt.Sprintf("shot %s links to missing next shot %s", s.ID, s.NextShotID),
				})
			case next.PreviousShotID != s.ID:
				issues = append(issues, ChainIssue{
					Type: IssueBrokenLink, ShotID: s.ID, RelatedID: next.ID,
					Message: fmt.Sprintf("shot %s has next %s, but %s has previous %q", s.ID, next.ID, next.ID, next.PreviousShotID),
				})
			}
		}
		if s.PreviousShotID != "" {
			prev, ok := byID[s.PreviousShotID]
			switch {
			case !ok:
				issues = append(issues, ChainIssue{
					Type: IssueDanglingLink, ShotID: s.ID, RelatedID: s.PreviousShotID,
					Message: fmt.Sprintf("shot %s links to missing previous shot %s", s.ID, s.PreviousShotID),
				})
			case prev.NextShotID != s.ID:
				issues = append(issues, ChainIssue{
					Type: IssueBrokenLink, ShotID: s.ID, RelatedID: prev.ID,
					Message: fmt.Sprintf("shot %s has previous %s, but %s has next %q", s.ID, prev.ID, prev.ID, prev.NextShotID),
				})
			}
		}
	}

	return append(issues, findCycles(shots, byID)...)
}

// findCycles follows next links from every shot and reports each loop once.
func findCycles(shots []*Shot, byID map[string]*Shot) []ChainIssue {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(shots))

	var issues []ChainIssue
	for _, start := range shots {
		if state[start.ID] != unvisited {
			continue
		}

		var path []string
		for cur, ok := byID[start.ID]; ok; cur, ok = byID[cur.NextShotID] {
			if state[cur.ID] == done {
				break
			}
			if state[cur.ID] == onPath {
				var cycle []string
				for i, id := range path {
					if id == cur.ID {
						cycle = append(cycle, path[i:]...)
						break
					}
				}
				issues = append(issues, ChainIssue{
					Type: IssueCycle, ShotID: cur.ID, Cycle: cycle,
					Message: fmt.Sprintf("shot chain loops back to %s after %d shots", cur.ID, len(cycle)),
				})
				break
			}
			state[cur.ID] = onPath
			path = append(path, cur.ID)
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return issues
}
