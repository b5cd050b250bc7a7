package models

import (
	"sort"
	"time"
)

// PlateConflict lists the sessions that share one plate while more than one of them is
// active. Sessions are ordered oldest entry first.
type PlateConflict struct {
	Plate    string    `json:"plate"`
	Sessions []Session `json:"sessions"`
}

// SessionIDs returns the ids in display order.
func (c PlateConflict) SessionIDs() []string {
	ids := make([]string, 0, len(c.Sessions))
	for _, s := range c.Sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

// PendingRegisterConflict keeps a registration that failed with PLATE_ALREADY_ACTIVE so
// the operator can delete the stale session and retry with the exact same arguments.
type PendingRegisterConflict struct {
	ID         string          `json:"id"`
	Request    RegisterRequest `json:"request"`
	Plate      string          `json:"plate"`
	Candidates []Session       `json:"candidates"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DetectPlateConflicts groups sessions by plate and keeps plates holding more than one
// active session. Only active sessions are implicated.
func DetectPlateConflicts(sessions []Session) []PlateConflict {
	byPlate := make(map[string][]Session)
	for _, s := range sessions {
		if !s.IsActive() || s.Plate == "" {
			continue
		}
		key := NormalizePlate(s.Plate)
		byPlate[key] = append(byPlate[key], s)
	}

	conflicts := make([]PlateConflict, 0)
	for plate, group := range byPlate {
		if len(group) < 2 {
			continue
		}
		conflicts = append(conflicts, PlateConflict{Plate: plate, Sessions: group})
	}
	SortConflicts(conflicts)
	return conflicts
}

// SortConflicts orders sessions oldest entry first inside each conflict, then conflicts
// by their oldest session.
func SortConflicts(conflicts []PlateConflict) {
	for i := range conflicts {
		group := conflicts[i].Sessions
		sort.SliceStable(group, func(a, b int) bool {
			if group[a].EntryTime.Equal(group[b].EntryTime) {
				return group[a].ID < group[b].ID
			}
			return group[a].EntryTime.Before(group[b].EntryTime)
		})
	}
	sort.SliceStable(conflicts, func(a, b int) bool {
		ta, tb := oldestEntry(conflicts[a]), oldestEntry(conflicts[b])
		if ta.Equal(tb) {
			return conflicts[a].Plate < conflicts[b].Plate
		}
		return ta.Before(tb)
	})
}

func oldestEntry(c PlateConflict) time.Time {
	if len(c.Sessions) == 0 {
		return time.Time{}
	}
	return c.Sessions[0].EntryTime
}
