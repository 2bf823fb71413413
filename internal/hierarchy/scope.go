package hierarchy

import "github.com/gastransit/pipeledger/internal/models"

// VisibleIDs computes the set of department ids a user may see or act on.
// The second return value is false for admins, meaning no filter applies.
// Managers see their department's whole branch from the root down;
// employees see only the subtree below their own department. A manager or
// employee without a department sees nothing.
func (t *Tree) VisibleIDs(role models.Role, departmentID *uint64) ([]uint64, bool) {
	switch role {
	case models.RoleAdmin:
		return nil, false
	case models.RoleManager:
		if departmentID == nil || !t.Contains(*departmentID) {
			return []uint64{}, true
		}
		root, err := t.Root(*departmentID)
		if err != nil {
			return []uint64{}, true
		}
		return collect(t.Descendants(root, true)), true
	case models.RoleEmployee:
		if departmentID == nil || !t.Contains(*departmentID) {
			return []uint64{}, true
		}
		return collect(t.Descendants(*departmentID, true)), true
	default:
		return []uint64{}, true
	}
}

func collect(seq func(func(uint64) bool)) []uint64 {
	out := []uint64{}
	seq(func(id uint64) bool {
		out = append(out, id)
		return true
	})
	return out
}
