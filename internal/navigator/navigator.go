// Package navigator walks the parent chain of an instance tree to locate an
// ancestor playing a given role, such as the authentication instance the
// datastore harvests its token from.
package navigator

import "github.com/vk/assembly/internal/model"

// Closest returns the nearest instance with the given role, starting from
// the instance itself and following parent references upward. It returns
// nil when no ancestor carries the role.
func Closest(inst *model.Instance, role string) *model.Instance {
	for cur := inst; cur != nil; cur = cur.Parent {
		if cur.Role() == role {
			return cur
		}
	}
	return nil
}
