package paths

import (
	"strings"

	"github.com/hazyhaar/cssregression/cssregression/internal/model"
)

// ForEntity returns the variables every entity-scoped template can use:
// site, entityCategory and entityId. site is the catalog folder name as is,
// so ${entityTemplate} always lands inside the entity's own folder.
func ForEntity(site string, id *model.EntityID) Vars {
	return Vars{
		"site":           site,
		"entityCategory": id.Category,
		"entityId":       id.Name,
	}
}

// Urlify lowercases s and replaces whitespace runs with a dash. Property
// keys use it; paths do not.
func Urlify(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}
