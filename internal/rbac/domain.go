package rbac

import "github.com/cabinetworks/mto/internal/shared"

// Permission represents an atomic capability.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var descriptions = map[string]string{
	shared.PermMTOView:         "View materials-to-order and their lines",
	shared.PermMTOEdit:         "Create, change and delete materials-to-order",
	shared.PermInventoryView:   "View items and stock history",
	shared.PermInventoryEdit:   "Adjust stock, import tallies and reserve stock",
	shared.PermProcurementView: "View purchase orders and planning views",
	shared.PermProcurementEdit: "Create, order, receive and cancel purchase orders",
}

// Catalog lists every permission understood by the service.
func Catalog() []Permission {
	scopes := shared.CoreScopes()
	out := make([]Permission, 0, len(scopes))
	for _, name := range scopes {
		out = append(out, Permission{Name: name, Description: descriptions[name]})
	}
	return out
}
