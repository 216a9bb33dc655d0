package shared

// Material planning permissions.
const (
	PermMTOView = "mto.view"
	PermMTOEdit = "mto.edit"

	PermInventoryView = "inventory.view"
	PermInventoryEdit = "inventory.edit"

	PermProcurementView = "procurement.view"
	PermProcurementEdit = "procurement.edit"
)

// CoreScopes lists every permission understood by the service.
func CoreScopes() []string {
	return []string{
		PermMTOView,
		PermMTOEdit,
		PermInventoryView,
		PermInventoryEdit,
		PermProcurementView,
		PermProcurementEdit,
	}
}
