package entity

// Acciones controladas por capacidad.
const (
	ActionManageCustomers  = "manage_customers"
	ActionCreateInvoices   = "create_invoices"
	ActionValidateInvoices = "validate_invoices"
	ActionSubmitTTN        = "submit_ttn"
)

// Roles con todas las capacidades.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Membership pertenencia de un usuario a una empresa con sus permisos.
type Membership struct {
	CompanyID           string
	UserID              string
	Role                string
	IsActive            bool
	CanManageCustomers  bool
	CanCreateInvoices   bool
	CanValidateInvoices bool
	CanSubmitTTN        bool
}

// Allows evalúa una acción sobre la pertenencia (sin permisos de grupo).
func (m *Membership) Allows(action string) bool {
	if m == nil || !m.IsActive {
		return false
	}
	if m.Role == RoleOwner || m.Role == RoleAdmin {
		return true
	}
	switch action {
	case ActionManageCustomers:
		return m.CanManageCustomers
	case ActionCreateInvoices:
		return m.CanCreateInvoices
	case ActionValidateInvoices:
		return m.CanValidateInvoices
	case ActionSubmitTTN:
		return m.CanSubmitTTN
	}
	return false
}
