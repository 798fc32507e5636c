package domain

// Principal is the authenticated caller. Only AdminPrincipal and
// EmployeePrincipal implement it.
type Principal interface {
	ActorID() string
	Tenant() string
	Kind() ActorKind
	sealed()
}

type AdminPrincipal struct {
	AdminID  string
	TenantID string
}

func (p AdminPrincipal) ActorID() string { return p.AdminID }
func (p AdminPrincipal) Tenant() string  { return p.TenantID }
func (p AdminPrincipal) Kind() ActorKind { return ActorAdmin }
func (AdminPrincipal) sealed()           {}

type EmployeePrincipal struct {
	EmployeeID string
	TenantID   string
}

func (p EmployeePrincipal) ActorID() string { return p.EmployeeID }
func (p EmployeePrincipal) Tenant() string  { return p.TenantID }
func (p EmployeePrincipal) Kind() ActorKind { return ActorEmployee }
func (EmployeePrincipal) sealed()           {}
