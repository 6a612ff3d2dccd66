package models

import "strconv"

// Role is the closed set of actor roles carried in access tokens.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleStaff   Role = "STAFF"
	RoleChef    Role = "CHEF"
	RoleGuest   Role = "GUEST"
)

// StaffRoles are the front-of-house roles allowed to bill and settle.
var StaffRoles = []Role{RoleStaff, RoleManager, RoleAdmin}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff, RoleChef, RoleGuest:
		return true
	}
	return false
}

// IsStaffSide reports whether r is a front-of-house role.
func (r Role) IsStaffSide() bool {
	return r == RoleStaff || r == RoleManager || r == RoleAdmin
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID          string
	Role        Role
	TableNumber int
	GuestID     string
}

// Realtime rooms.
const (
	RoomKitchen = "kitchen"
	RoomStaff   = "staff"
)

// GuestRoom is the room of every guest connection seated at a table.
func GuestRoom(tableNumber int) string {
	return "guest:" + strconv.Itoa(tableNumber)
}
