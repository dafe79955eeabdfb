package models

import "time"

// Role represents user roles in the system
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleFleetManager     Role = "fleet_manager"
	RoleDispatcher       Role = "dispatcher"
	RoleSafetyOfficer    Role = "safety_officer"
	RoleFinancialAnalyst Role = "financial_analyst"
)

// Actions checked by HasPermission.
const (
	ActionViewFleet         = "view_fleet"
	ActionManageVehicles    = "manage_vehicles"
	ActionManageDrivers     = "manage_drivers"
	ActionDispatchTrips     = "dispatch_trips"
	ActionManageMaintenance = "manage_maintenance"
	ActionManageFuel        = "manage_fuel"
	ActionViewAnalytics     = "view_analytics"
	ActionManageUsers       = "manage_users"
)

// User represents a user in the system
type User struct {
	ID           string     `bson:"_id" json:"id"`
	Username     string     `bson:"username" json:"username"`
	Email        string     `bson:"email" json:"email"`
	PasswordHash string     `bson:"password_hash" json:"-"`
	Role         Role       `bson:"role" json:"role"`
	FirstName    string     `bson:"first_name" json:"first_name"`
	LastName     string     `bson:"last_name" json:"last_name"`
	IsActive     bool       `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleFleetManager, RoleDispatcher, RoleSafetyOfficer, RoleFinancialAnalyst:
		return true
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific action.
// Safety officers are read-only.
func (u *User) HasPermission(action string) bool {
	return RoleAllows(u.Role, action)
}

// RoleAllows is HasPermission for a bare role, as carried in JWT claims.
func RoleAllows(role Role, action string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleFleetManager:
		return action != ActionManageUsers
	case RoleDispatcher:
		return action == ActionViewFleet || action == ActionDispatchTrips
	case RoleFinancialAnalyst:
		return action == ActionViewFleet || action == ActionManageFuel ||
			action == ActionViewAnalytics
	case RoleSafetyOfficer:
		return action == ActionViewFleet
	default:
		return false
	}
}
