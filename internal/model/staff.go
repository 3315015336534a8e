package model

import "time"

// Staff roles.  EMPLOYEE covers register operators; MANAGER may
// additionally apply override room transitions.
const (
    RoleEmployee = "EMPLOYEE"
    RoleManager  = "MANAGER"
)

// Staff represents a register or back-office operator.  Staff are
// provisioned by managers; this service authenticates them with a
// numeric PIN and never exposes the hash.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name shown on the register.
//  Role      – EMPLOYEE or MANAGER.
//  PinHash   – bcrypt hash of the login PIN.
//  CreatedAt – creation timestamp.
type Staff struct {
    ID        uint64    // staff.id
    Name      string    // staff.name
    Role      string    // staff.role
    PinHash   string    // staff.pin_hash
    CreatedAt time.Time // staff.created_at
}
