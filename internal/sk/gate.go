package sk

import (
	"fmt"

	"safekeep/internal/model"
)

// Gate authorizes identities against the permission vocabulary and manages
// role assignments. Denials are written to the audit log.
type Gate struct {
	database Database
	audit    *AuditLogger
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewGate creates a Gate.
func NewGate(database Database, audit *AuditLogger, logger Logger, clock Clock, idgen IDGenerator) *Gate {
	return &Gate{
		database: database,
		audit:    audit,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// HasPermission reports whether user holds perm. Unauthenticated identities
// hold nothing, superusers hold everything, and everyone else holds the
// union of the permissions of their active roles.
func (g *Gate) HasPermission(user *model.Identity, perm model.Permission) (bool, error) {
	if !user.Authenticated() {
		return false, nil
	}
	if user.IsSuperuser {
		return true, nil
	}

	assignments, err := g.database.ListUserRoles(user.ID, true)
	if err != nil {
		return false, fmt.Errorf("loading roles for %s: %w", user.Username, err)
	}
	for _, ur := range assignments {
		if ur.Role.Permissions.Has(perm) {
			return true, nil
		}
	}
	return false, nil
}

// HasRole reports whether user holds an active assignment of role.
// Superusers hold every role.
func (g *Gate) HasRole(user *model.Identity, role model.RoleName) (bool, error) {
	if !user.Authenticated() {
		return false, nil
	}
	if user.IsSuperuser {
		return true, nil
	}

	assignments, err := g.database.ListUserRoles(user.ID, true)
	if err != nil {
		return false, fmt.Errorf("loading roles for %s: %w", user.Username, err)
	}
	for _, ur := range assignments {
		if ur.Role.Name == role {
			return true, nil
		}
	}
	return false, nil
}

// RequirePermission returns nil if user holds perm. Otherwise it audits a
// permission_denied entry and returns *PermissionDenied. Lookup failures
// deny access and are returned as-is.
func (g *Gate) RequirePermission(user *model.Identity, perm model.Permission, rc *RequestContext) error {
	ok, err := g.HasPermission(user, perm)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	g.audit.LogActivity(user, model.ActionPermissionDenied, "permission",
		WithDetails(map[string]any{"permission": perm.String()}),
		WithSuccess(false),
		WithRequest(rc),
	)
	g.logger.Warn("permission denied", "user", user.DisplayName(), "permission", perm.String())
	return &PermissionDenied{Username: user.DisplayName(), Permission: perm.String()}
}

// RequireRole returns nil if user holds role. Otherwise it audits a
// role_denied entry and returns *PermissionDenied.
func (g *Gate) RequireRole(user *model.Identity, role model.RoleName, rc *RequestContext) error {
	ok, err := g.HasRole(user, role)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	g.audit.LogActivity(user, model.ActionRoleDenied, "role",
		WithDetails(map[string]any{"required_role": string(role)}),
		WithSuccess(false),
		WithRequest(rc),
	)
	g.logger.Warn("role denied", "user", user.DisplayName(), "role", string(role))
	return &PermissionDenied{Username: user.DisplayName(), Role: string(role)}
}

// SeedDefaultRoles creates the built-in roles, or resets the permissions of
// existing ones to the defaults. Running it repeatedly is safe.
func (g *Gate) SeedDefaultRoles() (created, updated int, err error) {
	now := g.clock.Now()
	for _, name := range model.RoleNames() {
		role := &model.Role{
			ID:          g.idgen.New(),
			Name:        name,
			Description: fmt.Sprintf("Default %s role", name),
			Permissions: name.DefaultPermissions(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		isNew, err := g.database.UpsertRole(role)
		if err != nil {
			return created, updated, fmt.Errorf("seeding role %s: %w", name, err)
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	g.logger.Info("default roles seeded", "created", created, "updated", updated)
	return created, updated, nil
}

// AssignRole activates role for user and audits the change as role_change.
func (g *Gate) AssignRole(actor, user *model.Identity, role model.RoleName, rc *RequestContext) (*model.UserRole, error) {
	r, err := g.findRole(role)
	if err != nil {
		return nil, err
	}

	ur, err := g.database.AssignRole(&model.UserRole{
		ID:         g.idgen.New(),
		UserID:     user.ID,
		Role:       *r,
		AssignedBy: identityID(actor),
		AssignedAt: g.clock.Now(),
		IsActive:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("assigning role %s to %s: %w", role, user.Username, err)
	}

	g.audit.LogActivity(actor, model.ActionRoleChange, "user_role",
		WithResourceID(user.ID),
		WithDetails(map[string]any{"action": "assign", "role": string(role), "user": user.Username}),
		WithRequest(rc),
	)
	return ur, nil
}

// RevokeRole deactivates role for user and audits the change as role_change.
// Revoking a role the user does not hold returns ErrNotFound.
func (g *Gate) RevokeRole(actor, user *model.Identity, role model.RoleName, rc *RequestContext) error {
	r, err := g.findRole(role)
	if err != nil {
		return err
	}

	revoked, err := g.database.DeactivateUserRole(user.ID, r.ID)
	if err != nil {
		return fmt.Errorf("revoking role %s from %s: %w", role, user.Username, err)
	}
	if !revoked {
		return fmt.Errorf("%s does not hold role %s: %w", user.Username, role, ErrNotFound)
	}

	g.audit.LogActivity(actor, model.ActionRoleChange, "user_role",
		WithResourceID(user.ID),
		WithDetails(map[string]any{"action": "revoke", "role": string(role), "user": user.Username}),
		WithRequest(rc),
	)
	return nil
}

// UserRoles returns the user's assignments, including inactive ones.
func (g *Gate) UserRoles(user *model.Identity) ([]*model.UserRole, error) {
	roles, err := g.database.ListUserRoles(user.ID, false)
	if err != nil {
		return nil, fmt.Errorf("listing roles for %s: %w", user.Username, err)
	}
	return roles, nil
}

func (g *Gate) findRole(name model.RoleName) (*model.Role, error) {
	r, err := g.database.FindRoleByName(name)
	if err != nil {
		return nil, fmt.Errorf("finding role %s: %w", name, err)
	}
	if r == nil {
		return nil, fmt.Errorf("role %s (run role seeding first): %w", name, ErrNotFound)
	}
	return r, nil
}
