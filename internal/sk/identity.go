package sk

import (
	"errors"
	"fmt"
	"strings"

	"safekeep/internal/model"
)

// Identities manages the identities that permission checks and audit
// entries refer to.
type Identities struct {
	database Database
	audit    *AuditLogger
	clock    Clock
	idgen    IDGenerator
}

// NewIdentities creates an Identities service.
func NewIdentities(database Database, audit *AuditLogger, clock Clock, idgen IDGenerator) *Identities {
	return &Identities{
		database: database,
		audit:    audit,
		clock:    clock,
		idgen:    idgen,
	}
}

// Create adds an active identity and audits the creation.
func (s *Identities) Create(actor *model.Identity, username string, superuser bool) (*model.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.ContainsAny(username, " \t\n") {
		return nil, fmt.Errorf("invalid username %q", username)
	}

	existing, err := s.database.FindIdentityByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("checking for existing identity: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("identity %q already exists", username)
	}

	identity := &model.Identity{
		ID:          s.idgen.New(),
		Username:    username,
		IsSuperuser: superuser,
		IsActive:    true,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.database.CreateIdentity(identity); err != nil {
		return nil, fmt.Errorf("creating identity: %w", err)
	}

	s.audit.LogActivity(actor, model.ActionCreate, "identity",
		WithResourceID(identity.ID),
		WithDetails(map[string]any{"username": username, "superuser": superuser}),
	)
	return identity, nil
}

// Bootstrap creates the first superuser. It does nothing and returns
// created=false when any identity already exists.
func (s *Identities) Bootstrap(username string) (identity *model.Identity, created bool, err error) {
	count, err := s.database.CountIdentities()
	if err != nil {
		return nil, false, fmt.Errorf("counting identities: %w", err)
	}
	if count > 0 {
		return nil, false, nil
	}

	identity, err = s.Create(nil, username, true)
	if err != nil {
		return nil, false, err
	}
	return identity, true, nil
}

// Lookup returns the identity with the given username, or ErrNotFound.
func (s *Identities) Lookup(username string) (*model.Identity, error) {
	if username == "" {
		return nil, errors.New("no identity given")
	}
	identity, err := s.database.FindIdentityByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("finding identity %s: %w", username, err)
	}
	if identity == nil {
		return nil, fmt.Errorf("identity %s: %w", username, ErrNotFound)
	}
	return identity, nil
}

// List returns every identity ordered by username.
func (s *Identities) List() ([]*model.Identity, error) {
	identities, err := s.database.ListIdentities()
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	return identities, nil
}
