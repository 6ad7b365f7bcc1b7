// Package types defines the core data structures of the local review
// instance that gimport writes into.
package types

import (
	"strings"
	"time"
)

// Project is a target-side project. Parent is empty only for the root
// project.
type Project struct {
	Name        string            `json:"name"`
	Parent      string            `json:"parent,omitempty"`
	Description string            `json:"description,omitempty"`
	State       ProjectState      `json:"state"`
	Config      map[string]string `json:"config,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ProjectState mirrors the review service's project states.
type ProjectState string

const (
	ProjectActive   ProjectState = "active"
	ProjectReadOnly ProjectState = "read-only"
	ProjectHidden   ProjectState = "hidden"
)

// InheritedConfigPrefix marks project config keys that children inherit.
const InheritedConfigPrefix = "inherit."

// IsInheritable reports whether a config key propagates to child projects.
func IsInheritable(key string) bool {
	return strings.HasPrefix(key, InheritedConfigPrefix)
}

// Account is a local user account.
type Account struct {
	ID           int       `json:"id"`
	Username     string    `json:"username,omitempty"`
	FullName     string    `json:"full_name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Group is a local account group. UUID is copied verbatim from the source
// instance so identity survives the migration; ID is the local surrogate key.
type Group struct {
	ID           int       `json:"id"`
	UUID         string    `json:"uuid"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	VisibleToAll bool      `json:"visible_to_all"`
	OwnerUUID    string    `json:"owner_uuid"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsSelfOwned reports whether the group owns itself.
func (g *Group) IsSelfOwned() bool {
	return g.OwnerUUID == "" || g.OwnerUUID == g.UUID
}

// ImportParams is the non-secret part of an import request. It is what the
// import lock persists for later inspection and resume.
type ImportParams struct {
	From   string `json:"from"`
	User   string `json:"user,omitempty"`
	Parent string `json:"parent,omitempty"`
}
