// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"context"

	policy "github.com/databus23/goslo.policy"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/tokens"

	"github.com/sapcc/go-bits/logg"
)

//go:generate mockgen -destination=mock_keystone/mock_driver.go -package=mock_keystone github.com/sapcc/keystone-auth/pkg/keystone Driver

// Driver is an interface that wraps the identity service calls needed by the web login
type Driver interface {
	// Regions lists the configured login regions
	Regions() []Region
	// ResolveRegion maps the region field of a login form to an auth URL
	ResolveRegion(region string) (string, bool)
	// Authenticate logs on with username and password and returns a token scoped to a default project
	Authenticate(ctx context.Context, credentials Credentials) (*Token, AuthenticationError)
	// SwitchProject re-scopes the given token to another project
	SwitchProject(ctx context.Context, token *Token, projectID string) (*Token, AuthenticationError)
	// AvailableProjects lists the enabled projects the token's user may scope to
	AvailableProjects(ctx context.Context, token *Token) ([]Project, AuthenticationError)
	// Revoke invalidates the token
	Revoke(ctx context.Context, token *Token) error
}

// Credentials holds the contents of a login form
type Credentials struct {
	Username       string
	Password       string
	UserDomainName string
	Region         string
}

// Region is a named identity endpoint users can log on to
type Region struct {
	Name    string `json:"name" mapstructure:"name"`
	AuthURL string `json:"auth_url" mapstructure:"auth_url"`
}

// Project is an authorization scope a token can be bound to
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DomainID    string `json:"domain_id"`
	Description string `json:"description,omitempty"`
}

// Token combines all parts of a create-token result into a single struct.
// It replaces the need to call multiple various Extract...() methods on a
// CreateResult to collect all the bits and pieces
type Token struct {
	ID        string                `json:"-"`
	AuthURL   string                `json:"auth_url"`
	ExpiresAt string                `json:"expires_at"`
	User      TokenThingInDomain    `json:"user"`
	Project   TokenThingInDomain    `json:"project"`
	Roles     []TokenThing          `json:"roles"`
	Catalog   []tokens.CatalogEntry `json:"catalog"`
}

// TokenThing is an OpenStack resource identifier
type TokenThing struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TokenThingInDomain is a qualified resource identifier
type TokenThingInDomain struct {
	TokenThing
	Domain TokenThing `json:"domain"`
}

// RoleNames returns the names of the roles on the token
func (t *Token) RoleNames() []string {
	names := make([]string, 0, len(t.Roles))
	for _, role := range t.Roles {
		names = append(names, role.Name)
	}
	return names
}

// EndpointURL looks up the URL of a service in the token's catalog. An empty
// region matches any region. The result is empty when nothing matches.
func (t *Token) EndpointURL(serviceType, iface, region string) string {
	for _, entry := range t.Catalog {
		if entry.Type != serviceType {
			continue
		}
		for _, ep := range entry.Endpoints {
			if ep.Interface == iface && (region == "" || ep.Region == region || ep.RegionID == region) {
				return ep.URL
			}
		}
	}
	return ""
}

// ToContext converts the token into a databus23 policy context
func (t *Token) ToContext() policy.Context {
	c := policy.Context{
		Roles: t.RoleNames(),
		Auth: map[string]string{
			"user_id":             t.User.ID,
			"user_name":           t.User.Name,
			"user_domain_id":      t.User.Domain.ID,
			"user_domain_name":    t.User.Domain.Name,
			"project_id":          t.Project.ID,
			"project_name":        t.Project.Name,
			"project_domain_id":   t.Project.Domain.ID,
			"project_domain_name": t.Project.Domain.Name,
			"token-expiry":        t.ExpiresAt,
		},
		Request: map[string]string{
			"user_id":    t.User.ID,
			"project_id": t.Project.ID,
		},
		Logger: func(format string, args ...any) {
			logg.Debug(format, args...)
		},
	}
	for key, value := range c.Auth {
		if value == "" {
			delete(c.Auth, key)
		}
	}

	return c
}

// abbreviate returns the first quarter of a token for use in log messages
func abbreviate(tokenID string) string {
	return tokenID[:len(tokenID)/4] + "..."
}
