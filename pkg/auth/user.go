// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"slices"

	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/tokens"

	"github.com/sapcc/keystone-auth/pkg/keystone"
	"github.com/sapcc/keystone-auth/pkg/timeutil"
)

// User is the logged-on user of a request, built from the token in the
// session. The zero value is the anonymous user.
type User struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	DomainID       string                `json:"domain_id"`
	DomainName     string                `json:"domain_name"`
	ProjectID      string                `json:"project_id"`
	ProjectName    string                `json:"project_name"`
	Roles          []string              `json:"roles"`
	AuthURL        string                `json:"auth_url"`
	ExpiresAt      string                `json:"expires_at"`
	ServiceCatalog []tokens.CatalogEntry `json:"service_catalog"`
	Token          *keystone.Token       `json:"-"`

	clock *timeutil.Clock
}

// Anonymous returns the user of requests without a valid login
func Anonymous() *User {
	return &User{}
}

// IsAnonymous reports whether the user has no token at all
func (u *User) IsAnonymous() bool {
	return u.Token == nil
}

// IsAuthenticated reports whether the user holds a token that has not expired yet
func (u *User) IsAuthenticated() bool {
	if u.Token == nil || u.clock == nil {
		return false
	}
	return u.clock.CheckTokenExpiration(u.Token.ExpiresAt)
}

// HasRole reports whether the token carries the given role
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

func newUser(token *keystone.Token, catalog []tokens.CatalogEntry, clock *timeutil.Clock) *User {
	return &User{
		ID:             token.User.ID,
		Name:           token.User.Name,
		DomainID:       token.User.Domain.ID,
		DomainName:     token.User.Domain.Name,
		ProjectID:      token.Project.ID,
		ProjectName:    token.Project.Name,
		Roles:          token.RoleNames(),
		AuthURL:        token.AuthURL,
		ExpiresAt:      token.ExpiresAt,
		ServiceCatalog: catalog,
		Token:          token,
		clock:          clock,
	}
}
