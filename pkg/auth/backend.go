// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package auth turns login forms into Keystone logins, keeps the resulting
// scoped token in the session and resolves the current user of a request from
// that token.
package auth

import (
	"context"
	"strings"

	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/tokens"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/keystone-auth/pkg/keystone"
	"github.com/sapcc/keystone-auth/pkg/session"
	"github.com/sapcc/keystone-auth/pkg/timeutil"
)

// LoginForm holds the fields of a submitted login form
type LoginForm struct {
	Username       string
	Password       string
	Region         string
	UserDomainName string
}

// Backend connects the session with the identity service
type Backend struct {
	driver keystone.Driver
	clock  *timeutil.Clock
}

// NewBackend creates a backend
func NewBackend(driver keystone.Driver, clock *timeutil.Clock) *Backend {
	return &Backend{driver: driver, clock: clock}
}

// Driver returns the identity service driver
func (b *Backend) Driver() keystone.Driver {
	return b.driver
}

// Login authenticates the form's credentials and stores the scoped token in
// the session. The session gets a new ID on success.
func (b *Backend) Login(ctx context.Context, sess *session.Session, form LoginForm) (*User, keystone.AuthenticationError) {
	token, authErr := b.driver.Authenticate(ctx, keystone.Credentials{
		Username:       strings.TrimSpace(form.Username),
		Password:       form.Password,
		UserDomainName: strings.TrimSpace(form.UserDomainName),
		Region:         form.Region,
	})
	if authErr != nil {
		return nil, authErr
	}
	if !b.clock.CheckTokenExpiration(token.ExpiresAt) {
		return nil, keystone.NewAuthenticationError(keystone.StatusNotAvailable, "identity service issued an expired token (expires_at: %q)", token.ExpiresAt)
	}

	sess.Clear()
	sess.Cycle()
	sess.Set(session.KeyUserID, token.User.ID)
	sess.Set(session.KeyRegion, token.AuthURL)
	b.storeToken(sess, token)

	logg.Debug("session %s... belongs to user %s now", sess.ID()[:8], token.User.ID)
	return newUser(token, token.Catalog, b.clock), nil
}

// SwitchProject re-scopes the session's token to projectID and updates the session
func (b *Backend) SwitchProject(ctx context.Context, sess *session.Session, projectID string) (*User, keystone.AuthenticationError) {
	user := b.GetUser(sess)
	if !user.IsAuthenticated() {
		return nil, keystone.NewAuthenticationError(keystone.StatusMissingCredentials, "not logged in")
	}

	token, authErr := b.driver.SwitchProject(ctx, user.Token, projectID)
	if authErr != nil {
		return nil, authErr
	}
	if token.User.ID != user.ID {
		return nil, keystone.NewAuthenticationError(keystone.StatusWrongCredentials, "rescoped token belongs to user %s instead of %s", token.User.ID, user.ID)
	}

	b.storeToken(sess, token)
	logg.Info("user %s switched from project %s to %s", user.ID, user.ProjectID, token.Project.ID)
	return newUser(token, token.Catalog, b.clock), nil
}

// AvailableProjects lists the projects the current user may switch to
func (b *Backend) AvailableProjects(ctx context.Context, user *User) ([]keystone.Project, keystone.AuthenticationError) {
	if user.Token == nil {
		return nil, keystone.NewAuthenticationError(keystone.StatusMissingCredentials, "not logged in")
	}
	return b.driver.AvailableProjects(ctx, user.Token)
}

// Logout revokes the session's token. Revocation failures are logged only,
// the caller destroys the session regardless.
func (b *Backend) Logout(ctx context.Context, sess *session.Session) {
	value, ok := sess.Get(session.KeyToken)
	if !ok {
		return
	}
	token, ok := value.(*keystone.Token)
	if !ok {
		logg.Info("WARNING: session %s... holds no valid token, nothing to revoke", sess.ID()[:8])
		return
	}
	if err := b.driver.Revoke(ctx, token); err != nil {
		logg.Info("WARNING: token revocation on logout failed: %s", err.Error())
	}
}

// GetUser builds the user from the session. Missing or inconsistent session
// data and expired tokens yield the anonymous user.
func (b *Backend) GetUser(sess *session.Session) *User {
	userID := sess.GetString(session.KeyUserID)
	value, ok := sess.Get(session.KeyToken)
	if userID == "" || !ok {
		return Anonymous()
	}
	token, ok := value.(*keystone.Token)
	if !ok || token.User.ID != userID || token.Project.ID != sess.GetString(session.KeyTenantID) {
		logg.Info("WARNING: session %s... holds inconsistent login data", sess.ID()[:8])
		return Anonymous()
	}

	catalog, _ := sess.Get(session.KeyServiceCatalog)
	entries, _ := catalog.([]tokens.CatalogEntry)
	user := newUser(token, entries, b.clock)
	if !user.IsAuthenticated() {
		logg.Debug("token of user %s has expired (expires_at: %q)", userID, token.ExpiresAt)
		return Anonymous()
	}
	return user
}

func (b *Backend) storeToken(sess *session.Session, token *keystone.Token) {
	sess.Set(session.KeyTenantID, token.Project.ID)
	sess.Set(session.KeyToken, token)
	sess.Set(session.KeyServiceCatalog, token.Catalog)
}
