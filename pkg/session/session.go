// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package session keeps per-browser state on the server side. The browser
// only holds an opaque session ID in a cookie.
package session

import (
	"maps"
	"net/http"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/sapcc/go-bits/logg"
)

// Keys of the values written by the login flow
const (
	KeyUserID         = "user_id"
	KeyTenantID       = "tenant_id"
	KeyToken          = "token"
	KeyServiceCatalog = "service_catalog"
	KeyRegion         = "region"
)

// DefaultCookieName is used when Options.CookieName is empty
const DefaultCookieName = "keystone_auth_session"

// Session is a request-local copy of the stored session state. Changes only
// become visible to other requests after Store.Save.
type Session struct {
	id         string
	previousID string
	values     map[string]any
	flashes    []string
	isNew      bool
}

// record is what the store keeps between requests
type record struct {
	values  map[string]any
	flashes []string
}

func newSession() *Session {
	return &Session{
		id:     uuid.NewString(),
		values: map[string]any{},
		isNew:  true,
	}
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// IsNew reports whether the session was created during this request
func (s *Session) IsNew() bool {
	return s.isNew
}

// Get returns the value stored under key
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the string stored under key, or "" if there is none
func (s *Session) GetString(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// Set stores a value
func (s *Session) Set(key string, value any) {
	s.values[key] = value
}

// Delete removes a value
func (s *Session) Delete(key string) {
	delete(s.values, key)
}

// Clear removes all values and flashes
func (s *Session) Clear() {
	s.values = map[string]any{}
	s.flashes = nil
}

// Cycle assigns a new session ID while keeping the values. The old ID
// becomes invalid on the next Save.
func (s *Session) Cycle() {
	if !s.isNew && s.previousID == "" {
		s.previousID = s.id
	}
	s.id = uuid.NewString()
}

// AddFlash queues a message that is shown once
func (s *Session) AddFlash(message string) {
	s.flashes = append(s.flashes, message)
}

// Flashes returns and removes all queued messages
func (s *Session) Flashes() []string {
	result := s.flashes
	if len(result) > 0 {
		s.flashes = nil
	}
	return result
}

// Options configure a Store
type Options struct {
	CookieName string
	TTL        time.Duration
	// Secure sets the Secure attribute on the cookie; disable only for plain HTTP development setups
	Secure bool
}

// Store keeps sessions in memory and expires them after the configured TTL of inactivity
type Store struct {
	// this cache is thread-safe, sessions are copied on Load and Save
	cache      *cache.Cache
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewStore creates a session store
func NewStore(opts Options) *Store {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	return &Store{
		cache:      cache.New(opts.TTL, time.Minute),
		cookieName: opts.CookieName,
		ttl:        opts.TTL,
		secure:     opts.Secure,
	}
}

// Load returns the session of the request, or a new empty one when the
// request has no valid session cookie
func (s *Store) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return newSession()
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		logg.Debug("ignoring malformed session cookie")
		return newSession()
	}

	entry, found := s.cache.Get(cookie.Value)
	if !found {
		logg.Debug("session %s... not found or expired", cookie.Value[:8])
		return newSession()
	}
	rec := entry.(*record)

	return &Session{
		id:      cookie.Value,
		values:  maps.Clone(rec.values),
		flashes: append([]string(nil), rec.flashes...),
	}
}

// Save stores the session and (re)sets the cookie. New sessions without any
// content are not stored.
func (s *Store) Save(w http.ResponseWriter, sess *Session) {
	if sess.isNew && len(sess.values) == 0 && len(sess.flashes) == 0 {
		return
	}
	if sess.previousID != "" {
		s.cache.Delete(sess.previousID)
		sess.previousID = ""
	}

	s.cache.Set(sess.id, &record{
		values:  maps.Clone(sess.values),
		flashes: append([]string(nil), sess.flashes...),
	}, s.ttl)
	sess.isNew = false

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Path:     "/",
		Value:    sess.id,
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Destroy removes the session from the store and expires the cookie
func (s *Store) Destroy(w http.ResponseWriter, sess *Session) {
	s.cache.Delete(sess.id)
	if sess.previousID != "" {
		s.cache.Delete(sess.previousID)
	}
	sess.Clear()
	sess.id = uuid.NewString()
	sess.previousID = ""
	sess.isNew = true

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Path:     "/",
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Count returns the number of stored sessions, expired ones included until the next cleanup
func (s *Store) Count() int {
	return s.cache.ItemCount()
}
