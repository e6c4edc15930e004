// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/sapcc/keystone-auth/pkg/session"
)

type contextKey int

const requestStateKey contextKey = iota

// requestState is attached to the request context by Middleware. The user is
// resolved lazily so that requests which never look at it pay nothing.
type requestState struct {
	store   *session.Store
	session *session.Session
	backend *Backend

	userOnce sync.Once
	user     *User
}

func (rs *requestState) currentUser() *User {
	rs.userOnce.Do(func() {
		rs.user = rs.backend.GetUser(rs.session)
	})
	return rs.user
}

// sessionWriter saves the session right before the response header goes out,
// since the session cookie cannot be set afterwards
type sessionWriter struct {
	http.ResponseWriter
	state *requestState
	saved bool
}

func (w *sessionWriter) save() {
	if w.saved {
		return
	}
	w.saved = true
	w.state.store.Save(w.ResponseWriter, w.state.session)
}

func (w *sessionWriter) WriteHeader(statusCode int) {
	w.save()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.save()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware loads the session of every request and saves it when the
// response is written. Use it as a gorilla/mux middleware.
func (b *Backend) Middleware(store *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := &requestState{
				store:   store,
				session: store.Load(r),
				backend: b,
			}
			sw := &sessionWriter{ResponseWriter: w, state: state}
			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), requestStateKey, state)))
			// handlers which write nothing still get their session changes persisted
			sw.save()
		})
	}
}

// ResetUser forgets the user resolved for this request, e.g. after a login or
// project switch changed the session
func ResetUser(ctx context.Context) {
	if state, ok := ctx.Value(requestStateKey).(*requestState); ok {
		state.userOnce = sync.Once{}
		state.user = nil
	}
}

// CurrentUser returns the user of the request. Outside of Middleware, and for
// requests without a valid login, this is the anonymous user.
func CurrentUser(ctx context.Context) *User {
	state, ok := ctx.Value(requestStateKey).(*requestState)
	if !ok {
		return Anonymous()
	}
	return state.currentUser()
}

// SessionFromContext returns the session of the request
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	state, ok := ctx.Value(requestStateKey).(*requestState)
	if !ok {
		return nil, false
	}
	return state.session, true
}

// DestroySession removes the session of the request and expires its cookie
func DestroySession(w http.ResponseWriter, r *http.Request) {
	state, ok := r.Context().Value(requestStateKey).(*requestState)
	if !ok {
		return
	}
	state.store.Destroy(w, state.session)
	ResetUser(r.Context())
}

// LoginRequired redirects anonymous users to loginURL, passing the requested
// path along in the "next" parameter
func LoginRequired(loginURL string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()).IsAuthenticated() {
			handler.ServeHTTP(w, r)
			return
		}

		target, err := url.Parse(loginURL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		q := target.Query()
		q.Set("next", r.URL.RequestURI())
		target.RawQuery = q.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
	})
}
