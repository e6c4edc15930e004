// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package api serves the login, logout and project switch pages on top of the
// auth backend.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/viper"

	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/keystone-auth/pkg/auth"
	"github.com/sapcc/keystone-auth/pkg/keystone"
	"github.com/sapcc/keystone-auth/pkg/session"
	"github.com/sapcc/keystone-auth/pkg/timeutil"
)

// RouterConfig holds the web settings of the router
type RouterConfig struct {
	LoginURL           string
	LoginRedirectURL   string
	CORSAllowedOrigins []string
	// CSRFKey authenticates the CSRF cookie of the login form. When empty, a
	// random key is generated and form tokens do not survive a restart.
	CSRFKey            []byte
	CSRFTrustedOrigins []string
	SecureCookies      bool
}

// RouterConfigFromViper reads the web.* settings
func RouterConfigFromViper() RouterConfig {
	return RouterConfig{
		LoginURL:           viper.GetString("web.login_url"),
		LoginRedirectURL:   viper.GetString("web.login_redirect_url"),
		CORSAllowedOrigins: viper.GetStringSlice("web.cors_allowed_origins"),
		CSRFKey:            []byte(viper.GetString("web.csrf_key")),
		CSRFTrustedOrigins: viper.GetStringSlice("web.csrf_trusted_origins"),
		SecureCookies:      viper.GetBool("web.secure_cookies"),
	}
}

// Server initializes and starts the API server, hooking it up to the API router.
// It returns after ctx is cancelled and the server has shut down.
func Server(ctx context.Context) error {
	keystoneDriver, err := keystone.NewKeystoneDriver()
	if err != nil {
		return err
	}
	clock, err := timeutil.NewClock(viper.GetString("keystone.timezone"), viper.GetString("keystone.datetime_format"))
	if err != nil {
		return err
	}
	store := session.NewStore(session.Options{
		CookieName: viper.GetString("session.cookie_name"),
		TTL:        viper.GetDuration("session.ttl"),
		Secure:     viper.GetBool("web.secure_cookies"),
	})

	// The main router dispatches all incoming requests
	mainRouter := setupRouter(auth.NewBackend(keystoneDriver, clock), store, RouterConfigFromViper())

	bindAddress := viper.GetString("web.bind_address")
	logg.Info("listening on %s", bindAddress)
	return httpext.ListenAndServeContext(ctx, bindAddress, mainRouter)
}

// form field of the login form carrying the CSRF token
const csrfFieldName = "csrf_token"

// setupRouter initializes the main http router
func setupRouter(backend *auth.Backend, store *session.Store, cfg RouterConfig) http.Handler {
	if cfg.LoginURL == "" {
		cfg.LoginURL = "/auth/login"
	}
	if cfg.LoginRedirectURL == "" {
		cfg.LoginRedirectURL = "/"
	}
	v := &views{backend: backend, cfg: cfg}

	mainRouter := mux.NewRouter()
	mainRouter.Use(backend.Middleware(store))

	csrfKey := cfg.CSRFKey
	if len(csrfKey) == 0 {
		csrfKey = securecookie.GenerateRandomKey(32)
	}
	protect := csrf.Protect(csrfKey,
		csrf.CookieName("keystone_auth_csrf"),
		csrf.FieldName(csrfFieldName),
		csrf.Path("/auth"),
		csrf.Secure(cfg.SecureCookies),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.TrustedOrigins(cfg.CSRFTrustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(csrfFailure)),
	)

	mainRouter.Methods(http.MethodGet).Path("/auth/login").Handler(markPlaintext(protect(observeDuration(v.loginForm, "login"))))
	mainRouter.Methods(http.MethodPost).Path("/auth/login").Handler(markPlaintext(protect(observeDuration(v.login, "login"))))
	mainRouter.Methods(http.MethodGet, http.MethodPost).Path("/auth/logout").HandlerFunc(observeDuration(v.logout, "logout"))
	mainRouter.Methods(http.MethodGet).Path("/auth/switch/{tenant_id}").Handler(
		auth.LoginRequired(cfg.LoginURL, observeDuration(v.switchProject, "switch")))

	userHandler := auth.LoginRequired(cfg.LoginURL, observeDuration(v.currentUser, "user"))
	if len(cfg.CORSAllowedOrigins) > 0 {
		userHandler = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet},
			AllowCredentials: true,
		}).Handler(userHandler)
	}
	mainRouter.Methods(http.MethodGet, http.MethodOptions).Path("/auth/user").Handler(userHandler)

	mainRouter.Methods(http.MethodGet).Path("/").Handler(
		auth.LoginRequired(cfg.LoginURL, observeDuration(v.home, "home")))

	// scrape endpoint for Prometheus
	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	metricsRouter.PathPrefix("/").Handler(mainRouter)

	// provide the inflight metrics for all paths
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(
		handlers.ProxyHeaders(gaugeInflight(metricsRouter)))
}
