// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/keystone-auth/pkg/keystone"
)

// utility functionality

// messages shown on the login form
const (
	msgInvalidCredentials = "Invalid user name or password."
	msgNoProjects         = "You are not authorized for any projects."
	msgTryAgainLater      = "An error occurred authenticating. Please try again later."
	msgSwitchFailed       = "Project switch failed"
)

var loginFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "keystone_auth_login_failures_count", Help: "Number of logon attempts failed due to wrong credentials"})
var loginErrorsCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "keystone_auth_login_errors_count", Help: "Number of logon errors caused by the identity service"})
var loginsCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "keystone_auth_logins_count", Help: "Number of successful logons"})
var projectSwitchesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "keystone_auth_project_switches_count", Help: "Number of project switches"}, []string{"result"})
var csrfFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "keystone_auth_csrf_failures_count", Help: "Number of login form submissions rejected by the CSRF check"})
var inflightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "keystone_auth_requests_inflight", Help: "Number of inflight HTTP requests"})
var durationSummary = prometheus.NewSummaryVec(prometheus.SummaryOpts{
	Name: "keystone_auth_request_duration_seconds", Help: "Duration/latency of a request"}, []string{"handler", "code"})

func init() {
	prometheus.MustRegister(loginFailuresCounter, loginErrorsCounter, loginsCounter, projectSwitchesCounter, csrfFailuresCounter, inflightGauge, durationSummary)
}

// markPlaintext flags requests that did not arrive via HTTPS. The CSRF check
// enforces a same-origin Referer for everything else.
func markPlaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Scheme == "http" || (r.URL.Scheme == "" && r.TLS == nil) {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

func csrfFailure(w http.ResponseWriter, r *http.Request) {
	csrfFailuresCounter.Inc()
	logg.Info("rejected %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, csrf.FailureReason(r))
	http.Error(w, "Forbidden - CSRF token invalid or missing", http.StatusForbidden)
}

// ReturnJSON is a convenience function for HTTP handlers returning JSON data.
// The `code` argument specifies the HTTP Response code, usually 200.
func ReturnJSON(w http.ResponseWriter, code int, data any) {
	payload, err := json.Marshal(&data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// restore "&" in links that are broken by the json.Marshaller
	payload = bytes.ReplaceAll(payload, []byte("\\u0026"), []byte("&"))
	if _, err = w.Write(payload); err != nil {
		logg.Debug("writing response failed: %s", err.Error())
	}
}

// loginErrorMessage turns a failed login into the message shown to the user
// and counts it. Details of the failure stay in the log.
func loginErrorMessage(authErr keystone.AuthenticationError, username string) string {
	switch authErr.StatusCode() {
	case keystone.StatusWrongCredentials, keystone.StatusMissingCredentials:
		loginFailuresCounter.Inc()
		logg.Info("login with wrong credentials for user %q: %s", username, authErr.Error())
		return msgInvalidCredentials
	case keystone.StatusNoPermission:
		loginFailuresCounter.Inc()
		logg.Info("user %q is not authorized for any project: %s", username, authErr.Error())
		return msgNoProjects
	default:
		// warn of possible technical issues
		loginErrorsCounter.Inc()
		logg.Info("WARNING: authentication error for user %q: %s", username, authErr.Error())
		return msgTryAgainLater
	}
}

// safeRedirect returns next if it is a path on this host, fallback otherwise
func safeRedirect(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	return next
}

func gaugeInflight(handler http.Handler) http.Handler {
	return promhttp.InstrumentHandlerInFlight(inflightGauge, handler)
}

func observeDuration(handlerFunc http.HandlerFunc, handler string) http.HandlerFunc {
	return promhttp.InstrumentHandlerDuration(durationSummary.MustCurryWith(prometheus.Labels{"handler": handler}), handlerFunc)
}

// recoveryLogger feeds panics caught by handlers.RecoveryHandler into the log
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	logg.Error("recovered from panic: %s", fmt.Sprint(v...))
}
