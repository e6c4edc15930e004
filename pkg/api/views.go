// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/keystone-auth/pkg/auth"
	"github.com/sapcc/keystone-auth/pkg/keystone"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type views struct {
	backend *auth.Backend
	cfg     RouterConfig
}

type loginPage struct {
	Regions        []keystone.Region
	Region         string
	Username       string
	UserDomainName string
	Next           string
	Error          string
	Flashes        []string
	CSRFField      template.HTML
}

type homePage struct {
	User     *auth.User
	Projects []keystone.Project
	Flashes  []string
}

func (v *views) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		logg.Error("rendering %s: %s", name, err.Error())
	}
}

func flashes(r *http.Request) []string {
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		return sess.Flashes()
	}
	return nil
}

// loginForm handles GET /auth/login
func (v *views) loginForm(w http.ResponseWriter, r *http.Request) {
	v.render(w, "login.html", loginPage{
		Regions:   v.backend.Driver().Regions(),
		Next:      r.URL.Query().Get("next"),
		Flashes:   flashes(r),
		CSRFField: csrf.TemplateField(r),
	})
}

// login handles POST /auth/login. Failed logins re-render the form with a
// message and status 200.
func (v *views) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form := auth.LoginForm{
		Username:       r.PostForm.Get("username"),
		Password:       r.PostForm.Get("password"),
		Region:         r.PostForm.Get("region"),
		UserDomainName: r.PostForm.Get("user_domain_name"),
	}
	next := r.Form.Get("next")

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	user, authErr := v.backend.Login(r.Context(), sess, form)
	if authErr != nil {
		v.render(w, "login.html", loginPage{
			Regions:        v.backend.Driver().Regions(),
			Region:         form.Region,
			Username:       form.Username,
			UserDomainName: form.UserDomainName,
			Next:           next,
			Error:          loginErrorMessage(authErr, form.Username),
			CSRFField:      csrf.TemplateField(r),
		})
		return
	}
	auth.ResetUser(r.Context())

	loginsCounter.Inc()
	logg.Info("user %s (%s) logged in to project %s", user.Name, user.ID, user.ProjectID)
	http.Redirect(w, r, safeRedirect(next, v.cfg.LoginRedirectURL), http.StatusFound)
}

// logout handles /auth/logout
func (v *views) logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		v.backend.Logout(r.Context(), sess)
	}
	auth.DestroySession(w, r)
	http.Redirect(w, r, v.cfg.LoginURL, http.StatusFound)
}

// switchProject handles GET /auth/switch/{tenant_id}
func (v *views) switchProject(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["tenant_id"]
	target := safeRedirect(r.URL.Query().Get("next"), v.cfg.LoginRedirectURL)

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	if _, authErr := v.backend.SwitchProject(r.Context(), sess, projectID); authErr != nil {
		projectSwitchesCounter.WithLabelValues("failed").Inc()
		logg.Info("switching to project %s failed: %s", projectID, authErr.Error())
		sess.AddFlash(msgSwitchFailed)
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	auth.ResetUser(r.Context())

	projectSwitchesCounter.WithLabelValues("success").Inc()
	http.Redirect(w, r, target, http.StatusFound)
}

// home handles GET /
func (v *views) home(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	projects, authErr := v.backend.AvailableProjects(r.Context(), user)
	if authErr != nil {
		logg.Info("WARNING: listing projects of user %s failed: %s", user.ID, authErr.Error())
	}
	v.render(w, "home.html", homePage{
		User:     user,
		Projects: projects,
		Flashes:  flashes(r),
	})
}

// currentUser handles GET /auth/user
func (v *views) currentUser(w http.ResponseWriter, r *http.Request) {
	ReturnJSON(w, http.StatusOK, auth.CurrentUser(r.Context()))
}
