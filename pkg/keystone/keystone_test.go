// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"net/http"
	"testing"

	"github.com/h2non/gock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

const (
	baseURL       = "http://identity.local"
	regionURL     = "http://identity.region-two.local"
	unscopedToken = "gAAAAABZjCvLtw2v36P_Nwn23Vkjl9ZIxK27YsVuGp2_bftQI6RfymVTvnLE_wNtrAzEJSg6Xa7Aoe37DgDp2wrryWs3klgSqjC7ecC6RD9hRxSaQsjd7choIjQVdIbZjph4vmhJzg7cPIQd9CT7x12wNKBYwIbAmCDFEX_CIlzmPXBUyeISI-M" //nolint:gosec // not real credential
	scopedToken   = "gUUUUUUZjCvLtw2v36P_Nwn23Vkjl9ZIxK27YsVuGp2_bftQI6RfymVTvnLE_wNtrAzEJSg6Xa7Aoe37DgDp2wrryWs3klgSqjC7ecC6RD9hRxSaQsjd7choIjQVdIbZjph4vmhJzg7cPIQd9CT7x12wNKBYwIbAmCDFEX_CIlzmPXBUyeISI-M" //nolint:gosec // not real credential
)

var unscopedAuthBody = map[string]any{
	"auth": map[string]any{
		"identity": map[string]any{
			"methods": []any{
				"password",
			},
			"password": map[string]any{
				"user": map[string]any{
					"domain": map[string]any{
						"name": "Default",
					},
					"name":     "testuser",
					"password": "testpw",
				},
			},
		},
	},
}

func scopeAuthBody(projectID string) map[string]any {
	return map[string]any{
		"auth": map[string]any{
			"identity": map[string]any{
				"methods": []any{
					"token",
				},
				"token": map[string]any{
					"id": unscopedToken,
				},
			},
			"scope": map[string]any{
				"project": map[string]any{
					"id": projectID,
				},
			},
		},
	}
}

func setupTest(t *testing.T) Driver {
	t.Helper()
	viper.Reset()
	viper.Set("keystone.auth_url", baseURL+"/v3")
	viper.Set("keystone.user_domain_name", "Default")
	viper.Set("keystone.token_cache_time", "1h")
	viper.Set("keystone.regions", []map[string]any{{"name": "RegionTwo", "auth_url": regionURL + "/v3"}})

	ks, err := NewKeystoneDriver()
	assert.Nil(t, err, "NewKeystoneDriver should not fail")
	return ks
}

func mockUnscopedLogin(base string) {
	gock.New(base).Post("/v3/auth/tokens").JSON(unscopedAuthBody).Reply(http.StatusCreated).File("fixtures/unscoped_token_create.json").AddHeader("X-Subject-Token", unscopedToken).AddHeader("Content-Type", "application/json")
}

func mockProjectList(base, fixture string) {
	// the projects-client does not imply that the response is JSON --> this leads to some confusion when the content-type header is missing from the response
	gock.New(base).Get("/v3/auth/projects").MatchHeader("X-Auth-Token", unscopedToken).Reply(http.StatusOK).File("fixtures/"+fixture).AddHeader("Content-Type", "application/json")
}

func mockScopedLogin(base, projectID string) {
	gock.New(base).Post("/v3/auth/tokens").JSON(scopeAuthBody(projectID)).Reply(http.StatusCreated).File("fixtures/scoped_token_"+projectID+".json").AddHeader("X-Subject-Token", scopedToken).AddHeader("Content-Type", "application/json")
}

func mocksToStrings(mocks []gock.Mock) []string {
	s := make([]string, len(mocks))
	for i, m := range mocks {
		r := m.Request()
		s[i] = r.Method + " " + r.URLStruct.String()
	}
	return s
}

func assertDone(t *testing.T) bool { //nolint:unparam
	return assert.True(t, gock.IsDone(), "pending mocks: %v\nunmatched requests: %v", mocksToStrings(gock.Pending()), gock.GetUnmatchedRequests())
}

func assertStatus(t *testing.T, expected StatusCode, err AuthenticationError) {
	t.Helper()
	if assert.NotNil(t, err, "an error with status %s was expected", expected) {
		assert.Equal(t, expected, err.StatusCode(), "unexpected status: %s", err.Error())
	}
}

func TestNewKeystoneDriver(t *testing.T) {
	viper.Reset()
	_, err := NewKeystoneDriver()
	assert.NotNil(t, err, "NewKeystoneDriver should fail without auth URL")

	viper.Set("keystone.auth_url", baseURL+"/v3")
	viper.Set("keystone.policy_file", "fixtures/missing.json")
	_, err = NewKeystoneDriver()
	assert.NotNil(t, err, "NewKeystoneDriver should fail with a missing policy file")

	viper.Set("keystone.policy_file", "fixtures/policy.json")
	_, err = NewKeystoneDriver()
	assert.Nil(t, err)
}

func TestAuthenticate(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	mockUnscopedLogin(baseURL)
	mockProjectList(baseURL, "auth_projects.json")
	mockScopedLogin(baseURL, "p00002")

	token, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw"})

	assert.Nil(t, err, "Authenticate should not fail")
	assert.Equal(t, scopedToken, token.ID)
	assert.Equal(t, "p00002", token.Project.ID, "the last listed project should be chosen")
	assert.Equal(t, "otherproject", token.Project.Name)
	assert.Equal(t, "u00001", token.User.ID)
	assert.Equal(t, "Default", token.User.Domain.Name)
	assert.Equal(t, baseURL+"/v3", token.AuthURL)
	assert.Equal(t, "2099-01-01T00:00:00.000000Z", token.ExpiresAt)
	assert.EqualValues(t, []string{"reader"}, token.RoleNames())
	assert.Equal(t, "http://compute.local/v2.1", token.EndpointURL("compute", "public", "RegionOne"))
	assert.Equal(t, "http://identity.internal/v3", token.EndpointURL("identity", "internal", ""))
	assert.Equal(t, "", token.EndpointURL("object-store", "public", ""))

	assertDone(t)
}

func TestAuthenticate_region(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	mockUnscopedLogin(regionURL)
	mockProjectList(regionURL, "auth_projects.json")
	mockScopedLogin(regionURL, "p00002")

	token, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw", Region: "RegionTwo"})

	assert.Nil(t, err, "Authenticate should not fail")
	assert.Equal(t, regionURL+"/v3", token.AuthURL)

	assertDone(t)
}

func TestAuthenticate_fallbackToNextProject(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	mockUnscopedLogin(baseURL)
	mockProjectList(baseURL, "auth_projects.json")
	gock.New(baseURL).Post("/v3/auth/tokens").JSON(scopeAuthBody("p00002")).Reply(http.StatusUnauthorized)
	mockScopedLogin(baseURL, "p00001")

	token, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw"})

	assert.Nil(t, err, "Authenticate should not fail")
	assert.Equal(t, "p00001", token.Project.ID)

	assertDone(t)
}

func TestAuthenticate_noProjects(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	mockUnscopedLogin(baseURL)
	mockProjectList(baseURL, "no_projects.json")

	_, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw"})
	assertStatus(t, StatusNoPermission, err)

	assertDone(t)
}

func TestAuthenticate_noProjectScopable(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	mockUnscopedLogin(baseURL)
	mockProjectList(baseURL, "auth_projects.json")
	gock.New(baseURL).Post("/v3/auth/tokens").JSON(scopeAuthBody("p00002")).Reply(http.StatusUnauthorized)
	gock.New(baseURL).Post("/v3/auth/tokens").JSON(scopeAuthBody("p00001")).Reply(http.StatusUnauthorized)

	_, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw"})
	assertStatus(t, StatusNoPermission, err)

	assertDone(t)
}

func TestAuthenticate_scopedServiceFault(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	mockUnscopedLogin(baseURL)
	mockProjectList(baseURL, "auth_projects.json")
	gock.New(baseURL).Post("/v3/auth/tokens").JSON(scopeAuthBody("p00002")).Reply(http.StatusInternalServerError)
	gock.New(baseURL).Post("/v3/auth/tokens").JSON(scopeAuthBody("p00001")).Reply(http.StatusInternalServerError)

	_, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw"})
	assertStatus(t, StatusNotAvailable, err)

	assertDone(t)
}

func TestAuthenticate_projectListFault(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	mockUnscopedLogin(baseURL)
	gock.New(baseURL).Get("/v3/auth/projects").MatchHeader("X-Auth-Token", unscopedToken).Reply(http.StatusInternalServerError)

	_, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw"})
	assertStatus(t, StatusNotAvailable, err)

	assertDone(t)
}

func TestAuthenticate_wrongCredentials(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	gock.New(baseURL).Post("/v3/auth/tokens").Reply(http.StatusUnauthorized).BodyString(`{"error": {"code": 401, "message": "The request you have made requires authentication.", "title": "Unauthorized"}}`)

	_, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "invalid"})
	assertStatus(t, StatusWrongCredentials, err)

	assertDone(t)
}

func TestAuthenticate_serviceFault(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	gock.New(baseURL).Post("/v3/auth/tokens").Reply(http.StatusInternalServerError)

	_, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw"})
	assertStatus(t, StatusNotAvailable, err)

	assertDone(t)
}

func TestAuthenticate_missingCredentials(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	_, err := ks.Authenticate(t.Context(), Credentials{Username: "testuser"})
	assertStatus(t, StatusMissingCredentials, err)

	_, err = ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw", Region: "http://evil.local/v3"})
	assertStatus(t, StatusMissingCredentials, err)

	assertDone(t)
}

func TestAuthenticate_loginPolicy(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)
	viper.Set("keystone.policy_file", "fixtures/policy.json")
	ks, err := NewKeystoneDriver()
	assert.Nil(t, err)

	// p00002 only grants "reader", which the policy does not accept
	mockUnscopedLogin(baseURL)
	mockProjectList(baseURL, "auth_projects.json")
	mockScopedLogin(baseURL, "p00002")
	mockScopedLogin(baseURL, "p00001")

	token, authErr := ks.Authenticate(t.Context(), Credentials{Username: "testuser", Password: "testpw"})

	assert.Nil(t, authErr, "Authenticate should not fail")
	assert.Equal(t, "p00001", token.Project.ID)

	assertDone(t)
}

func TestSwitchProject(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	mockScopedLogin(baseURL, "p00001")

	current := &Token{ID: unscopedToken, AuthURL: baseURL + "/v3"}
	token, err := ks.SwitchProject(t.Context(), current, "p00001")

	assert.Nil(t, err, "SwitchProject should not fail")
	assert.Equal(t, "p00001", token.Project.ID)
	assert.Equal(t, baseURL+"/v3", token.AuthURL)

	_, err = ks.SwitchProject(t.Context(), current, "")
	assertStatus(t, StatusMissingCredentials, err)

	assertDone(t)
}

func TestSwitchProject_forbidden(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	gock.New(baseURL).Post("/v3/auth/tokens").JSON(scopeAuthBody("p00009")).Reply(http.StatusUnauthorized)

	_, err := ks.SwitchProject(t.Context(), &Token{ID: unscopedToken, AuthURL: baseURL + "/v3"}, "p00009")
	assertStatus(t, StatusWrongCredentials, err)

	assertDone(t)
}

func TestAvailableProjects(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	// only one request: the second call is served from the cache
	mockProjectList(baseURL, "auth_projects.json")

	token := &Token{ID: unscopedToken, AuthURL: baseURL + "/v3"}
	for range 2 {
		result, err := ks.AvailableProjects(t.Context(), token)
		assert.Nil(t, err, "AvailableProjects should not fail")
		assert.EqualValues(t, []Project{
			{ID: "p00001", Name: "testproject", DomainID: "default", Description: "first project"},
			{ID: "p00002", Name: "otherproject", DomainID: "default", Description: "second project"},
		}, result, "disabled projects should be skipped")
	}

	assertDone(t)
}

func TestRevoke(t *testing.T) {
	defer gock.Off()

	ks := setupTest(t)

	gock.New(baseURL).Delete("/v3/auth/tokens").MatchHeader("X-Subject-Token", scopedToken).MatchHeader("X-Auth-Token", scopedToken).Reply(http.StatusNoContent)

	err := ks.Revoke(t.Context(), &Token{ID: scopedToken, AuthURL: baseURL + "/v3"})
	assert.Nil(t, err, "Revoke should not fail")
	assert.Nil(t, ks.Revoke(t.Context(), nil), "revoking no token is a no-op")

	assertDone(t)
}

func TestRegions(t *testing.T) {
	ks := setupTest(t)

	assert.EqualValues(t, []Region{{Name: "RegionTwo", AuthURL: regionURL + "/v3"}}, ks.Regions())

	testCases := []struct {
		region   string
		expected string
		ok       bool
	}{
		{"", baseURL + "/v3", true},
		{baseURL + "/v3", baseURL + "/v3", true},
		{"RegionTwo", regionURL + "/v3", true},
		{"regiontwo", "", false},
		{regionURL + "/v3", regionURL + "/v3", true},
		{"region-three", "", false},
		{"http://evil.local/v3", "", false},
	}
	for _, tc := range testCases {
		authURL, ok := ks.ResolveRegion(tc.region)
		assert.Equal(t, tc.ok, ok, "region %q", tc.region)
		assert.Equal(t, tc.expected, authURL, "region %q", tc.region)
	}
}

func TestRegionsFromConfig(t *testing.T) {
	viper.Reset()

	regions, err := RegionsFromConfig()
	assert.Nil(t, err)
	assert.Empty(t, regions, "regions are optional")

	viper.Set("keystone.regions", []map[string]any{
		{"name": "RegionOne", "auth_url": baseURL + "/v3"},
		{"name": "RegionTwo", "auth_url": regionURL + "/v3"},
	})
	regions, err = RegionsFromConfig()
	assert.Nil(t, err)
	assert.EqualValues(t, []Region{
		{Name: "RegionOne", AuthURL: baseURL + "/v3"},
		{Name: "RegionTwo", AuthURL: regionURL + "/v3"},
	}, regions, "region names should keep their case")

	viper.Set("keystone.regions", []map[string]any{{"name": "RegionOne"}})
	_, err = RegionsFromConfig()
	assert.ErrorContains(t, err, "keystone.regions[0]")

	viper.Set("keystone.regions", []map[string]any{
		{"name": "RegionOne", "auth_url": baseURL + "/v3"},
		{"name": "RegionOne", "auth_url": regionURL + "/v3"},
	})
	_, err = RegionsFromConfig()
	assert.ErrorContains(t, err, "configured twice")

	viper.Set("keystone.regions", map[string]string{"regionone": baseURL + "/v3"})
	_, err = RegionsFromConfig()
	assert.NotNil(t, err, "the old map form should be rejected")

	viper.Set("keystone.auth_url", baseURL+"/v3")
	_, err = NewKeystoneDriver()
	assert.NotNil(t, err, "NewKeystoneDriver should fail with invalid regions")
}

func TestTokenToContext(t *testing.T) {
	token := Token{
		ID:        scopedToken,
		ExpiresAt: "2099-01-01T00:00:00.000000Z",
		User:      TokenThingInDomain{TokenThing: TokenThing{ID: "u00001", Name: "testuser"}, Domain: TokenThing{ID: "default", Name: "Default"}},
		Project:   TokenThingInDomain{TokenThing: TokenThing{ID: "p00001", Name: "testproject"}},
		Roles:     []TokenThing{{ID: "r00001", Name: "member"}},
	}
	c := token.ToContext()

	assert.EqualValues(t, []string{"member"}, c.Roles)
	assert.Equal(t, "u00001", c.Auth["user_id"])
	assert.Equal(t, "p00001", c.Request["project_id"])
	_, found := c.Auth["project_domain_id"]
	assert.False(t, found, "empty attributes should be removed")
	_, found = c.Auth["token"]
	assert.False(t, found, "the token itself should not be part of the context")
}
