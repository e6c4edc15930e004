// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	policy "github.com/databus23/goslo.policy"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/projects"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/tokens"
	cache "github.com/patrickmn/go-cache"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/maps"

	"github.com/sapcc/go-bits/logg"
)

// LoginRule is the policy rule a scoped token has to satisfy when a policy file is configured
const LoginRule = "login:allowed"

const tracerName = "github.com/sapcc/keystone-auth/pkg/keystone"

// NewKeystoneDriver creates a real keystone authentication driver from the viper configuration
func NewKeystoneDriver() (Driver, error) {
	d := keystone{
		authURL:        viper.GetString("keystone.auth_url"),
		regions:        make(map[string]string),
		userDomainName: viper.GetString("keystone.user_domain_name"),
	}
	if d.authURL == "" {
		return nil, fmt.Errorf("identity endpoint not configured (keystone.auth_url)")
	}
	regions, err := RegionsFromConfig()
	if err != nil {
		return nil, err
	}
	for _, region := range regions {
		d.regions[region.Name] = region.AuthURL
	}
	if d.userDomainName == "" {
		d.userDomainName = "Default"
	}
	if proxy := viper.GetString("keystone.proxy"); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", proxy, err)
		}
		d.proxyURL = proxyURL
	}
	if policyFile := viper.GetString("keystone.policy_file"); policyFile != "" {
		enforcer, err := loadPolicy(policyFile)
		if err != nil {
			return nil, err
		}
		d.enforcer = enforcer
	}

	cacheTime := viper.GetDuration("keystone.token_cache_time")
	if cacheTime <= 0 {
		cacheTime = 15 * time.Minute
	}
	d.projectsCache = cache.New(cacheTime, time.Minute)

	logg.Info("identity endpoint is %s (%d additional regions)", d.authURL, len(d.regions))
	return &d, nil
}

type keystone struct {
	authURL string
	// region name --> auth URL
	regions        map[string]string
	userDomainName string
	proxyURL       *url.URL
	enforcer       *policy.Enforcer
	// this cache is thread-safe, no need to lock because worst-case is duplicate processing efforts
	projectsCache *cache.Cache
}

// RegionsFromConfig reads keystone.regions, a list of entries with the keys
// "name" and "auth_url". A list is used instead of a map because viper
// lowercases map keys, and region names like "RegionOne" must keep their case.
func RegionsFromConfig() ([]Region, error) {
	var regions []Region
	if err := viper.UnmarshalKey("keystone.regions", &regions); err != nil {
		return nil, fmt.Errorf("keystone.regions must be a list of name/auth_url entries: %w", err)
	}
	seen := make(map[string]bool, len(regions))
	for idx, region := range regions {
		if region.Name == "" || region.AuthURL == "" {
			return nil, fmt.Errorf("keystone.regions[%d] needs both name and auth_url", idx)
		}
		if seen[region.Name] {
			return nil, fmt.Errorf("keystone.regions: region %q is configured twice", region.Name)
		}
		seen[region.Name] = true
	}
	return regions, nil
}

func loadPolicy(policyFile string) (*policy.Enforcer, error) {
	filebytes, err := os.ReadFile(policyFile)
	if err != nil {
		return nil, fmt.Errorf("policy file %s not found: %w", policyFile, err)
	}
	var rules map[string]string
	if err := json.Unmarshal(filebytes, &rules); err != nil {
		return nil, fmt.Errorf("policy file %s is not valid JSON: %w", policyFile, err)
	}
	return policy.NewEnforcer(rules)
}

func (d *keystone) Regions() []Region {
	names := maps.Keys(d.regions)
	slices.Sort(names)

	result := make([]Region, 0, len(names))
	for _, name := range names {
		result = append(result, Region{Name: name, AuthURL: d.regions[name]})
	}
	return result
}

// ResolveRegion accepts a configured region name or one of the configured
// auth URLs. The empty region selects the default auth URL.
func (d *keystone) ResolveRegion(region string) (string, bool) {
	region = strings.TrimSpace(region)
	if region == "" || region == d.authURL {
		return d.authURL, true
	}
	if authURL, ok := d.regions[region]; ok {
		return authURL, true
	}
	for _, authURL := range d.regions {
		if authURL == region {
			return authURL, true
		}
	}
	return "", false
}

// identityClient establishes an identity v3 client for the given endpoint,
// authenticated with tokenID if that is not empty
func (d *keystone) identityClient(authURL, tokenID string) (*gophercloud.ServiceClient, error) {
	provider, err := openstack.NewClient(authURL)
	if err != nil {
		return nil, fmt.Errorf("cannot initialize OpenStack provider client for %s: %w", authURL, err)
	}
	if d.proxyURL != nil {
		provider.HTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(d.proxyURL)}
	}
	if tokenID != "" {
		provider.SetToken(tokenID)
	}
	client, err := openstack.NewIdentityV3(provider, gophercloud.EndpointOpts{})
	if err != nil {
		return nil, fmt.Errorf("cannot initialize OpenStack identity V3 client for %s: %w", authURL, err)
	}
	return client, nil
}

// Authenticate performs the two-step login: an unscoped token is created from
// the credentials, then the projects available to it are tried from the last
// to the first until one yields a scoped token.
func (d *keystone) Authenticate(ctx context.Context, credentials Credentials) (*Token, AuthenticationError) {
	if credentials.Username == "" || credentials.Password == "" {
		return nil, NewAuthenticationError(StatusMissingCredentials, "username and password are required")
	}
	authURL, ok := d.ResolveRegion(credentials.Region)
	if !ok {
		logg.Info("login of user %s for unknown region %q rejected", credentials.Username, credentials.Region)
		return nil, NewAuthenticationError(StatusMissingCredentials, "unknown region %q", credentials.Region)
	}
	domainName := credentials.UserDomainName
	if domainName == "" {
		domainName = d.userDomainName
	}

	client, err := d.identityClient(authURL, "")
	if err != nil {
		return nil, NewAuthenticationError(StatusNotAvailable, "%s", err.Error())
	}

	logg.Debug("authenticate user %s@%s at %s", credentials.Username, domainName, authURL)
	unscoped, authErr := d.createToken(ctx, client, &tokens.AuthOptions{
		Username:   credentials.Username,
		Password:   credentials.Password,
		DomainName: domainName,
	})
	if authErr != nil {
		logg.Info("Failed login of user name %s@%s: %s", credentials.Username, domainName, authErr.Error())
		return nil, authErr
	}
	unscoped.AuthURL = authURL

	candidates, authErr := d.AvailableProjects(ctx, unscoped)
	if authErr != nil {
		return nil, authErr
	}
	if len(candidates) == 0 {
		logg.Info("user %s@%s is not authorized for any projects", credentials.Username, domainName)
		return nil, NewAuthenticationError(StatusNoPermission, "You are not authorized for any projects.")
	}

	serviceFaults := 0
	for i := len(candidates) - 1; i >= 0; i-- {
		project := candidates[i]
		scoped, authErr := d.scopeToken(ctx, client, unscoped, project.ID)
		if authErr != nil {
			logg.Debug("scoping to project %s failed for user %s@%s: %s", project.ID, credentials.Username, domainName, authErr.Error())
			if authErr.StatusCode() == StatusNotAvailable {
				serviceFaults++
			}
			continue
		}
		logg.Info("user %s@%s logged on to project %s (%s)", credentials.Username, domainName, scoped.Project.Name, scoped.Project.ID)
		return scoped, nil
	}

	if serviceFaults == len(candidates) {
		return nil, NewAuthenticationError(StatusNotAvailable, "unable to scope a token for user %s@%s", credentials.Username, domainName)
	}
	return nil, NewAuthenticationError(StatusNoPermission, "Unable to authenticate to any available projects.")
}

func (d *keystone) SwitchProject(ctx context.Context, token *Token, projectID string) (*Token, AuthenticationError) {
	if token == nil || token.ID == "" {
		return nil, NewAuthenticationError(StatusMissingCredentials, "no token to rescope")
	}
	if projectID == "" {
		return nil, NewAuthenticationError(StatusMissingCredentials, "no project given")
	}

	client, err := d.identityClient(token.AuthURL, "")
	if err != nil {
		return nil, NewAuthenticationError(StatusNotAvailable, "%s", err.Error())
	}

	logg.Debug("rescope token %s to project %s", abbreviate(token.ID), projectID)
	return d.scopeToken(ctx, client, token, projectID)
}

// scopeToken creates a token for projectID from an existing token and checks it against the login policy
func (d *keystone) scopeToken(ctx context.Context, client *gophercloud.ServiceClient, token *Token, projectID string) (*Token, AuthenticationError) {
	scoped, authErr := d.createToken(ctx, client, &tokens.AuthOptions{
		TokenID: token.ID,
		Scope:   tokens.Scope{ProjectID: projectID},
	})
	if authErr != nil {
		return nil, authErr
	}
	scoped.AuthURL = token.AuthURL

	if d.enforcer != nil && !d.enforcer.Enforce(LoginRule, scoped.ToContext()) {
		return nil, NewAuthenticationError(StatusNoPermission, "user %s is not permitted to log on to project %s (roles: %s)",
			scoped.User.ID, projectID, strings.Join(scoped.RoleNames(), ","))
	}
	return scoped, nil
}

// createToken issues a new token
func (d *keystone) createToken(ctx context.Context, client *gophercloud.ServiceClient, opts *tokens.AuthOptions) (*Token, AuthenticationError) {
	ctx, span := otel.GetTracerProvider().Tracer(tracerName).Start(ctx, "/identity/v3/auth/tokens", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	result := tokens.Create(ctx, client, opts)
	tokenInfo, err := result.ExtractToken()
	if err != nil {
		return nil, classifyError(err)
	}

	var token Token
	if err := result.ExtractInto(&token); err != nil {
		return nil, NewAuthenticationError(StatusNotAvailable, "%s", err.Error())
	}
	token.ID = tokenInfo.ID
	return &token, nil
}

func (d *keystone) AvailableProjects(ctx context.Context, token *Token) ([]Project, AuthenticationError) {
	if token == nil || token.ID == "" {
		return nil, NewAuthenticationError(StatusMissingCredentials, "no token to list projects for")
	}

	// tokens of different regions never share entries
	cacheKey := token.AuthURL + " " + token.ID
	if cached, ok := d.projectsCache.Get(cacheKey); ok {
		logg.Debug("project list cache hit for token %s", abbreviate(token.ID))
		return cached.([]Project), nil
	}

	result, err := d.fetchAvailableProjects(ctx, token)
	if err != nil {
		logg.Error("Unable to obtain project list of token %s: %s", abbreviate(token.ID), err.Error())
		return nil, classifyError(err)
	}

	d.projectsCache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

// fetchAvailableProjects lists the enabled projects available to a token (no cache lookup)
func (d *keystone) fetchAvailableProjects(ctx context.Context, token *Token) ([]Project, error) {
	ctx, span := otel.GetTracerProvider().Tracer(tracerName).Start(ctx, "/identity/v3/auth/projects", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	client, err := d.identityClient(token.AuthURL, token.ID)
	if err != nil {
		return nil, err
	}

	pages, err := projects.ListAvailable(client).AllPages(ctx)
	if err != nil {
		return nil, err
	}
	items, err := projects.ExtractProjects(pages)
	if err != nil {
		return nil, err
	}

	result := make([]Project, 0, len(items))
	for _, p := range items {
		if !p.Enabled {
			continue
		}
		result = append(result, Project{ID: p.ID, Name: p.Name, DomainID: p.DomainID, Description: p.Description})
	}
	return result, nil
}

func (d *keystone) Revoke(ctx context.Context, token *Token) error {
	if token == nil || token.ID == "" {
		return nil
	}

	ctx, span := otel.GetTracerProvider().Tracer(tracerName).Start(ctx, "/identity/v3/auth/tokens", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	client, err := d.identityClient(token.AuthURL, token.ID)
	if err != nil {
		return err
	}
	d.projectsCache.Delete(token.AuthURL + " " + token.ID)

	err = tokens.Revoke(ctx, client, token.ID).Err
	if err != nil {
		return fmt.Errorf("cannot revoke token %s: %w", abbreviate(token.ID), err)
	}
	return nil
}

// classifyError maps identity service errors: 401 means the credentials were
// rejected, everything else is a service fault
func classifyError(err error) AuthenticationError {
	if gophercloud.ResponseCodeIs(err, http.StatusUnauthorized) {
		return NewAuthenticationError(StatusWrongCredentials, "%s", err.Error())
	}
	return NewAuthenticationError(StatusNotAvailable, "%s", err.Error())
}
