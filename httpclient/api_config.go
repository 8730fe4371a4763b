package httpclient

// OAuthToken is a structured access token. APIConfig accepts either this
// or a bare string.
type OAuthToken struct {
	AccessToken  string `yaml:"accessToken"`
	TokenType    string `yaml:"tokenType"`
	RefreshToken string `yaml:"refreshToken"`
	ExpiresIn    int    `yaml:"expiresIn"`
}

// String returns the bare token value.
func (t OAuthToken) String() string { return t.AccessToken }

// APIConfig extends Config with the credential surface third-party APIs
// commonly require. Fields are plain strings; nothing here is validated,
// the target API is the authority on which combination it wants.
type APIConfig struct {
	Config `yaml:",inline"`

	// APIKey is a static key credential.
	APIKey string `yaml:"apiKey"`

	// AccessToken is a bearer token, bare or structured.
	AccessToken string `yaml:"-"`

	// Token is the structured form of AccessToken, when the caller has
	// one. Its AccessToken field wins over the bare string.
	Token *OAuthToken `yaml:"token"`

	// PersonalAccessToken is a user-scoped token credential.
	PersonalAccessToken string `yaml:"personalAccessToken"`

	// ClientID and ClientSecret form the oauth client pair.
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`

	// OrgID and UserID form the tenant pair.
	OrgID  string `yaml:"orgId"`
	UserID string `yaml:"userId"`

	// AccessTokenURL is where new tokens are minted.
	AccessTokenURL string `yaml:"accessTokenUrl"`
}

// EffectiveAccessToken returns the structured token's value when present,
// else the bare string.
func (c *APIConfig) EffectiveAccessToken() string {
	if c.Token != nil && c.Token.AccessToken != "" {
		return c.Token.AccessToken
	}
	return c.AccessToken
}

// fieldValues maps every credential field's canonical option name to its
// current value.
func (c *APIConfig) fieldValues() map[string]string {
	return map[string]string{
		"apiKey":              c.APIKey,
		"accessToken":         c.EffectiveAccessToken(),
		"personalAccessToken": c.PersonalAccessToken,
		"clientId":            c.ClientID,
		"clientSecret":        c.ClientSecret,
		"orgId":               c.OrgID,
		"userId":              c.UserID,
		"accessTokenUrl":      c.AccessTokenURL,
	}
}

// MapToTargetConfig produces a flat record shaped for a specific target
// API. mapping relates target key to source field name: each target key
// carries the named field's current value. Every unmapped non-empty field
// is preserved under its own name, so nothing silently disappears.
//
// Example:
//
//	cfg := &APIConfig{APIKey: "k", OrgID: "org-1"}
//	out := cfg.MapToTargetConfig(map[string]string{"hapikey": "apiKey"})
//	// out == map[string]string{"hapikey": "k", "orgId": "org-1"}
func (c *APIConfig) MapToTargetConfig(mapping map[string]string) map[string]string {
	fields := c.fieldValues()
	out := make(map[string]string, len(fields))

	mapped := make(map[string]bool, len(mapping))
	for targetKey, sourceField := range mapping {
		if v, ok := fields[sourceField]; ok {
			out[targetKey] = v
			mapped[sourceField] = true
		}
	}

	for name, v := range fields {
		if v == "" || mapped[name] {
			continue
		}
		if _, taken := out[name]; !taken {
			out[name] = v
		}
	}

	return out
}

// ResolveAPI produces the frozen effective config for an API request:
// the embedded Config is resolved and the credential fields ride along
// untouched.
func ResolveAPI(user *APIConfig) *APIConfig {
	if user == nil {
		return &APIConfig{Config: *Resolve(nil)}
	}
	out := *user
	out.Config = *Resolve(&user.Config)
	return &out
}
