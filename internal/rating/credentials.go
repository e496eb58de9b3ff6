package rating

import (
	"os"
	"strings"
)

// Credentials are the secrets behind an account's CredentialsRef.
type Credentials struct {
	ClientID     string
	ClientSecret string
	APIKey       string
}

// Empty reports whether no secret is set.
func (c Credentials) Empty() bool {
	return c.ClientID == "" && c.ClientSecret == "" && c.APIKey == ""
}

// CredentialSource resolves a credentials reference.
type CredentialSource interface {
	Lookup(ref string) (Credentials, error)
}

// EnvCredentials reads CARRIER_CRED_<REF>_CLIENT_ID, _CLIENT_SECRET and
// _API_KEY, where REF is the upper-cased reference with non-alphanumerics
// replaced by underscores.
type EnvCredentials struct {
	LookupEnv func(string) (string, bool)
}

// Lookup implements CredentialSource.
func (e EnvCredentials) Lookup(ref string) (Credentials, error) {
	lookup := e.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := "CARRIER_CRED_" + envKey(ref) + "_"
	get := func(name string) string {
		v, _ := lookup(prefix + name)
		return strings.TrimSpace(v)
	}
	return Credentials{
		ClientID:     get("CLIENT_ID"),
		ClientSecret: get("CLIENT_SECRET"),
		APIKey:       get("API_KEY"),
	}, nil
}

// StaticCredentials maps references to credentials; used by tests and seeds.
type StaticCredentials map[string]Credentials

// Lookup implements CredentialSource.
func (s StaticCredentials) Lookup(ref string) (Credentials, error) {
	return s[ref], nil
}

func envKey(ref string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(ref)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
