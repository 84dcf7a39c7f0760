package fixtures

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
)

var npmrcPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(\?)?\}`)

type npmrcEntry struct {
	key, value string
}

// Npmrc builds an .npmrc file. Entries are written in the order they were added.
type Npmrc struct {
	entries []npmrcEntry
}

// Set adds a raw key=value line.
func (n Npmrc) Set(key, value string) Npmrc {
	n.entries = append(append([]npmrcEntry(nil), n.entries...), npmrcEntry{key, value})
	return n
}

func (n Npmrc) Registry(registryURL string) Npmrc {
	return n.Set("registry", registryURL)
}

// ScopeRegistry sets the registry for "@scope:registry". The scope may be given with or
// without "@".
func (n Npmrc) ScopeRegistry(scope, registryURL string) Npmrc {
	return n.Set("@"+strings.TrimPrefix(scope, "@")+":registry", registryURL)
}

// AuthToken adds "//host/path/:_authToken=token".
func (n Npmrc) AuthToken(registryURL, token string) Npmrc {
	return n.Set(NerfDart(registryURL)+":_authToken", token)
}

// Auth adds "//host/path/:_auth=base64(user:password)".
func (n Npmrc) Auth(registryURL, username, password string) Npmrc {
	return n.Set(NerfDart(registryURL)+":_auth",
		base64.StdEncoding.EncodeToString([]byte(username+":"+password)))
}

// UsernamePassword adds the username and _password pair; npm stores the password base64-encoded.
func (n Npmrc) UsernamePassword(registryURL, username, password string) Npmrc {
	nerf := NerfDart(registryURL)
	return n.Set(nerf+":username", username).
		Set(nerf+":_password", base64.StdEncoding.EncodeToString([]byte(password)))
}

// Get returns the last value set for a key.
func (n Npmrc) Get(key string) (string, bool) {
	for i := len(n.entries) - 1; i >= 0; i-- {
		if n.entries[i].key == key {
			return n.entries[i].value, true
		}
	}
	return "", false
}

func (n Npmrc) String() string {
	var b strings.Builder
	for _, e := range n.entries {
		b.WriteString(e.key)
		b.WriteString("=")
		b.WriteString(e.value)
		b.WriteString("\n")
	}
	return b.String()
}

// ExpandEnv replaces ${VAR} placeholders in keys and values the way the package manager does.
// An unset variable is left as written, except that ${VAR?} expands to an empty string.
func (n Npmrc) ExpandEnv(env map[string]string) Npmrc {
	expand := func(s string) string {
		return npmrcPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
			parts := npmrcPlaceholder.FindStringSubmatch(m)
			if v, ok := env[parts[1]]; ok {
				return v
			}
			if parts[2] == "?" {
				return ""
			}
			return m
		})
	}
	ret := Npmrc{entries: make([]npmrcEntry, 0, len(n.entries))}
	for _, e := range n.entries {
		ret.entries = append(ret.entries, npmrcEntry{expand(e.key), expand(e.value)})
	}
	return ret
}

// NerfDart returns the credential prefix npm uses for a registry URL: the URL without its
// scheme, always ending in a slash. "http://localhost:4873/npm" becomes "//localhost:4873/npm/".
func NerfDart(registryURL string) string {
	u, err := url.Parse(registryURL)
	if err != nil || u.Host == "" {
		return "//" + strings.TrimSuffix(strings.TrimPrefix(registryURL, "//"), "/") + "/"
	}
	path := strings.TrimSuffix(u.Path, "/")
	return "//" + u.Host + path + "/"
}
