package fixtures

import (
	"bytes"

	"github.com/BurntSushi/toml"
)

// Bunfig is the subset of bunfig.toml that the tests configure.
type Bunfig struct {
	Install InstallConfig
}

// InstallConfig is the [install] section.
type InstallConfig struct {
	Registry *RegistryConfig
	// Scopes maps a scope name, with or without the leading "@", to its registry.
	Scopes       map[string]RegistryConfig
	Cache        string
	CAFile       string
	CA           string
	GlobalBinDir string
	Optional     *bool
	// SaveTextLockfile writes bun.lock instead of the binary lockfile.
	SaveTextLockfile *bool
}

// RegistryConfig is a registry written either as a plain URL string or as an object with
// credentials.
type RegistryConfig struct {
	URL      string
	Token    string
	Username string
	Password string
	// ForceObject writes {url = "..."} even when there are no credentials.
	ForceObject bool
}

func (r RegistryConfig) tomlValue() interface{} {
	if r.Token == "" && r.Username == "" && r.Password == "" && !r.ForceObject {
		return r.URL
	}
	obj := map[string]interface{}{"url": r.URL}
	if r.Token != "" {
		obj["token"] = r.Token
	}
	if r.Username != "" {
		obj["username"] = r.Username
	}
	if r.Password != "" {
		obj["password"] = r.Password
	}
	return obj
}

// Encode renders the configuration as TOML.
func (b Bunfig) Encode() (string, error) {
	install := make(map[string]interface{})
	if b.Install.Registry != nil {
		install["registry"] = b.Install.Registry.tomlValue()
	}
	if len(b.Install.Scopes) > 0 {
		scopes := make(map[string]interface{}, len(b.Install.Scopes))
		for name, r := range b.Install.Scopes {
			scopes[name] = r.tomlValue()
		}
		install["scopes"] = scopes
	}
	setString(install, "cache", b.Install.Cache)
	setString(install, "cafile", b.Install.CAFile)
	setString(install, "ca", b.Install.CA)
	setString(install, "globalBinDir", b.Install.GlobalBinDir)
	if b.Install.Optional != nil {
		install["optional"] = *b.Install.Optional
	}
	if b.Install.SaveTextLockfile != nil {
		install["saveTextLockfile"] = *b.Install.SaveTextLockfile
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(map[string]interface{}{"install": install}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func setString(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}
