package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

var lifecycleInstallScripts = []string{"preinstall", "install", "postinstall"}

// PackageVersion defines one version of a package that the registry should serve.
type PackageVersion struct {
	Name                 string
	Version              string
	Dependencies         map[string]string
	DevDependencies      map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
	Bin                  map[string]string
	Scripts              map[string]string
	// Files are added to the tarball, keyed by path relative to the package root. If
	// "package.json" is present it is used verbatim; otherwise one is generated from the
	// fields above.
	Files      map[string]string
	Deprecated string
	// Tags are dist-tags that should point at this version, such as "beta".
	Tags []string
}

// packageJSON is the generated package.json. Field order matters: a package with no
// dependencies produces exactly {"name":"...","version":"..."}.
type packageJSON struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Bin                  map[string]string `json:"bin,omitempty"`
	Scripts              map[string]string `json:"scripts,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
}

// PackageJSON returns the package.json content that will be placed in the tarball.
func (p PackageVersion) PackageJSON() string {
	if s, ok := p.Files["package.json"]; ok {
		return s
	}
	data, _ := json.Marshal(packageJSON{
		Name:                 p.Name,
		Version:              p.Version,
		Bin:                  p.Bin,
		Scripts:              p.Scripts,
		Dependencies:         p.Dependencies,
		DevDependencies:      p.DevDependencies,
		OptionalDependencies: p.OptionalDependencies,
		PeerDependencies:     p.PeerDependencies,
	})
	return string(data)
}

func (p PackageVersion) files() map[string]string {
	files := make(map[string]string, len(p.Files)+1)
	for k, v := range p.Files {
		files[k] = v
	}
	files["package.json"] = p.PackageJSON()
	for _, target := range p.Bin {
		target = strings.TrimPrefix(target, "./")
		if _, ok := files[target]; !ok {
			files[target] = "#!/usr/bin/env node\nconsole.log(\"" + p.Name + "@" + p.Version + "\");\n"
		}
	}
	return files
}

func (p PackageVersion) executables() map[string]bool {
	ret := make(map[string]bool)
	for _, target := range p.Bin {
		ret[strings.TrimPrefix(target, "./")] = true
	}
	return ret
}

func (p PackageVersion) manifest() (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(p.PackageJSON()), &m); err != nil {
		return nil, fmt.Errorf("package.json for %s@%s is not valid JSON: %w", p.Name, p.Version, err)
	}
	if p.Deprecated != "" {
		m["deprecated"] = p.Deprecated
	}
	return m, nil
}

// TarballFilename returns the file name that npm uses for a package tarball: the unscoped
// package name, a hyphen, the version, and ".tgz".
func TarballFilename(name, version string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name + "-" + version + ".tgz"
}

type storedVersion struct {
	manifest  map[string]interface{}
	tarball   []byte
	filename  string
	published time.Time
}

type storedPackage struct {
	name     string
	versions map[string]*storedVersion
	distTags map[string]string
	created  time.Time
	// latestPinned is set once "latest" has been assigned explicitly, by a tag or a publish.
	latestPinned bool
}

func newStoredPackage(name string, now time.Time) *storedPackage {
	return &storedPackage{
		name:     name,
		versions: make(map[string]*storedVersion),
		distTags: make(map[string]string),
		created:  now,
	}
}

// recomputeLatest points the "latest" tag at the highest stable version, unless it was set
// explicitly to a version that still exists.
func (p *storedPackage) recomputeLatest() {
	if p.latestPinned {
		if _, ok := p.versions[p.distTags["latest"]]; ok {
			return
		}
	}
	var stable, all []*semver.Version
	for v := range p.versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		all = append(all, sv)
		if sv.Prerelease() == "" {
			stable = append(stable, sv)
		}
	}
	candidates := stable
	if len(candidates) == 0 {
		candidates = all
	}
	if len(candidates) == 0 {
		return
	}
	sort.Sort(semver.Collection(candidates))
	p.distTags["latest"] = candidates[len(candidates)-1].Original()
}

func (p *storedPackage) packument(baseURL string) map[string]interface{} {
	versions := make(map[string]interface{}, len(p.versions))
	times := map[string]interface{}{
		"created": p.created.Format(time.RFC3339),
	}
	modified := p.created
	for v, sv := range p.versions {
		versions[v] = sv.versionDocument(p.name, baseURL)
		times[v] = sv.published.Format(time.RFC3339)
		if sv.published.After(modified) {
			modified = sv.published
		}
	}
	times["modified"] = modified.Format(time.RFC3339)
	tags := make(map[string]string, len(p.distTags))
	for k, v := range p.distTags {
		tags[k] = v
	}
	return map[string]interface{}{
		"_id":       p.name,
		"name":      p.name,
		"dist-tags": tags,
		"versions":  versions,
		"time":      times,
	}
}

func (sv *storedVersion) versionDocument(name, baseURL string) map[string]interface{} {
	doc := make(map[string]interface{}, len(sv.manifest)+3)
	for k, v := range sv.manifest {
		doc[k] = v
	}
	version, _ := doc["version"].(string)
	doc["_id"] = name + "@" + version
	doc["dist"] = map[string]interface{}{
		"tarball":   TarballURL(baseURL, name, version),
		"shasum":    Shasum(sv.tarball),
		"integrity": Integrity(sv.tarball),
	}
	if scripts, ok := doc["scripts"].(map[string]interface{}); ok {
		for _, s := range lifecycleInstallScripts {
			if _, ok := scripts[s]; ok {
				doc["hasInstallScript"] = true
				break
			}
		}
	}
	return doc
}

// TarballURL returns the URL at which the registry serves a package tarball.
func TarballURL(baseURL, name, version string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + name + "/-/" + TarballFilename(name, version)
}
