package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const userPathPrefix = "/-/user/org.couchdb.user:"

// Options configures a Registry.
type Options struct {
	// HtpasswdPath is where user accounts are stored. If empty, users exist only in memory.
	HtpasswdPath string
	// RequireAuth makes every read require valid credentials.
	RequireAuth bool
	// RestrictedScopes lists scopes ("@private") whose packages can only be read with valid
	// credentials.
	RestrictedScopes []string
	// Tokens are static bearer tokens, mapped to the username they authenticate as.
	Tokens map[string]string
	// OTP maps a username to the one-time password that must accompany their publishes.
	OTP map[string]string
	// Secret signs issued tokens. A random secret is used if empty.
	Secret []byte
	// Now is used for timestamps in package documents; defaults to time.Now.
	Now func() time.Time
}

// RequestRecord is what the registry remembers about each request it received.
type RequestRecord struct {
	ID            string
	Method        string
	Path          string
	Authorization string
	OTP           string
	UserAgent     string
	Status        int
}

// Publish is a successful publish, as sent by the client.
type Publish struct {
	Name     string
	Version  string
	Tag      string
	Access   string
	User     string
	OTP      string
	Manifest map[string]interface{}
	Tarball  []byte
}

type Registry struct {
	opts      Options
	secret    []byte
	baseURL   string
	packages  map[string]*storedPackage
	published []Publish
	requests  []RequestRecord
	overrides map[string]http.Handler
	users     *userStore
	lock      sync.Mutex
}

// New creates an empty registry.
func New(opts Options) (*Registry, error) {
	users, err := newUserStore(opts.HtpasswdPath)
	if err != nil {
		return nil, err
	}
	secret := opts.Secret
	if len(secret) == 0 {
		secret = []byte(uuid.NewString())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		opts:      opts,
		secret:    secret,
		packages:  make(map[string]*storedPackage),
		overrides: make(map[string]http.Handler),
		users:     users,
	}, nil
}

// SetBaseURL tells the registry the URL that clients use to reach it.
func (r *Registry) SetBaseURL(baseURL string) {
	r.lock.Lock()
	r.baseURL = strings.TrimSuffix(baseURL, "/")
	r.lock.Unlock()
}

// URL returns the base URL followed by a slash, which is the form package managers expect in
// configuration files.
func (r *Registry) URL() string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.baseURL + "/"
}

// AddPackage makes a package version available.
func (r *Registry) AddPackage(p PackageVersion) error {
	manifest, err := p.manifest()
	if err != nil {
		return err
	}
	tarball, err := BuildTarball(p.files(), p.executables())
	if err != nil {
		return fmt.Errorf("could not build tarball for %s@%s: %w", p.Name, p.Version, err)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.storeVersion(p.Name, p.Version, manifest, tarball, p.Tags)
	return nil
}

// AddPackages adds many package versions, building their tarballs in parallel.
func (r *Registry) AddPackages(packages ...PackageVersion) error {
	var g errgroup.Group
	for _, p := range packages {
		p := p
		g.Go(func() error { return r.AddPackage(p) })
	}
	return g.Wait()
}

// storeVersion must be called with the lock held.
func (r *Registry) storeVersion(name, version string, manifest map[string]interface{}, tarball []byte, tags []string) {
	now := r.opts.Now()
	pkg := r.packages[name]
	if pkg == nil {
		pkg = newStoredPackage(name, now)
		r.packages[name] = pkg
	}
	pkg.versions[version] = &storedVersion{
		manifest:  manifest,
		tarball:   tarball,
		filename:  TarballFilename(name, version),
		published: now,
	}
	for _, t := range tags {
		pkg.distTags[t] = version
		if t == "latest" {
			pkg.latestPinned = true
		}
	}
	pkg.recomputeLatest()
}

// Override makes the registry delegate requests for an exact path (after percent-decoding, for
// instance "/basic-1") to another handler. This is used to inject failures.
func (r *Registry) Override(path string, handler http.Handler) {
	r.lock.Lock()
	r.overrides[path] = handler
	r.lock.Unlock()
}

// Requests returns every request received so far.
func (r *Registry) Requests() []RequestRecord {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]RequestRecord(nil), r.requests...)
}

// RequestsFor returns the requests whose decoded path equals path.
func (r *Registry) RequestsFor(path string) []RequestRecord {
	var ret []RequestRecord
	for _, rec := range r.Requests() {
		if rec.Path == path {
			ret = append(ret, rec)
		}
	}
	return ret
}

// Publishes returns every successful publish.
func (r *Registry) Publishes() []Publish {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Publish(nil), r.published...)
}

// HasVersion reports whether a package version exists, either predefined or published.
func (r *Registry) HasVersion(name, version string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	pkg := r.packages[name]
	return pkg != nil && pkg.versions[version] != nil
}

// Versions lists the versions of a package in no particular order.
func (r *Registry) Versions(name string) []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	var ret []string
	if pkg := r.packages[name]; pkg != nil {
		for v := range pkg.versions {
			ret = append(ret, v)
		}
	}
	return ret
}

// Integrity returns the dist.integrity value of a package version.
func (r *Registry) Integrity(name, version string) (string, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if pkg := r.packages[name]; pkg != nil {
		if sv := pkg.versions[version]; sv != nil {
			return Integrity(sv.tarball), true
		}
	}
	return "", false
}

// DistTags returns a copy of a package's dist-tags.
func (r *Registry) DistTags(name string) map[string]string {
	r.lock.Lock()
	defer r.lock.Unlock()
	ret := make(map[string]string)
	if pkg := r.packages[name]; pkg != nil {
		for k, v := range pkg.distTags {
			ret[k] = v
		}
	}
	return ret
}

// UserExists reports whether an account has been created for name.
func (r *Registry) UserExists(name string) bool {
	return r.users.exists(name)
}

// CreateUser creates an account directly and returns a token for it, as if the client had
// called the user creation endpoint.
func (r *Registry) CreateUser(name, password string) (string, error) {
	if _, err := r.users.addOrLogin(name, password); err != nil {
		return "", err
	}
	return issueToken(r.secret, name)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := decodedPath(req)
	rec := RequestRecord{
		ID:            uuid.NewString(),
		Method:        req.Method,
		Path:          path,
		Authorization: req.Header.Get("Authorization"),
		OTP:           req.Header.Get("npm-otp"),
		UserAgent:     req.Header.Get("User-Agent"),
	}
	sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		rec.Status = sr.status
		r.lock.Lock()
		r.requests = append(r.requests, rec)
		r.lock.Unlock()
	}()

	r.lock.Lock()
	override := r.overrides[path]
	r.lock.Unlock()
	if override != nil {
		override.ServeHTTP(sr, req)
		return
	}

	r.route(sr, req, path)
}

// PassThrough returns a handler that serves requests normally, ignoring overrides. It is meant
// to be used as the last handler in an override sequence.
func (r *Registry) PassThrough() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.route(w, req, decodedPath(req))
	})
}

func decodedPath(req *http.Request) string {
	path, err := url.PathUnescape(req.URL.EscapedPath())
	if err != nil {
		path = req.URL.Path
	}
	if path == "" {
		path = "/"
	}
	return path
}

func (r *Registry) route(w http.ResponseWriter, req *http.Request, path string) {
	switch {
	case path == "/-/ping":
		writeJSON(w, http.StatusOK, map[string]interface{}{})
	case path == "/-/whoami" && req.Method == http.MethodGet:
		r.handleWhoami(w, req)
	case strings.HasPrefix(path, userPathPrefix) && req.Method == http.MethodPut:
		r.handleAddUser(w, req, strings.TrimPrefix(path, userPathPrefix))
	default:
		name, rest, ok := splitPackagePath(path)
		if !ok {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		switch {
		case rest == "" && (req.Method == http.MethodGet || req.Method == http.MethodHead):
			r.handlePackument(w, req, name)
		case rest == "" && req.Method == http.MethodPut:
			r.handlePublish(w, req, name)
		case strings.HasPrefix(rest, "/-/") && (req.Method == http.MethodGet || req.Method == http.MethodHead):
			r.handleTarball(w, req, name, strings.TrimPrefix(rest, "/-/"))
		case req.Method == http.MethodGet:
			r.handleVersion(w, req, name, strings.TrimPrefix(rest, "/"))
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// splitPackagePath separates "/@scope/name/rest" or "/name/rest" into the package name and the
// remainder of the path.
func splitPackagePath(path string) (name, rest string, ok bool) {
	p := strings.TrimPrefix(path, "/")
	if p == "" || strings.HasPrefix(p, "-/") {
		return "", "", false
	}
	segments := strings.SplitN(p, "/", 3)
	if strings.HasPrefix(segments[0], "@") {
		if len(segments) < 2 || segments[1] == "" {
			return "", "", false
		}
		name = segments[0] + "/" + segments[1]
		if len(segments) == 3 {
			rest = "/" + segments[2]
		}
		return name, rest, true
	}
	name = segments[0]
	if len(segments) > 1 {
		rest = "/" + strings.Join(segments[1:], "/")
	}
	return name, rest, true
}

func (r *Registry) scopeIsRestricted(name string) bool {
	if r.opts.RequireAuth {
		return true
	}
	for _, scope := range r.opts.RestrictedScopes {
		if strings.HasPrefix(name, strings.TrimSuffix(scope, "/")+"/") {
			return true
		}
	}
	return false
}

// checkReadAccess writes an error response and returns false if the request may not read name.
func (r *Registry) checkReadAccess(w http.ResponseWriter, req *http.Request, name string) bool {
	if !r.scopeIsRestricted(name) {
		return true
	}
	if _, err := r.authenticate(req.Header.Get("Authorization")); err != nil {
		if errors.Is(err, errNoCredentials) {
			writeError(w, http.StatusUnauthorized, "authentication required")
		} else {
			writeError(w, http.StatusUnauthorized, "bad username/password, access denied")
		}
		return false
	}
	return true
}

func (r *Registry) currentBaseURL(req *http.Request) string {
	r.lock.Lock()
	base := r.baseURL
	r.lock.Unlock()
	if base != "" {
		return base
	}
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + req.Host
}

func (r *Registry) handlePackument(w http.ResponseWriter, req *http.Request, name string) {
	if !r.checkReadAccess(w, req, name) {
		return
	}
	baseURL := r.currentBaseURL(req)
	r.lock.Lock()
	pkg := r.packages[name]
	var doc map[string]interface{}
	if pkg != nil {
		doc = pkg.packument(baseURL)
	}
	r.lock.Unlock()
	if doc == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (r *Registry) handleVersion(w http.ResponseWriter, req *http.Request, name, versionOrTag string) {
	if !r.checkReadAccess(w, req, name) {
		return
	}
	baseURL := r.currentBaseURL(req)
	r.lock.Lock()
	var doc map[string]interface{}
	if pkg := r.packages[name]; pkg != nil {
		version := versionOrTag
		if tagged, ok := pkg.distTags[versionOrTag]; ok {
			version = tagged
		}
		if sv := pkg.versions[version]; sv != nil {
			doc = sv.versionDocument(name, baseURL)
		}
	}
	r.lock.Unlock()
	if doc == nil {
		writeError(w, http.StatusNotFound, "version not found: "+versionOrTag)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (r *Registry) handleTarball(w http.ResponseWriter, req *http.Request, name, filename string) {
	if !r.checkReadAccess(w, req, name) {
		return
	}
	r.lock.Lock()
	var data []byte
	if pkg := r.packages[name]; pkg != nil {
		for _, sv := range pkg.versions {
			if sv.filename == filename {
				data = sv.tarball
				break
			}
		}
	}
	r.lock.Unlock()
	if data == nil {
		writeError(w, http.StatusNotFound, "tarball not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	if req.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func (r *Registry) handleWhoami(w http.ResponseWriter, req *http.Request) {
	user, err := r.authenticate(req.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "you must be logged in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": user})
}

type addUserRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (r *Registry) handleAddUser(w http.ResponseWriter, req *http.Request, pathName string) {
	var body addUserRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed user document")
		return
	}
	if body.Name == "" {
		body.Name = pathName
	}
	if body.Name != pathName || body.Password == "" {
		writeError(w, http.StatusBadRequest, "user name and password are required")
		return
	}
	if _, err := r.users.addOrLogin(body.Name, body.Password); err != nil {
		if errors.Is(err, errInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "bad username/password, access denied")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	token, err := issueToken(r.secret, body.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":    true,
		"id":    "org.couchdb.user:" + body.Name,
		"token": token,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
