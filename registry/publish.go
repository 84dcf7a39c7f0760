package registry

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type publishAttachment struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
	Length      int    `json:"length"`
}

type publishRequest struct {
	Name        string                            `json:"name"`
	DistTags    map[string]string                 `json:"dist-tags"`
	Versions    map[string]map[string]interface{} `json:"versions"`
	Access      *string                           `json:"access"`
	Attachments map[string]publishAttachment      `json:"_attachments"`
}

func (r *Registry) handlePublish(w http.ResponseWriter, req *http.Request, name string) {
	user, err := r.authenticate(req.Header.Get("Authorization"))
	if err != nil {
		if errors.Is(err, errNoCredentials) {
			writeError(w, http.StatusUnauthorized, "authentication required")
		} else {
			writeError(w, http.StatusUnauthorized, "bad username/password, access denied")
		}
		return
	}

	otp := req.Header.Get("npm-otp")
	if expected, ok := r.opts.OTP[user]; ok && otp != expected {
		w.Header().Set("WWW-Authenticate", "OTP")
		if otp == "" {
			writeError(w, http.StatusUnauthorized, "this operation requires a one-time password")
		} else {
			writeError(w, http.StatusUnauthorized, "invalid one-time password")
		}
		return
	}

	var body publishRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed publish document")
		return
	}
	publish, status, err := r.validatePublish(name, user, otp, body)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	r.lock.Lock()
	if pkg := r.packages[name]; pkg != nil && pkg.versions[publish.Version] != nil {
		r.lock.Unlock()
		writeError(w, http.StatusForbidden,
			fmt.Sprintf("cannot publish over the previously published versions: %s.", publish.Version))
		return
	}
	r.storeVersion(name, publish.Version, publish.Manifest, publish.Tarball, []string{publish.Tag})
	r.published = append(r.published, publish)
	r.lock.Unlock()

	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "success": true})
}

func (r *Registry) validatePublish(name, user, otp string, body publishRequest) (Publish, int, error) {
	if body.Name != name {
		return Publish{}, http.StatusBadRequest, fmt.Errorf("package name %q does not match URL %q", body.Name, name)
	}
	if len(body.Versions) != 1 {
		return Publish{}, http.StatusBadRequest, errors.New("publish document must contain exactly one version")
	}
	var version string
	var manifest map[string]interface{}
	for v, m := range body.Versions {
		version, manifest = v, m
	}
	if private, _ := manifest["private"].(bool); private {
		return Publish{}, http.StatusForbidden, errors.New("cannot publish a private package")
	}
	if len(body.Attachments) != 1 {
		return Publish{}, http.StatusBadRequest, errors.New("publish document must contain exactly one attachment")
	}
	var tarball []byte
	for filename, a := range body.Attachments {
		if filename != TarballFilename(name, version) {
			return Publish{}, http.StatusBadRequest, fmt.Errorf("unexpected attachment name %q", filename)
		}
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return Publish{}, http.StatusBadRequest, errors.New("attachment data is not valid base64")
		}
		if a.Length != 0 && a.Length != len(data) {
			return Publish{}, http.StatusBadRequest, fmt.Errorf("attachment length %d does not match data length %d", a.Length, len(data))
		}
		tarball = data
	}
	if _, err := ReadTarball(tarball); err != nil {
		return Publish{}, http.StatusBadRequest, err
	}
	if dist, ok := manifest["dist"].(map[string]interface{}); ok {
		if integrity, _ := dist["integrity"].(string); integrity != "" && integrity != Integrity(tarball) {
			return Publish{}, http.StatusBadRequest, errors.New("integrity of attachment does not match dist.integrity")
		}
	}

	tag := "latest"
	for t, v := range body.DistTags {
		if v == version {
			tag = t
		}
	}
	access := ""
	if body.Access != nil {
		access = *body.Access
	}
	stored := make(map[string]interface{}, len(manifest))
	for k, v := range manifest {
		if k != "dist" {
			stored[k] = v
		}
	}
	return Publish{
		Name:     name,
		Version:  version,
		Tag:      tag,
		Access:   access,
		User:     user,
		OTP:      otp,
		Manifest: stored,
		Tarball:  tarball,
	}, http.StatusOK, nil
}
