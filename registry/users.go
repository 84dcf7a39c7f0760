package registry

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "contract-tests-registry"

var (
	errNoCredentials      = errors.New("no credentials")
	errInvalidCredentials = errors.New("invalid credentials")
)

// userStore keeps user passwords as bcrypt hashes, optionally mirrored to an htpasswd file so
// that several registries in one test run can share accounts.
type userStore struct {
	path   string
	hashes map[string][]byte
	lock   sync.Mutex
}

func newUserStore(path string) (*userStore, error) {
	s := &userStore{path: path, hashes: make(map[string][]byte)}
	if path == "" {
		return s, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read htpasswd file: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, hash, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed htpasswd line %q", line)
		}
		s.hashes[name] = []byte(hash)
	}
	return s, scanner.Err()
}

// addOrLogin creates a user, or verifies the password of an existing one. It reports whether the
// user was newly created.
func (s *userStore) addOrLogin(name, password string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if hash, ok := s.hashes[name]; ok {
		if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
			return false, errInvalidCredentials
		}
		return false, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return false, err
	}
	s.hashes[name] = hash
	return true, s.save()
}

func (s *userStore) check(name, password string) bool {
	s.lock.Lock()
	hash, ok := s.hashes[name]
	s.lock.Unlock()
	return ok && bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

func (s *userStore) exists(name string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.hashes[name]
	return ok
}

// save must be called with the lock held.
func (s *userStore) save() error {
	if s.path == "" {
		return nil
	}
	names := make([]string, 0, len(s.hashes))
	for n := range s.hashes {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%s:%s\n", n, s.hashes[n])
	}
	return os.WriteFile(s.path, []byte(b.String()), 0o600)
}

type tokenClaims struct {
	jwt.RegisteredClaims
}

func issueToken(secret []byte, username string) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			Subject:  username,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, token string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(tokenIssuer))
	parsed, err := parser.ParseWithClaims(token, &tokenClaims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s", errInvalidCredentials, err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || claims.Subject == "" {
		return "", errInvalidCredentials
	}
	return claims.Subject, nil
}

// authenticate resolves the Authorization header to a username.
func (r *Registry) authenticate(header string) (string, error) {
	if header == "" {
		return "", errNoCredentials
	}
	scheme, value, _ := strings.Cut(header, " ")
	value = strings.TrimSpace(value)
	switch strings.ToLower(scheme) {
	case "bearer":
		if user, ok := r.opts.Tokens[value]; ok {
			return user, nil
		}
		return parseToken(r.secret, value)
	case "basic":
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return "", errInvalidCredentials
		}
		name, password, ok := strings.Cut(string(decoded), ":")
		if !ok || !r.users.check(name, password) {
			return "", errInvalidCredentials
		}
		return name, nil
	default:
		return "", errInvalidCredentials
	}
}
