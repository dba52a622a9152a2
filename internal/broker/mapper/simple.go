package mapper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/pcoip-broker/broker/internal/broker/agentclient"
)

// pbkdf2Iterations and pbkdf2Salt are fixed per the wire/config
// compatibility requirement: existing deployments already store hashes
// produced with these exact parameters. A per-user salt would be stronger
// but would break every existing config.
const (
	pbkdf2Iterations = 100000
	pbkdf2KeyLen     = 32
	pbkdf2Salt       = "IGNORED"
)

// HashPassword produces the PBKDF2-HMAC-SHA256 hex digest the simple mapper
// compares against. Exposed so operators can generate SIMPLE_MAPPER_PASSWORD_HASH.
func HashPassword(password string) string {
	key := pbkdf2.Key([]byte(password), []byte(pbkdf2Salt), pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return hex.EncodeToString(key)
}

// SimpleConfig configures the static single-user mapper.
type SimpleConfig struct {
	Username     string
	PasswordHash string
	// Resources is the static, ordered entitlement list for Username.
	Resources Mapping
	Client    agentclient.Allocator
}

// Simple is the reference "simple" mapper: one configured username, a
// PBKDF2-hashed password, and a fixed resource list. It embeds
// DefaultAllocator so it gets the shared agent-client allocation path for
// free; a mapper needing custom allocation would shadow AllocateSession
// with its own method of the same signature.
type Simple struct {
	DefaultAllocator
	username     string
	passwordHash string
	resources    Mapping
}

// NewSimple constructs a Simple mapper from cfg.
func NewSimple(cfg SimpleConfig) *Simple {
	return &Simple{
		DefaultAllocator: DefaultAllocator{Client: cfg.Client},
		username:         cfg.Username,
		passwordHash:     cfg.PasswordHash,
		resources:        cfg.Resources,
	}
}

// Map authenticates against the single configured username/password.
func (m *Simple) Map(ctx context.Context, creds Credentials, previousHost string) (Status, Mapping, error) {
	if creds.Username != m.username || HashPassword(creds.Password) != m.passwordHash {
		return StatusAuthenticationFailed, nil, nil
	}
	if len(m.resources) == 0 {
		return StatusNoMachine, nil, nil
	}
	return StatusSuccess, m.resources, nil
}

// Domains always returns an empty list: the simple mapper has no domain
// concept.
func (m *Simple) Domains() []string {
	return nil
}

// Name identifies this mapper for logs.
func (m *Simple) Name() string {
	return "simple"
}

// ParseSimpleResources turns "id:hostname[:name]" entries (as configured
// via SIMPLE_MAPPER_RESOURCES) into an ordered Mapping. Name defaults to
// hostname when omitted.
func ParseSimpleResources(entries []string) Mapping {
	mapping := make(Mapping, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			continue
		}
		id, hostname := parts[0], parts[1]
		name := hostname
		if len(parts) == 3 {
			name = parts[2]
		}
		mapping = append(mapping, Entry{ID: id, Resource: Resource{Name: name, Hostname: hostname}})
	}
	return mapping
}
