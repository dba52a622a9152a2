// Package mapper defines the authentication and entitlement capability the
// protocol state machine relies on, plus reference implementations.
// Mappers are pluggable collaborators, not part of the protocol core, but
// the two reference implementations here match the interface every
// production mapper must satisfy.
package mapper

import (
	"context"

	"github.com/pcoip-broker/broker/internal/broker/agentclient"
)

// Resource is a workstation a user may be entitled to connect to.
// Immutable once created.
type Resource struct {
	Name     string
	Hostname string
}

// Credentials is a username/password pair, optionally scoped to a domain.
// Passwords pass through memory only; they are forwarded to the agent at
// allocate time and MUST NOT be persisted to logs or a durable credential
// store.
type Credentials struct {
	Username string
	Password string
	Domain   string
}

// Entry pairs a stable resource id with its Resource. Mapping is a slice,
// not a map, because resource ordering must be preserved end-to-end from
// mapper output to the wire response; Go maps do not preserve insertion
// order.
type Entry struct {
	ID       string
	Resource Resource
}

// Mapping is an ordered list of entitled resources.
type Mapping []Entry

// Lookup returns the Resource for id, preserving the linear-scan contract
// implied by Mapping's slice representation.
func (m Mapping) Lookup(id string) (Resource, bool) {
	for _, e := range m {
		if e.ID == id {
			return e.Resource, true
		}
	}
	return Resource{}, false
}

// Status is the outcome of a Map call.
type Status int

const (
	StatusSuccess Status = iota
	StatusAuthenticationFailed
	StatusNoMachine
	StatusResourceUnresponsive
	StatusInternalError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusAuthenticationFailed:
		return "AUTHENTICATION_FAILED"
	case StatusNoMachine:
		return "NO_MACHINE"
	case StatusResourceUnresponsive:
		return "RESOURCE_UNRESPONSIVE"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Mapper is the capability required by the protocol state machine: verify
// credentials and enumerate entitlements.
type Mapper interface {
	// Map authenticates credentials and returns the ordered resource
	// mapping. On StatusSuccess the mapping MUST be non-empty; on any
	// other status it MUST be empty. previousHost is accepted for
	// compatibility with mapper extensions but has no defined semantics
	// in this broker; do not invent behavior for it.
	Map(ctx context.Context, creds Credentials, previousHost string) (Status, Mapping, error)

	// Domains lists the auth domains this mapper accepts, surfaced in
	// HelloResp.
	Domains() []string

	// Name identifies the mapper for logs.
	Name() string
}

// SessionAllocator is the optional capability a Mapper may additionally
// implement to override the default agent-client allocation path — for
// example a mapper that proxies to a different session allocator entirely.
// Go interfaces have no default method bodies, so this override is modeled
// as method shadowing: a Mapper that embeds DefaultAllocator gets the
// default behavior for free, and a Mapper that defines its own
// AllocateSession method shadows it.
type SessionAllocator interface {
	AllocateSession(ctx context.Context, req agentclient.Request) (agentclient.Session, agentclient.Status, error)
}

// DefaultAllocator is embedded by reference mappers that don't need to
// override session allocation; it forwards to the shared agent client.
type DefaultAllocator struct {
	Client agentclient.Allocator
}

// AllocateSession forwards to the wrapped agent client.
func (d DefaultAllocator) AllocateSession(ctx context.Context, req agentclient.Request) (agentclient.Session, agentclient.Status, error) {
	return d.Client.Allocate(ctx, req)
}
