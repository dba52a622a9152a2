// Package protocol implements the broker's stateless handshake state
// machine: a pure function of (request, optional session) to (optional new
// session, optional response). No hidden state; deterministic modulo the
// mapper and the agent call it invokes.
package protocol

import (
	"context"
	"os"

	"github.com/pcoip-broker/broker/internal/broker/agentclient"
	"github.com/pcoip-broker/broker/internal/broker/mapper"
	"github.com/pcoip-broker/broker/internal/broker/transport"
)

// State is one of the five handshake states.
type State int

const (
	WaitingForHello State = iota
	WaitingForAuthenticate
	WaitingForGetResourceList
	WaitingForAllocateResource
	WaitingForBye
)

func (s State) String() string {
	switch s {
	case WaitingForHello:
		return "WAITING_FOR_HELLO"
	case WaitingForAuthenticate:
		return "WAITING_FOR_AUTHENTICATE"
	case WaitingForGetResourceList:
		return "WAITING_FOR_GETRESOURCELIST"
	case WaitingForAllocateResource:
		return "WAITING_FOR_ALLOCATERESOURCE"
	case WaitingForBye:
		return "WAITING_FOR_BYE"
	default:
		return "UNKNOWN"
	}
}

// Session is the per-client protocol state threaded between requests by
// the session store. Owned entirely by the protocol; the store treats it
// as an opaque blob.
type Session struct {
	State State

	Username string
	Password string
	Domain   string

	// Resources is set on successful AUTHENTICATE and cleared on auth
	// failure. Order matches mapper output and MUST be preserved when
	// serialized to the client.
	Resources mapper.Mapping
}

// ClientInfo carries the handshake metadata the protocol needs from the
// HTTP layer (the client's declared name, used in the agent's launch
// request) without coupling the state machine to net/http.
type ClientInfo struct {
	Name string
}

// Handler is the stateless PCoIP broker protocol handler.
type Handler struct {
	Mapper      mapper.Mapper
	AgentClient agentclient.Allocator

	// Hostname is reported in HelloResp; defaults to the OS hostname.
	Hostname string
}

// NewHandler builds a Handler, defaulting Hostname to os.Hostname().
func NewHandler(m mapper.Mapper, agent agentclient.Allocator) *Handler {
	hostname, _ := os.Hostname()
	return &Handler{Mapper: m, AgentClient: agent, Hostname: hostname}
}

// Handle advances the state machine by one request. sess is nil when no
// session currently exists for this client. The returned session is nil
// when the session should be destroyed (BYE, protocol violation, probe
// Hello). The returned response is nil only for a protocol violation; any
// other nil-response/non-nil-session combination is a bug in this handler.
func (h *Handler) Handle(ctx context.Context, req transport.Request, sess *Session, info ClientInfo) (*Session, transport.Response) {
	// Bye always terminates, regardless of current state. Checked before
	// any state-specific routing.
	if _, ok := req.(transport.ByeRequest); ok {
		return nil, transport.ByeResponse{}
	}

	// A probe Hello is answered from any state and never owns a session;
	// whatever session existed is discarded so the probe stays neutral.
	if hello, ok := req.(transport.HelloRequest); ok && hello.IsProbe() {
		return nil, h.helloResponse()
	}

	if sess == nil {
		if _, ok := req.(transport.HelloRequest); !ok {
			// No session and not a Hello: nothing to violate, but there is
			// also nothing to start. Treat as a protocol violation with no
			// session to destroy.
			return nil, nil
		}
		// The non-probe Hello opens the handshake proper.
		return &Session{State: WaitingForAuthenticate}, h.helloResponse()
	}

	switch sess.State {
	case WaitingForAuthenticate:
		authReq, ok := req.(transport.AuthenticateRequest)
		if !ok {
			return nil, nil
		}
		return h.handleAuthenticate(ctx, authReq, sess)
	case WaitingForGetResourceList:
		if _, ok := req.(transport.GetResourceListRequest); !ok {
			return nil, nil
		}
		return h.handleGetResourceList(sess)
	case WaitingForAllocateResource:
		allocReq, ok := req.(transport.AllocateResourceRequest)
		if !ok {
			return nil, nil
		}
		return h.handleAllocateResource(ctx, allocReq, sess, info)
	default:
		// WaitingForHello with a live session, or WaitingForBye reached by
		// anything other than Bye (already handled above): any request here
		// is unexpected for the current state.
		return nil, nil
	}
}

func (h *Handler) helloResponse() transport.HelloResponse {
	return transport.HelloResponse{
		ProductName:    "PCoIP Connection Broker",
		ProductVersion: "1.0",
		Platform:       "linux",
		Locale:         "en_US",
		IPAddress:      "N/A",
		Hostname:       h.Hostname,
		Domains:        h.Mapper.Domains(),
	}
}

func (h *Handler) handleAuthenticate(ctx context.Context, req transport.AuthenticateRequest, sess *Session) (*Session, transport.Response) {
	creds := mapper.Credentials{Username: req.Username, Password: req.Password, Domain: req.Domain}
	status, resources, _ := h.Mapper.Map(ctx, creds, "")

	if status != mapper.StatusSuccess {
		// Stays at WAITING_FOR_AUTHENTICATE with credentials/resources
		// cleared, letting the client retry. No cap is imposed on repeated
		// failed attempts.
		return &Session{State: WaitingForAuthenticate}, transport.AuthFailedResponse{}
	}

	return &Session{
		State:     WaitingForGetResourceList,
		Username:  req.Username,
		Password:  req.Password,
		Domain:    req.Domain,
		Resources: resources,
	}, transport.AuthSuccessResponse{}
}

func (h *Handler) handleGetResourceList(sess *Session) (*Session, transport.Response) {
	entries := make([]transport.ResourceListEntry, 0, len(sess.Resources))
	for _, e := range sess.Resources {
		entries = append(entries, transport.ResourceListEntry{ResourceID: e.ID, ResourceName: e.Resource.Name})
	}

	next := &Session{
		State:     WaitingForAllocateResource,
		Username:  sess.Username,
		Password:  sess.Password,
		Domain:    sess.Domain,
		Resources: sess.Resources,
	}
	return next, transport.GetResourceListResponse{Resources: entries}
}

func (h *Handler) handleAllocateResource(ctx context.Context, req transport.AllocateResourceRequest, sess *Session, info ClientInfo) (*Session, transport.Response) {
	resource, ok := sess.Resources.Lookup(req.ResourceID)
	if !ok {
		return sess, transport.AllocateFailedResponse{ResultID: "FAILED_USER_AUTH"}
	}

	allocator := h.sessionAllocator()

	agentSess, status, err := allocator.AllocateSession(ctx, agentclient.Request{
		ResourceID:    req.ResourceID,
		AgentHostname: resource.Hostname,
		Username:      sess.Username,
		Password:      sess.Password,
		Domain:        sess.Domain,
		ClientName:    info.Name,
	})

	if err != nil || status != agentclient.StatusSuccessful {
		resultID := allocateFailureResultID(status)
		// Remains WAITING_FOR_ALLOCATERESOURCE so the client may pick
		// another resource.
		return sess, transport.AllocateFailedResponse{ResultID: resultID}
	}

	nextSess := &Session{
		State:     WaitingForBye,
		Username:  sess.Username,
		Password:  sess.Password,
		Domain:    sess.Domain,
		Resources: sess.Resources,
	}
	return nextSess, transport.AllocateSuccessResponse{
		IPAddress:  agentSess.IPAddress,
		Hostname:   resource.Hostname,
		SNI:        agentSess.SNI,
		Port:       agentSess.Port,
		SessionID:  agentSess.SessionID,
		ConnectTag: agentSess.SessionTag,
		ResourceID: agentSess.ResourceID,
	}
}

// sessionAllocator returns the mapper's own allocator override if it
// implements mapper.SessionAllocator, otherwise falls back to the
// handler's shared agent client.
func (h *Handler) sessionAllocator() mapper.SessionAllocator {
	if sa, ok := h.Mapper.(mapper.SessionAllocator); ok {
		return sa
	}
	return mapper.DefaultAllocator{Client: h.AgentClient}
}

func allocateFailureResultID(status agentclient.Status) string {
	switch status {
	case agentclient.StatusFailedUserAuth:
		return "FAILED_USER_AUTH"
	case agentclient.StatusFailedAnotherSessionStarted:
		// Misspelling preserved exactly for wire compatibility.
		return "FAILED_ANOTHER_SESION_STARTED"
	default:
		// Connection/endpoint/XML errors all map to FAILED_USER_AUTH per
		// the agent failure taxonomy.
		return "FAILED_USER_AUTH"
	}
}
