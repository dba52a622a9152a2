// Package transport defines the tagged-variant request and response messages
// exchanged between a PCoIP client and the broker. These are plain value
// types; wire encoding lives in the codec package and state transitions live
// in the protocol package.
package transport

import "log/slog"

// Request is implemented by every inbound message variant. The protocol
// handler discriminates on the concrete type via a type switch rather than
// a discriminator field, since Go has no native sum type.
type Request interface {
	isRequest()
}

// Response is implemented by every outbound message variant.
type Response interface {
	isResponse()
}

// HelloRequest is sent once per connection to begin (or probe) the
// handshake. Only Hostname and ProductName are consumed by the broker;
// other client-info fields are accepted on the wire but discarded.
type HelloRequest struct {
	Hostname    string
	ProductName string
}

func (HelloRequest) isRequest() {}

// IsProbe reports whether this Hello is the PCoIP client's preliminary
// probe used to distinguish brokers from workstations.
func (h HelloRequest) IsProbe() bool {
	return h.ProductName == "QueryBrokerClient"
}

// AuthenticateRequest carries username/password/domain credentials.
type AuthenticateRequest struct {
	Username string
	Password string
	Domain   string
}

func (AuthenticateRequest) isRequest() {}

// String redacts the password so credentials never reach logs.
func (a AuthenticateRequest) String() string {
	return "AuthenticateRequest{Username:" + a.Username + " Password:<redacted> Domain:" + a.Domain + "}"
}

// GoString mirrors String for %#v formatting.
func (a AuthenticateRequest) GoString() string {
	return a.String()
}

// LogValue mirrors String for slog attributes, so structured handlers do
// not marshal the Password field.
func (a AuthenticateRequest) LogValue() slog.Value {
	return slog.StringValue(a.String())
}

// GetResourceListRequest requests the entitled resource list. Its body
// contents are accepted but ignored.
type GetResourceListRequest struct{}

func (GetResourceListRequest) isRequest() {}

// AllocateResourceRequest asks the broker to allocate a session on the
// named resource.
type AllocateResourceRequest struct {
	ResourceID string
}

func (AllocateResourceRequest) isRequest() {}

// ByeRequest terminates the session regardless of current state.
type ByeRequest struct{}

func (ByeRequest) isRequest() {}

// BadMessage represents a request the codec could not parse: unknown root
// tag, unknown message tag, or missing mandatory fields. It is intercepted
// at the HTTP layer (MalformedRequest -> 400) and never reaches the
// protocol state machine.
type BadMessage struct {
	Reason string
}

func (BadMessage) isRequest() {}

// HelloResponse answers HelloRequest with the broker's identity and the
// domains its mapper supports.
type HelloResponse struct {
	ProductName    string
	ProductVersion string
	Platform       string
	Locale         string
	IPAddress      string
	Hostname       string
	Domains        []string
}

func (HelloResponse) isResponse() {}

// AuthSuccessResponse indicates AUTH_SUCCESSFUL_AND_COMPLETE.
type AuthSuccessResponse struct{}

func (AuthSuccessResponse) isResponse() {}

// AuthFailedResponse indicates AUTH_FAILED_UNKNOWN_USERNAME_OR_PASSWORD.
type AuthFailedResponse struct{}

func (AuthFailedResponse) isResponse() {}

// ResourceListEntry is the wire-facing projection of a mapper-supplied
// Resource, carrying only what GetResourceListResponse renders. Ordering of
// the slice mirrors mapper output exactly and MUST be preserved by callers.
type ResourceListEntry struct {
	ResourceID   string
	ResourceName string
}

// GetResourceListResponse enumerates entitled resources in mapper order.
type GetResourceListResponse struct {
	Resources []ResourceListEntry
}

func (GetResourceListResponse) isResponse() {}

// AllocateSuccessResponse carries the transport coordinates the client
// needs to launch the PCoIP stream.
type AllocateSuccessResponse struct {
	IPAddress  string
	Hostname   string
	SNI        string
	Port       int
	SessionID  string
	ConnectTag string
	ResourceID string
}

func (AllocateSuccessResponse) isResponse() {}

// AllocateFailedResponse carries the agent/mapper failure result-id,
// including the Teradici-side misspelling for the "another session"
// case where applicable.
type AllocateFailedResponse struct {
	ResultID string
}

func (AllocateFailedResponse) isResponse() {}

// ByeResponse acknowledges session termination.
type ByeResponse struct{}

func (ByeResponse) isResponse() {}
