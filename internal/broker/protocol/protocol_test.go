package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/pcoip-broker/broker/internal/broker/agentclient"
	"github.com/pcoip-broker/broker/internal/broker/mapper"
	"github.com/pcoip-broker/broker/internal/broker/transport"
)

type stubMapper struct {
	username  string
	password  string
	resources mapper.Mapping
}

func (s stubMapper) Map(ctx context.Context, creds mapper.Credentials, previousHost string) (mapper.Status, mapper.Mapping, error) {
	if creds.Username != s.username || creds.Password != s.password {
		return mapper.StatusAuthenticationFailed, nil, nil
	}
	if len(s.resources) == 0 {
		return mapper.StatusNoMachine, nil, nil
	}
	return mapper.StatusSuccess, s.resources, nil
}

func (s stubMapper) Domains() []string { return []string{"EXAMPLE"} }
func (s stubMapper) Name() string      { return "stub" }

// newAgentStub runs a TLS agent endpoint and returns a client pointed at
// its port plus the host the stub listens on, so tests can use that host
// as a resource hostname.
func newAgentStub(t *testing.T, handler http.HandlerFunc) (*agentclient.Client, string, func()) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse stub URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse stub port: %v", err)
	}
	client := agentclient.New(agentclient.Config{InsecureSkipVerify: true, Port: port})
	return client, u.Hostname(), srv.Close
}

func TestScenarioAProbeHello(t *testing.T) {
	t.Parallel()

	h := NewHandler(stubMapper{}, agentclient.New(agentclient.Config{}))
	sess, resp := h.Handle(context.Background(), transport.HelloRequest{Hostname: "c.h", ProductName: "QueryBrokerClient"}, nil, ClientInfo{})

	if sess != nil {
		t.Fatalf("expected nil session for probe hello, got %+v", sess)
	}
	helloResp, ok := resp.(transport.HelloResponse)
	if !ok {
		t.Fatalf("expected HelloResponse, got %T", resp)
	}
	found := false
	for _, d := range helloResp.Domains {
		if d == "EXAMPLE" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected domains to include EXAMPLE: %+v", helloResp.Domains)
	}
}

func TestProbeHelloDiscardsLiveSession(t *testing.T) {
	t.Parallel()

	h := NewHandler(stubMapper{}, agentclient.New(agentclient.Config{}))

	for _, sess := range []*Session{
		{State: WaitingForAuthenticate},
		{State: WaitingForGetResourceList, Username: "Euler"},
		{State: WaitingForAllocateResource, Username: "Euler"},
		{State: WaitingForBye, Username: "Euler"},
	} {
		newSess, resp := h.Handle(context.Background(), transport.HelloRequest{ProductName: "QueryBrokerClient"}, sess, ClientInfo{})
		if newSess != nil {
			t.Fatalf("probe from state %v should return nil session, got %+v", sess.State, newSess)
		}
		if _, ok := resp.(transport.HelloResponse); !ok {
			t.Fatalf("probe from state %v should return HelloResponse, got %T", sess.State, resp)
		}
	}
}

func TestScenarioBHappyPathThroughAllocate(t *testing.T) {
	agentStub, agentHost, closeFn := newAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<pcoip-agent version="1.0"><launch-session-resp><result-id>successful</result-id><session-info><ip-address>1.1.1.1</ip-address><sni>SNI</sni><port>60443</port><session-id>1234</session-id><session-tag>abcd</session-tag></session-info></launch-session-resp></pcoip-agent>`))
	})
	defer closeFn()

	m := stubMapper{
		username: "Euler",
		password: "Leonhard",
		resources: mapper.Mapping{
			{ID: "0", Resource: mapper.Resource{Name: "Kurt", Hostname: agentHost}},
		},
	}
	h := NewHandler(m, agentStub)

	sess, resp := h.Handle(context.Background(), transport.HelloRequest{ProductName: "RealClient"}, nil, ClientInfo{})
	if sess == nil || sess.State != WaitingForAuthenticate {
		t.Fatalf("expected session in WaitingForAuthenticate, got %+v", sess)
	}
	if _, ok := resp.(transport.HelloResponse); !ok {
		t.Fatalf("expected HelloResponse, got %T", resp)
	}

	sess, resp = h.Handle(context.Background(), transport.AuthenticateRequest{Username: "Euler", Password: "Leonhard"}, sess, ClientInfo{})
	if sess == nil || sess.State != WaitingForGetResourceList {
		t.Fatalf("expected session in WaitingForGetResourceList, got %+v", sess)
	}
	if _, ok := resp.(transport.AuthSuccessResponse); !ok {
		t.Fatalf("expected AuthSuccessResponse, got %T", resp)
	}

	sess, resp = h.Handle(context.Background(), transport.GetResourceListRequest{}, sess, ClientInfo{})
	if sess == nil || sess.State != WaitingForAllocateResource {
		t.Fatalf("expected session in WaitingForAllocateResource, got %+v", sess)
	}
	listResp, ok := resp.(transport.GetResourceListResponse)
	if !ok || len(listResp.Resources) != 1 || listResp.Resources[0].ResourceID != "0" {
		t.Fatalf("unexpected GetResourceListResponse: %+v", resp)
	}

	sess, resp = h.Handle(context.Background(), transport.AllocateResourceRequest{ResourceID: "0"}, sess, ClientInfo{Name: "test-client"})
	if sess == nil || sess.State != WaitingForBye {
		t.Fatalf("expected session in WaitingForBye, got %+v", sess)
	}
	allocResp, ok := resp.(transport.AllocateSuccessResponse)
	if !ok {
		t.Fatalf("expected AllocateSuccessResponse, got %T", resp)
	}
	if allocResp.Port != 60443 || allocResp.SessionID != "1234" || allocResp.ConnectTag != "abcd" {
		t.Fatalf("unexpected allocate response: %+v", allocResp)
	}
}

func TestScenarioCAuthFailureStaysOnState(t *testing.T) {
	t.Parallel()

	m := stubMapper{username: "Euler", password: "Leonhard"}
	h := NewHandler(m, agentclient.New(agentclient.Config{}))

	sess := &Session{State: WaitingForAuthenticate}
	sess, resp := h.Handle(context.Background(), transport.AuthenticateRequest{Username: "Euler", Password: "wrong"}, sess, ClientInfo{})

	if sess == nil || sess.State != WaitingForAuthenticate {
		t.Fatalf("expected session to stay at WaitingForAuthenticate, got %+v", sess)
	}
	if sess.Username != "" {
		t.Fatalf("expected username cleared, got %q", sess.Username)
	}
	if _, ok := resp.(transport.AuthFailedResponse); !ok {
		t.Fatalf("expected AuthFailedResponse, got %T", resp)
	}
}

func TestScenarioDAgentEndpointError(t *testing.T) {
	agentStub, agentHost, closeFn := newAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer closeFn()

	m := stubMapper{
		username:  "Euler",
		password:  "Leonhard",
		resources: mapper.Mapping{{ID: "0", Resource: mapper.Resource{Hostname: agentHost}}},
	}
	h := NewHandler(m, agentStub)

	sess := &Session{
		State:     WaitingForAllocateResource,
		Username:  "Euler",
		Password:  "Leonhard",
		Resources: m.resources,
	}
	sess, resp := h.Handle(context.Background(), transport.AllocateResourceRequest{ResourceID: "0"}, sess, ClientInfo{})

	if sess == nil || sess.State != WaitingForAllocateResource {
		t.Fatalf("expected session to stay at WaitingForAllocateResource, got %+v", sess)
	}
	failResp, ok := resp.(transport.AllocateFailedResponse)
	if !ok || failResp.ResultID != "FAILED_USER_AUTH" {
		t.Fatalf("expected AllocateFailedResponse{FAILED_USER_AUTH}, got %+v", resp)
	}
}

func TestScenarioEByeAlwaysTerminates(t *testing.T) {
	t.Parallel()

	h := NewHandler(stubMapper{}, agentclient.New(agentclient.Config{}))

	for _, sess := range []*Session{
		nil,
		{State: WaitingForHello},
		{State: WaitingForAuthenticate},
		{State: WaitingForGetResourceList},
		{State: WaitingForAllocateResource},
		{State: WaitingForBye},
	} {
		newSess, resp := h.Handle(context.Background(), transport.ByeRequest{}, sess, ClientInfo{})
		if newSess != nil {
			t.Fatalf("expected nil session after Bye from %v, got %+v", sess, newSess)
		}
		if _, ok := resp.(transport.ByeResponse); !ok {
			t.Fatalf("expected ByeResponse after Bye from %v, got %T", sess, resp)
		}
	}
}

func TestProtocolViolationDestroysSession(t *testing.T) {
	t.Parallel()

	h := NewHandler(stubMapper{}, agentclient.New(agentclient.Config{}))
	sess := &Session{State: WaitingForGetResourceList}

	newSess, resp := h.Handle(context.Background(), transport.AllocateResourceRequest{ResourceID: "0"}, sess, ClientInfo{})
	if newSess != nil {
		t.Fatalf("expected session destroyed on protocol violation, got %+v", newSess)
	}
	if resp != nil {
		t.Fatalf("expected nil response on protocol violation, got %+v", resp)
	}
}

func TestAllocateUnknownResourceFails(t *testing.T) {
	t.Parallel()

	m := stubMapper{
		username:  "Euler",
		password:  "Leonhard",
		resources: mapper.Mapping{{ID: "0", Resource: mapper.Resource{Hostname: "kurt.godel.edu"}}},
	}
	h := NewHandler(m, agentclient.New(agentclient.Config{}))

	sess := &Session{State: WaitingForAllocateResource, Username: "Euler", Resources: m.resources}
	sess, resp := h.Handle(context.Background(), transport.AllocateResourceRequest{ResourceID: "7"}, sess, ClientInfo{})

	if sess == nil || sess.State != WaitingForAllocateResource {
		t.Fatalf("expected session to stay at WaitingForAllocateResource, got %+v", sess)
	}
	failResp, ok := resp.(transport.AllocateFailedResponse)
	if !ok || failResp.ResultID != "FAILED_USER_AUTH" {
		t.Fatalf("expected AllocateFailedResponse{FAILED_USER_AUTH}, got %+v", resp)
	}
}

func TestHandlerDeterminism(t *testing.T) {
	t.Parallel()

	m := stubMapper{username: "Euler", password: "Leonhard", resources: mapper.Mapping{{ID: "0", Resource: mapper.Resource{Name: "Kurt"}}}}
	h := NewHandler(m, agentclient.New(agentclient.Config{}))

	req := transport.AuthenticateRequest{Username: "Euler", Password: "Leonhard"}
	sess := &Session{State: WaitingForAuthenticate}

	sess1, resp1 := h.Handle(context.Background(), req, sess, ClientInfo{})
	sess2, resp2 := h.Handle(context.Background(), req, sess, ClientInfo{})

	if sess1.State != sess2.State || sess1.Username != sess2.Username {
		t.Fatalf("handler not deterministic: %+v vs %+v", sess1, sess2)
	}
	if resp1 != resp2 {
		t.Fatalf("handler not deterministic: %+v vs %+v", resp1, resp2)
	}
}
