package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pcoip-broker/broker/internal/broker/agentclient"
)

// WebserviceConfig configures the HTTP-basic-auth web-service mapper.
type WebserviceConfig struct {
	BaseURL string
	Timeout time.Duration
	Client  agentclient.Allocator
}

// webserviceHostsResponse is the JSON shape returned by the entitlement
// service on success. Pointer fields distinguish a key that is absent
// from one that is present with an empty value: only absence makes the
// response malformed.
type webserviceHostsResponse struct {
	Hosts *[]webserviceHost `json:"hosts"`
}

type webserviceHost struct {
	Name     *string `json:"name"`
	Hostname *string `json:"hostname"`
}

// Webservice is the reference HTTP-basic-auth mapper: it forwards
// credentials as HTTP Basic auth to an external entitlement service and
// parses a JSON resource list from the response.
type Webservice struct {
	DefaultAllocator
	baseURL    string
	httpClient *http.Client
}

// NewWebservice constructs a Webservice mapper from cfg.
func NewWebservice(cfg WebserviceConfig) *Webservice {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Webservice{
		DefaultAllocator: DefaultAllocator{Client: cfg.Client},
		baseURL:          cfg.BaseURL,
		httpClient:       &http.Client{Timeout: timeout},
	}
}

// Map sends HTTP Basic auth to {base_url}/user={urlencode(username)}.
func (m *Webservice) Map(ctx context.Context, creds Credentials, previousHost string) (Status, Mapping, error) {
	endpoint := fmt.Sprintf("%s/user=%s", m.baseURL, url.QueryEscape(creds.Username))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusInternalError, nil, fmt.Errorf("build webservice request: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return StatusInternalError, nil, nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusForbidden:
		return StatusAuthenticationFailed, nil, nil
	case http.StatusOK:
		var parsed webserviceHostsResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return StatusInternalError, nil, nil
		}
		if parsed.Hosts == nil {
			// A response with no hosts key at all is malformed, not an
			// empty entitlement list.
			return StatusInternalError, nil, nil
		}
		hosts := *parsed.Hosts
		if len(hosts) == 0 {
			return StatusNoMachine, nil, nil
		}
		mapping := make(Mapping, 0, len(hosts))
		for i, h := range hosts {
			if h.Name == nil || h.Hostname == nil {
				return StatusInternalError, nil, nil
			}
			mapping = append(mapping, Entry{
				ID:       strconv.Itoa(i),
				Resource: Resource{Name: *h.Name, Hostname: *h.Hostname},
			})
		}
		return StatusSuccess, mapping, nil
	default:
		return StatusInternalError, nil, nil
	}
}

// Domains returns no restricted domains; the webservice mapper accepts
// any domain the client sends.
func (m *Webservice) Domains() []string {
	return nil
}

// Name identifies this mapper for logs.
func (m *Webservice) Name() string {
	return "webservice"
}
