package transport

import (
	"strings"
	"testing"
)

func TestHelloRequestIsProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		productName string
		want        bool
	}{
		{name: "probe", productName: "QueryBrokerClient", want: true},
		{name: "real client", productName: "Teradici PCoIP Client", want: false},
		{name: "empty", productName: "", want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := HelloRequest{ProductName: tc.productName}
			if got := h.IsProbe(); got != tc.want {
				t.Fatalf("IsProbe() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAuthenticateRequestRedactsPassword(t *testing.T) {
	t.Parallel()

	a := AuthenticateRequest{Username: "Euler", Password: "Leonhard", Domain: ""}
	s := a.String()
	if strings.Contains(s, "Leonhard") {
		t.Fatalf("String() leaked password: %s", s)
	}
	if !strings.Contains(s, "<redacted>") {
		t.Fatalf("String() missing redaction marker: %s", s)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Request = HelloRequest{}
	_ Request = AuthenticateRequest{}
	_ Request = GetResourceListRequest{}
	_ Request = AllocateResourceRequest{}
	_ Request = ByeRequest{}
	_ Request = BadMessage{}

	_ Response = HelloResponse{}
	_ Response = AuthSuccessResponse{}
	_ Response = AuthFailedResponse{}
	_ Response = GetResourceListResponse{}
	_ Response = AllocateSuccessResponse{}
	_ Response = AllocateFailedResponse{}
	_ Response = ByeResponse{}
)
