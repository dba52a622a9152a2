// Package codec implements the XML-over-HTTPS wire format the PCoIP client
// speaks: parsing a <pcoip-client version="..."> document into a
// transport.Request variant, and rendering a transport.Response variant back
// into one. Struct-tag driven encoding/xml is used throughout, the same
// style agentclient uses for the broker-to-agent leg of the protocol.
//
// Decode never returns an error for malformed input; a document the codec
// cannot make sense of becomes a transport.BadMessage value instead. The
// returned error is reserved for genuine I/O failures reading the body.
package codec

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pcoip-broker/broker/internal/broker/transport"
)

// protocolVersion is echoed on every outbound document's root element.
const protocolVersion = "2.1"

// xmlDeclaration spells the encoding lowercase; encoding/xml's own
// xml.Header emits "UTF-8" uppercase, which some PCoIP clients are picky
// about, so it is not used here.
const xmlDeclaration = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// Decode reads one XML document from r and returns the request variant it
// describes. encoding/xml never fetches external entities or resolves a
// DOCTYPE's SYSTEM/PUBLIC identifiers on its own, so no additional
// defusing is required to keep this safe against XXE.
func Decode(r io.Reader) (transport.Request, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	root, err := nextStartElement(dec)
	if err != nil {
		if err == io.EOF {
			return transport.BadMessage{Reason: "empty document"}, nil
		}
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) {
			return transport.BadMessage{Reason: "malformed XML: " + err.Error()}, nil
		}
		return nil, err
	}
	if root.Name.Local != "pcoip-client" {
		return transport.BadMessage{Reason: "unexpected root element " + root.Name.Local}, nil
	}
	if !hasAttr(root, "version") {
		// The version value itself is not validated, only its presence.
		return transport.BadMessage{Reason: "root element missing version attribute"}, nil
	}

	child, err := nextStartElement(dec)
	if err != nil {
		if err == io.EOF {
			return transport.BadMessage{Reason: "missing message body"}, nil
		}
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) {
			return transport.BadMessage{Reason: "malformed XML: " + err.Error()}, nil
		}
		return nil, err
	}

	switch child.Name.Local {
	case "hello":
		var body helloXML
		if err := dec.DecodeElement(&body, &child); err != nil {
			return transport.BadMessage{Reason: "malformed hello: " + err.Error()}, nil
		}
		return transport.HelloRequest{
			Hostname:    body.ClientInfo.Hostname,
			ProductName: body.ClientInfo.ProductName,
		}, nil

	case "authenticate":
		var body authenticateXML
		if err := dec.DecodeElement(&body, &child); err != nil {
			return transport.BadMessage{Reason: "malformed authenticate: " + err.Error()}, nil
		}
		if body.Username == nil {
			return transport.BadMessage{Reason: "authenticate missing username"}, nil
		}
		if body.Password == nil {
			return transport.BadMessage{Reason: "authenticate missing password"}, nil
		}
		return transport.AuthenticateRequest{
			Username: *body.Username,
			Password: *body.Password,
			Domain:   body.Domain,
		}, nil

	case "get-resource-list":
		if err := dec.Skip(); err != nil {
			return transport.BadMessage{Reason: "malformed get-resource-list: " + err.Error()}, nil
		}
		return transport.GetResourceListRequest{}, nil

	case "allocate-resource":
		var body allocateResourceXML
		if err := dec.DecodeElement(&body, &child); err != nil {
			return transport.BadMessage{Reason: "malformed allocate-resource: " + err.Error()}, nil
		}
		if body.ResourceID == nil {
			return transport.BadMessage{Reason: "allocate-resource missing resource-id"}, nil
		}
		if _, err := strconv.Atoi(*body.ResourceID); err != nil {
			return transport.BadMessage{Reason: "allocate-resource non-integer resource-id"}, nil
		}
		return transport.AllocateResourceRequest{ResourceID: *body.ResourceID}, nil

	case "bye":
		if err := dec.Skip(); err != nil {
			return transport.BadMessage{Reason: "malformed bye: " + err.Error()}, nil
		}
		return transport.ByeRequest{}, nil

	default:
		if err := dec.Skip(); err != nil {
			return transport.BadMessage{Reason: "unknown message " + child.Name.Local}, nil
		}
		return transport.BadMessage{Reason: "unknown message " + child.Name.Local}, nil
	}
}

func hasAttr(el xml.StartElement, name string) bool {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return true
		}
	}
	return false
}

// nextStartElement advances dec past any chardata, comments, or processing
// instructions to the next element start.
func nextStartElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}

// --- inbound wire shapes ---

type helloXML struct {
	XMLName    xml.Name       `xml:"hello"`
	ClientInfo helloClientXML `xml:"client-info"`
}

type helloClientXML struct {
	Hostname    string `xml:"hostname"`
	ProductName string `xml:"product-name"`
}

type authenticateXML struct {
	XMLName  xml.Name `xml:"authenticate"`
	Method   string   `xml:"method,attr"`
	Username *string  `xml:"username"`
	Password *string  `xml:"password"`
	Domain   string   `xml:"domain"`
}

type allocateResourceXML struct {
	XMLName    xml.Name `xml:"allocate-resource"`
	ResourceID *string  `xml:"resource-id"`
}

// --- outbound wire shapes ---

type resultXML struct {
	ResultID  string `xml:"result-id"`
	ResultStr string `xml:"result-str"`
}

type brokerInfoXML struct {
	ProductName    string `xml:"product-name"`
	ProductVersion string `xml:"product-version"`
	Platform       string `xml:"platform"`
	Locale         string `xml:"locale"`
	IPAddress      string `xml:"ip-address"`
	Hostname       string `xml:"hostname"`
}

type brokersInfoXML struct {
	BrokerInfo brokerInfoXML `xml:"broker-info"`
}

type authMethodsXML struct {
	Method []string `xml:"method"`
}

type domainsXML struct {
	Domain []string `xml:"domain"`
}

type nextAuthenticationXML struct {
	AuthenticationMethods authMethodsXML `xml:"authentication-methods"`
	Domains               domainsXML     `xml:"domains"`
}

type helloRespXML struct {
	BrokersInfo        brokersInfoXML        `xml:"brokers-info"`
	NextAuthentication nextAuthenticationXML `xml:"next-authentication"`
}

type helloRespEnvelope struct {
	XMLName   xml.Name     `xml:"pcoip-client"`
	Version   string       `xml:"version,attr"`
	HelloResp helloRespXML `xml:"hello-resp"`
}

type authenticateRespXML struct {
	Method string    `xml:"method,attr"`
	Result resultXML `xml:"result"`
}

type authenticateRespEnvelope struct {
	XMLName          xml.Name            `xml:"pcoip-client"`
	Version          string              `xml:"version,attr"`
	AuthenticateResp authenticateRespXML `xml:"authenticate-resp"`
}

type resourceTypeXML struct {
	SessionType string `xml:"session-type,attr"`
	Value       string `xml:",chardata"`
}

type protocolXML struct {
	IsDefault string `xml:"is-default,attr"`
	Value     string `xml:",chardata"`
}

type protocolsXML struct {
	Protocol protocolXML `xml:"protocol"`
}

type resourceXML struct {
	ResourceName  string          `xml:"resource-name"`
	ResourceID    string          `xml:"resource-id"`
	ResourceType  resourceTypeXML `xml:"resource-type"`
	ResourceState string          `xml:"resource-state"`
	Protocols     protocolsXML    `xml:"protocols"`
}

type getResourceListRespXML struct {
	Result    resultXML     `xml:"result"`
	Resources []resourceXML `xml:"resource"`
}

type getResourceListRespEnvelope struct {
	XMLName             xml.Name               `xml:"pcoip-client"`
	Version             string                 `xml:"version,attr"`
	GetResourceListResp getResourceListRespXML `xml:"get-resource-list-resp"`
}

type targetXML struct {
	IPAddress  string `xml:"ip-address"`
	Hostname   string `xml:"hostname"`
	SNI        string `xml:"sni"`
	Port       int    `xml:"port"`
	SessionID  string `xml:"session-id"`
	ConnectTag string `xml:"connect-tag"`
}

type allocateSuccessRespXML struct {
	Result     resultXML `xml:"result"`
	Target     targetXML `xml:"target"`
	ResourceID string    `xml:"resource-id"`
	Protocol   string    `xml:"protocol"`
}

type allocateSuccessEnvelope struct {
	XMLName              xml.Name               `xml:"pcoip-client"`
	Version              string                 `xml:"version,attr"`
	AllocateResourceResp allocateSuccessRespXML `xml:"allocate-resource-resp"`
}

type allocateFailedRespXML struct {
	Result resultXML `xml:"result"`
}

type allocateFailedEnvelope struct {
	XMLName              xml.Name              `xml:"pcoip-client"`
	Version              string                `xml:"version,attr"`
	AllocateResourceResp allocateFailedRespXML `xml:"allocate-resource-resp"`
}

type byeRespEnvelope struct {
	XMLName xml.Name `xml:"pcoip-client"`
	Version string   `xml:"version,attr"`
	ByeResp struct{} `xml:"bye-resp"`
}

// Encode renders resp as a full XML document (declaration included) to w.
func Encode(w io.Writer, resp transport.Response) error {
	envelope, err := envelopeFor(resp)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xmlDeclaration); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(envelope)
}

func envelopeFor(resp transport.Response) (any, error) {
	switch r := resp.(type) {
	case transport.HelloResponse:
		return helloRespEnvelope{
			Version: protocolVersion,
			HelloResp: helloRespXML{
				BrokersInfo: brokersInfoXML{BrokerInfo: brokerInfoXML{
					ProductName:    r.ProductName,
					ProductVersion: r.ProductVersion,
					Platform:       r.Platform,
					Locale:         r.Locale,
					IPAddress:      r.IPAddress,
					Hostname:       r.Hostname,
				}},
				NextAuthentication: nextAuthenticationXML{
					AuthenticationMethods: authMethodsXML{Method: []string{"AUTHENTICATE_VIA_PASSWORD"}},
					Domains:               domainsXML{Domain: r.Domains},
				},
			},
		}, nil

	case transport.AuthSuccessResponse:
		return authenticateRespEnvelope{
			Version: protocolVersion,
			AuthenticateResp: authenticateRespXML{
				Method: "password",
				Result: resultXML{ResultID: "AUTH_SUCCESSFUL_AND_COMPLETE", ResultStr: "Authentication successful"},
			},
		}, nil

	case transport.AuthFailedResponse:
		return authenticateRespEnvelope{
			Version: protocolVersion,
			AuthenticateResp: authenticateRespXML{
				Method: "password",
				Result: resultXML{ResultID: "AUTH_FAILED_UNKNOWN_USERNAME_OR_PASSWORD", ResultStr: "Authentication failed"},
			},
		}, nil

	case transport.GetResourceListResponse:
		resources := make([]resourceXML, 0, len(r.Resources))
		for _, e := range r.Resources {
			resources = append(resources, resourceXML{
				ResourceName:  e.ResourceName,
				ResourceID:    e.ResourceID,
				ResourceType:  resourceTypeXML{SessionType: "VDI", Value: "DESKTOP"},
				ResourceState: "UNKNOWN",
				Protocols:     protocolsXML{Protocol: protocolXML{IsDefault: "true", Value: "PCOIP"}},
			})
		}
		return getResourceListRespEnvelope{
			Version: protocolVersion,
			GetResourceListResp: getResourceListRespXML{
				Result:    resultXML{ResultID: "LIST_SUCCESSFUL", ResultStr: "Resource list retrieved"},
				Resources: resources,
			},
		}, nil

	case transport.AllocateSuccessResponse:
		return allocateSuccessEnvelope{
			Version: protocolVersion,
			AllocateResourceResp: allocateSuccessRespXML{
				Result: resultXML{ResultID: "ALLOC_SUCCESSFUL", ResultStr: "Allocation successful"},
				Target: targetXML{
					IPAddress:  r.IPAddress,
					Hostname:   r.Hostname,
					SNI:        r.SNI,
					Port:       r.Port,
					SessionID:  r.SessionID,
					ConnectTag: r.ConnectTag,
				},
				ResourceID: r.ResourceID,
				Protocol:   "PCOIP",
			},
		}, nil

	case transport.AllocateFailedResponse:
		return allocateFailedEnvelope{
			Version: protocolVersion,
			AllocateResourceResp: allocateFailedRespXML{
				Result: resultXML{ResultID: r.ResultID, ResultStr: "Allocation failed"},
			},
		}, nil

	case transport.ByeResponse:
		return byeRespEnvelope{Version: protocolVersion}, nil

	default:
		return nil, fmt.Errorf("codec: unsupported response type %T", r)
	}
}
