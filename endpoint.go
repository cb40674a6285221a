package ntsock

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// EndpointType discriminates the Endpoint sum type.
type EndpointType int

const (
	EndpointUndefined EndpointType = iota
	EndpointIPv4
	EndpointIPv6
	EndpointLocal
)

// Endpoint is an immutable sum type over IPv4 (addr, port), IPv6
// (addr, port, scope) and local (path) addresses, per spec.md §3.
type Endpoint struct {
	kind  EndpointType
	ip    net.IP
	port  uint16
	scope string
	path  string
}

// NewIPv4Endpoint builds an IPv4 endpoint.
func NewIPv4Endpoint(ip net.IP, port uint16) Endpoint {
	return Endpoint{kind: EndpointIPv4, ip: ip.To4(), port: port}
}

// NewIPv6Endpoint builds an IPv6 endpoint, with an optional zone/scope id.
func NewIPv6Endpoint(ip net.IP, port uint16, scope string) Endpoint {
	return Endpoint{kind: EndpointIPv6, ip: ip.To16(), port: port, scope: scope}
}

// NewLocalEndpoint builds a local (unix-domain) endpoint from a path.
func NewLocalEndpoint(path string) Endpoint {
	return Endpoint{kind: EndpointLocal, path: path}
}

func (e Endpoint) Type() EndpointType { return e.kind }
func (e Endpoint) IP() net.IP         { return e.ip }
func (e Endpoint) Port() uint16       { return e.port }
func (e Endpoint) Scope() string      { return e.scope }
func (e Endpoint) Path() string       { return e.path }
func (e Endpoint) IsDefined() bool    { return e.kind != EndpointUndefined }

// String renders the canonical textual form. IPv4 and IPv6 forms are
// accepted by ParseEndpoint; a local endpoint renders as its bare path,
// which ParseEndpoint does not parse.
func (e Endpoint) String() string {
	switch e.kind {
	case EndpointIPv4:
		return fmt.Sprintf("%s:%d", e.ip.String(), e.port)
	case EndpointIPv6:
		if e.scope != "" {
			return fmt.Sprintf("[%s%%%s]:%d", e.ip.String(), e.scope, e.port)
		}
		return fmt.Sprintf("[%s]:%d", e.ip.String(), e.port)
	case EndpointLocal:
		return e.path
	default:
		return ""
	}
}

// TransportType selects the protocol family used to post-filter resolution
// results, per spec.md §4.K / §6.
type TransportType int

const (
	TransportUndefined TransportType = iota
	TransportTCP
	TransportUDP
	TransportLocal
)

// IPAddressType narrows address-family preference for resolution.
type IPAddressType int

const (
	IPAddressTypeUndefined IPAddressType = iota
	IPAddressTypeV4
	IPAddressTypeV6
)

// EndpointOptions controls post-filtering applied by ParseEndpoint and by
// the Resolver's get_endpoint operation (spec.md §4.K).
type EndpointOptions struct {
	IPAddressType    IPAddressType
	Transport        TransportType
	IPAddressFallback net.IP
	PortFallback     uint16
	ServiceLookup    func(name string, transport TransportType) (uint16, bool)
}

// ParseEndpoint implements the endpoint text grammar of spec.md §6:
//
//	endpoint    = port-only | v6-endpoint | v4-or-host-endpoint | bare-v6
//	port-only   = DIGITS
//	v6-endpoint = "[" v6literal "]:" (DIGITS | service-name)
//	v4-or-host-endpoint = (v4literal | hostname) ":" (DIGITS | service-name)
//	bare-v6     = v6literal ; recognized when >= 2 unbracketed ':'
//
// Resolution of a bare hostname (as opposed to a literal address) is left to
// the caller; ParseEndpoint itself only parses literals and numeric/named
// ports. It returns ErrEndOfStream for "host:port" whose host is not a
// literal address (a name service is needed) and when a named service
// cannot be mapped to a port, and ErrInvalid for text matching no form of
// the grammar (including a bare name with no ":port").
func ParseEndpoint(text string, opts EndpointOptions) (Endpoint, error) {
	if text == "" {
		return Endpoint{}, ErrInvalid
	}

	// v6-endpoint: "[" ... "]:" port
	if strings.HasPrefix(text, "[") {
		end := strings.LastIndex(text, "]")
		if end < 0 {
			return Endpoint{}, ErrInvalid
		}
		lit := text[1:end]
		rest := text[end+1:]
		if !strings.HasPrefix(rest, ":") {
			return Endpoint{}, ErrInvalid
		}
		portText := rest[1:]
		ip, scope := splitScope(lit)
		addr := net.ParseIP(ip)
		if addr == nil {
			return Endpoint{}, ErrInvalid
		}
		port, err := resolvePort(portText, opts.Transport, opts.ServiceLookup)
		if err != nil {
			return Endpoint{}, err
		}
		return applyFilter(NewIPv6Endpoint(addr, port, scope), opts)
	}

	// port-only: all digits.
	if isAllDigits(text) {
		port, err := strconv.ParseUint(text, 10, 16)
		if err != nil {
			return Endpoint{}, ErrInvalid
		}
		if opts.IPAddressFallback == nil {
			return Endpoint{}, ErrInvalid
		}
		return applyFilter(endpointFromIP(opts.IPAddressFallback, uint16(port), ""), opts)
	}

	// bare-v6: two or more unbracketed colons and no trailing ":port".
	if strings.Count(text, ":") >= 2 {
		ip, scope := splitScope(text)
		addr := net.ParseIP(ip)
		if addr == nil {
			return Endpoint{}, ErrInvalid
		}
		port := opts.PortFallback
		return applyFilter(NewIPv6Endpoint(addr, port, scope), opts)
	}

	// v4-or-host-endpoint: one unbracketed colon.
	idx := strings.LastIndex(text, ":")
	if idx < 0 {
		return Endpoint{}, ErrInvalid
	}
	host := text[:idx]
	portText := text[idx+1:]
	port, err := resolvePort(portText, opts.Transport, opts.ServiceLookup)
	if err != nil {
		return Endpoint{}, err
	}
	if ip := net.ParseIP(host); ip != nil {
		return applyFilter(endpointFromIP(ip, port, ""), opts)
	}
	// A bare hostname cannot be turned into an Endpoint without a name
	// service; that is the Resolver's job (get_ip_address), not the
	// grammar parser's.
	return Endpoint{}, ErrEndOfStream
}

func splitScope(lit string) (ip string, scope string) {
	if i := strings.IndexByte(lit, '%'); i >= 0 {
		return lit[:i], lit[i+1:]
	}
	return lit, ""
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func resolvePort(portText string, transport TransportType, lookup func(string, TransportType) (uint16, bool)) (uint16, error) {
	if isAllDigits(portText) {
		p, err := strconv.ParseUint(portText, 10, 16)
		if err != nil {
			return 0, ErrInvalid
		}
		return uint16(p), nil
	}
	if lookup == nil {
		return 0, ErrEndOfStream
	}
	port, ok := lookup(portText, transport)
	if !ok {
		return 0, ErrEndOfStream
	}
	return port, nil
}

func endpointFromIP(ip net.IP, port uint16, scope string) Endpoint {
	if v4 := ip.To4(); v4 != nil {
		return NewIPv4Endpoint(v4, port)
	}
	return NewIPv6Endpoint(ip.To16(), port, scope)
}

func applyFilter(e Endpoint, opts EndpointOptions) (Endpoint, error) {
	switch opts.IPAddressType {
	case IPAddressTypeV4:
		if e.kind != EndpointIPv4 {
			return Endpoint{}, ErrInvalid
		}
	case IPAddressTypeV6:
		if e.kind != EndpointIPv6 {
			return Endpoint{}, ErrInvalid
		}
	}
	return e, nil
}
