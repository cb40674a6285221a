package resolve

import (
	"net"
	"sync"

	"github.com/xtaci/ntsock"
)

// ResolverOverrides holds the in-memory mappings spec.md §4.K names:
// domain → [IpAddress], IpAddress → domain, {service → port} separately for
// TCP and UDP, port → service, plus local-IP list, hostname and
// fully-qualified hostname overrides. Every write takes o.mu, per spec.md's
// "all writes take a per-instance lock".
//
// Grounded on nabbar-golib's httpcli/dns-mapper (config/components/httpcli/
// dns.go, dns-mapper package), which keeps exactly this shape of
// domain→override-IP table behind a lock for its HTTP dialer.
type ResolverOverrides struct {
	mu sync.Mutex

	domainToIPs map[string][]net.IP
	ipToDomain  map[string]string

	tcpServiceToPort map[string]uint16
	udpServiceToPort map[string]uint16
	tcpPortToService map[uint16]string
	udpPortToService map[uint16]string

	localIPs   []net.IP
	hostname   string
	fqHostname string
}

// NewResolverOverrides constructs an empty override table.
func NewResolverOverrides() *ResolverOverrides {
	return &ResolverOverrides{
		domainToIPs:      make(map[string][]net.IP),
		ipToDomain:       make(map[string]string),
		tcpServiceToPort: make(map[string]uint16),
		udpServiceToPort: make(map[string]uint16),
		tcpPortToService: make(map[uint16]string),
		udpPortToService: make(map[uint16]string),
	}
}

// SetDomain overrides the address set returned for domain.
func (o *ResolverOverrides) SetDomain(domain string, ips []net.IP) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.domainToIPs[domain] = append([]net.IP(nil), ips...)
}

// RemoveDomain clears any override for domain.
func (o *ResolverOverrides) RemoveDomain(domain string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.domainToIPs, domain)
}

// LookupDomain reports the overridden address set for domain, if any.
func (o *ResolverOverrides) LookupDomain(domain string) ([]net.IP, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ips, ok := o.domainToIPs[domain]
	return ips, ok
}

// SetReverse overrides the domain name returned for ip.
func (o *ResolverOverrides) SetReverse(ip net.IP, domain string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ipToDomain[ip.String()] = domain
}

// LookupReverse reports the overridden domain for ip, if any.
func (o *ResolverOverrides) LookupReverse(ip net.IP) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.ipToDomain[ip.String()]
	return d, ok
}

// SetService overrides the port named service resolves to for transport.
func (o *ResolverOverrides) SetService(transport ntsock.TransportType, service string, port uint16) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch transport {
	case ntsock.TransportUDP:
		o.udpServiceToPort[service] = port
		o.udpPortToService[port] = service
	default:
		o.tcpServiceToPort[service] = port
		o.tcpPortToService[port] = service
	}
}

// LookupService reports the overridden port for service under transport.
func (o *ResolverOverrides) LookupService(transport ntsock.TransportType, service string) (uint16, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if transport == ntsock.TransportUDP {
		p, ok := o.udpServiceToPort[service]
		return p, ok
	}
	p, ok := o.tcpServiceToPort[service]
	return p, ok
}

// LookupPort reports the overridden service name for port under transport.
func (o *ResolverOverrides) LookupPort(transport ntsock.TransportType, port uint16) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if transport == ntsock.TransportUDP {
		s, ok := o.udpPortToService[port]
		return s, ok
	}
	s, ok := o.tcpPortToService[port]
	return s, ok
}

// SetLocalIPs overrides the addresses considered "local" to this host.
func (o *ResolverOverrides) SetLocalIPs(ips []net.IP) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.localIPs = append([]net.IP(nil), ips...)
}

// LocalIPs reports the overridden local-IP list.
func (o *ResolverOverrides) LocalIPs() []net.IP {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]net.IP(nil), o.localIPs...)
}

// SetHostname overrides the short hostname.
func (o *ResolverOverrides) SetHostname(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hostname = name
}

// Hostname reports the overridden short hostname, "" if unset.
func (o *ResolverOverrides) Hostname() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hostname
}

// SetFQHostname overrides the fully-qualified hostname.
func (o *ResolverOverrides) SetFQHostname(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fqHostname = name
}

// FQHostname reports the overridden fully-qualified hostname, "" if unset.
func (o *ResolverOverrides) FQHostname() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fqHostname
}
