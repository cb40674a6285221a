package resolve

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"

	"github.com/xtaci/ntsock"
)

// Resolver implements spec.md §4.K: get_ip_address and get_endpoint, merging
// ResolverOverrides and the on-disk host/port databases with a cached,
// singleflight-deduplicated DNS system fallback.
//
// Generalized from the teacher's client/dial.go and server/main.go, which
// call net.ResolveTCPAddr/net.SplitHostPort directly with no override layer,
// no cache and no configurable DNS client — the override-then-cache-then-
// system-fallback chain and the miekg/dns-backed client are new, grounded on
// nabbar-golib's indirect miekg/dns and golang.org/x/sync dependencies per
// SPEC_FULL.md §4.R.
type Resolver struct {
	opts      ResolverOptions
	overrides *ResolverOverrides
	cache     *lookupCache
	group     singleflight.Group
	sem       chan struct{}

	clientCfg *dns.ClientConfig
	rotateIdx uint32
}

// NewResolver builds a Resolver. overrides may be nil, in which case an
// empty table is created (the overrides layer is then simply never hit).
func NewResolver(opts ResolverOptions, overrides *ResolverOverrides) (*Resolver, error) {
	opts.sanitize()
	if overrides == nil {
		overrides = NewResolverOverrides()
	}
	r := &Resolver{
		opts:      opts,
		overrides: overrides,
		cache:     newLookupCache(opts.PositiveCache, opts.NegativeCache),
		sem:       make(chan struct{}, opts.System.MaxThreads),
	}

	if opts.Client.Enabled {
		r.clientCfg = r.loadClientConfig()
	}
	if opts.HostDB.Enabled && opts.HostDB.Path != "" {
		if err := r.loadHostDB(opts.HostDB.Path); err != nil {
			return nil, err
		}
	}
	if opts.PortDB.Enabled && opts.PortDB.Path != "" {
		if err := r.loadPortDB(opts.PortDB.Path); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Resolver) loadClientConfig() *dns.ClientConfig {
	path := r.opts.Client.SpecPath
	if path == "" {
		path = "/etc/resolv.conf"
	}
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil || cfg == nil {
		cfg = &dns.ClientConfig{Port: "53", Ndots: 1, Attempts: 2}
	}
	if len(r.opts.Client.RemoteEndpoints) > 0 {
		cfg.Servers = r.opts.Client.RemoteEndpoints
	}
	if len(r.opts.Client.DomainSearch) > 0 {
		cfg.Search = r.opts.Client.DomainSearch
	}
	if r.opts.Client.Attempts > 0 {
		cfg.Attempts = r.opts.Client.Attempts
	}
	if r.opts.Client.Dots > 0 {
		cfg.Ndots = r.opts.Client.Dots
	}
	return cfg
}

// Overrides returns the override table backing this Resolver, for callers
// that want to mutate it after construction.
func (r *Resolver) Overrides() *ResolverOverrides { return r.overrides }

// GetIPAddress resolves domain to the address set that satisfies opts
// (spec.md §4.K get_ip_address): overrides first if non-empty, then the
// system (DNS) fallback if enabled, with positive/negative caching and
// singleflight de-duplication of concurrent lookups for the same domain.
func (r *Resolver) GetIPAddress(ctx context.Context, domain string, opts ntsock.EndpointOptions) ([]net.IP, error) {
	if ips, ok := r.overrides.LookupDomain(domain); ok && len(ips) > 0 {
		return filterIPs(ips, opts.IPAddressType), nil
	}
	if !r.opts.System.Enabled || r.clientCfg == nil {
		return nil, ntsock.ErrNotFound
	}

	if e, ok := r.cache.get(domain); ok {
		if e.err != nil {
			return nil, e.err
		}
		return filterIPs(e.ips, opts.IPAddressType), nil
	}

	v, err, _ := r.group.Do(domain, func() (interface{}, error) {
		ips, ttl, lerr := r.systemLookup(ctx, domain, opts.IPAddressType)
		if lerr != nil {
			r.cache.putNegative(domain, lerr)
			return nil, lerr
		}
		r.cache.putPositive(domain, ips, ttl)
		return ips, nil
	})
	if err != nil {
		return nil, err
	}
	return filterIPs(v.([]net.IP), opts.IPAddressType), nil
}

// GetEndpoint parses text per the endpoint text grammar (spec.md §6),
// resolving a bare hostname through GetIPAddress when the grammar alone
// cannot turn it into an address (spec.md §4.K get_endpoint).
func (r *Resolver) GetEndpoint(ctx context.Context, text string, opts ntsock.EndpointOptions) (ntsock.Endpoint, error) {
	if opts.ServiceLookup == nil {
		opts.ServiceLookup = r.serviceLookup
	}

	ep, err := ntsock.ParseEndpoint(text, opts)
	if ntsock.KindOf(err) != ntsock.KindEndOfStream {
		return ep, err
	}

	idx := strings.LastIndex(text, ":")
	if idx < 0 {
		return ntsock.Endpoint{}, ntsock.ErrInvalid
	}
	host, portText := text[:idx], text[idx+1:]
	port, perr := resolvePortText(portText, opts.Transport, opts.ServiceLookup)
	if perr != nil {
		return ntsock.Endpoint{}, perr
	}

	var ips []net.IP
	if literal := net.ParseIP(host); literal != nil {
		ips = []net.IP{literal}
	} else {
		var ierr error
		ips, ierr = r.GetIPAddress(ctx, host, opts)
		if ierr != nil {
			return ntsock.Endpoint{}, ierr
		}
	}
	if len(ips) == 0 {
		return ntsock.Endpoint{}, ntsock.ErrNotFound
	}
	ip := ips[0]
	if v4 := ip.To4(); v4 != nil {
		return ntsock.NewIPv4Endpoint(v4, port), nil
	}
	return ntsock.NewIPv6Endpoint(ip, port, ""), nil
}

func (r *Resolver) serviceLookup(name string, transport ntsock.TransportType) (uint16, bool) {
	return r.overrides.LookupService(transport, name)
}

func resolvePortText(portText string, transport ntsock.TransportType, lookup func(string, ntsock.TransportType) (uint16, bool)) (uint16, error) {
	if n, err := strconv.ParseUint(portText, 10, 16); err == nil {
		return uint16(n), nil
	}
	if lookup == nil {
		return 0, ntsock.ErrEndOfStream
	}
	port, ok := lookup(portText, transport)
	if !ok {
		return 0, ntsock.ErrEndOfStream
	}
	return port, nil
}

func filterIPs(ips []net.IP, t ntsock.IPAddressType) []net.IP {
	if t == ntsock.IPAddressTypeUndefined {
		return ips
	}
	var out []net.IP
	for _, ip := range ips {
		isV4 := ip.To4() != nil
		if (t == ntsock.IPAddressTypeV4) == isV4 {
			out = append(out, ip)
		}
	}
	return out
}

// searchNames applies the classic ndots resolver algorithm: a name with at
// least Ndots dots is tried as-is first; otherwise every search-domain
// suffix is tried before falling back to the bare name.
func (r *Resolver) searchNames(domain string) []string {
	dots := strings.Count(domain, ".")
	var names []string
	if dots >= r.clientCfg.Ndots {
		names = append(names, domain)
	}
	for _, s := range r.clientCfg.Search {
		names = append(names, domain+"."+s)
	}
	names = append(names, domain)
	return names
}

func (r *Resolver) pickServer(attempt int) string {
	servers := r.clientCfg.Servers
	if len(servers) == 0 {
		return ""
	}
	idx := attempt % len(servers)
	if r.opts.Client.Rotate {
		idx = int(atomic.AddUint32(&r.rotateIdx, 1)-1) % len(servers)
	}
	return servers[idx]
}

// systemLookup queries the configured DNS servers for domain, bounding
// concurrent outstanding queries to opts.System.MaxThreads via r.sem
// (spec.md §6 system_{min_threads,max_threads}).
func (r *Resolver) systemLookup(ctx context.Context, domain string, want ntsock.IPAddressType) ([]net.IP, time.Duration, error) {
	if r.clientCfg == nil || len(r.clientCfg.Servers) == 0 {
		return nil, 0, ntsock.ErrNotFound
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, 0, ntsock.ErrTimedOut
	}

	client := &dns.Client{Timeout: r.opts.Client.Timeout}
	qtypes := []uint16{dns.TypeA, dns.TypeAAAA}
	if want == ntsock.IPAddressTypeV4 {
		qtypes = []uint16{dns.TypeA}
	} else if want == ntsock.IPAddressTypeV6 {
		qtypes = []uint16{dns.TypeAAAA}
	}

	names := r.searchNames(domain)
	var lastErr error
	for attempt := 0; attempt < r.opts.Client.Attempts; attempt++ {
		server := r.pickServer(attempt)
		if server == "" {
			break
		}
		addr := net.JoinHostPort(server, r.clientCfg.Port)
		for _, name := range names {
			var ips []net.IP
			var ttl time.Duration
			for _, qtype := range qtypes {
				msg := new(dns.Msg)
				msg.SetQuestion(dns.Fqdn(name), qtype)
				msg.RecursionDesired = true
				resp, _, err := client.ExchangeContext(ctx, msg, addr)
				if err != nil {
					lastErr = err
					continue
				}
				rips, rttl := extractAddresses(resp)
				ips = append(ips, rips...)
				if rttl > ttl {
					ttl = rttl
				}
			}
			if len(ips) > 0 {
				return ips, ttl, nil
			}
		}
	}
	if lastErr != nil {
		return nil, 0, ntsock.Wrap(ntsock.ErrNotFound, lastErr.Error())
	}
	return nil, 0, ntsock.ErrNotFound
}

func extractAddresses(resp *dns.Msg) ([]net.IP, time.Duration) {
	if resp == nil {
		return nil, 0
	}
	var ips []net.IP
	var minTTL uint32
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			ips = append(ips, rec.A)
			if minTTL == 0 || rec.Hdr.Ttl < minTTL {
				minTTL = rec.Hdr.Ttl
			}
		case *dns.AAAA:
			ips = append(ips, rec.AAAA)
			if minTTL == 0 || rec.Hdr.Ttl < minTTL {
				minTTL = rec.Hdr.Ttl
			}
		}
	}
	return ips, time.Duration(minTTL) * time.Second
}
