package resolve

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtaci/ntsock"
)

func TestResolverOverridesRoundTrip(t *testing.T) {
	o := NewResolverOverrides()
	ip := net.ParseIP("10.0.0.5")
	o.SetDomain("db.internal", []net.IP{ip})

	got, ok := o.LookupDomain("db.internal")
	require.True(t, ok)
	require.Equal(t, []net.IP{ip}, got)

	o.SetService(ntsock.TransportTCP, "nt-ctrl", 9001)
	port, ok := o.LookupService(ntsock.TransportTCP, "nt-ctrl")
	require.True(t, ok)
	require.EqualValues(t, 9001, port)

	_, ok = o.LookupService(ntsock.TransportUDP, "nt-ctrl")
	require.False(t, ok)
}

func newTestResolver(t *testing.T) (*Resolver, *ResolverOverrides) {
	t.Helper()
	overrides := NewResolverOverrides()
	opts := DefaultResolverOptions()
	opts.Client.Enabled = false
	opts.System.Enabled = false
	r, err := NewResolver(opts, overrides)
	require.NoError(t, err)
	return r, overrides
}

func TestResolverGetIPAddressUsesOverrideBeforeSystem(t *testing.T) {
	r, overrides := newTestResolver(t)
	ip := net.ParseIP("192.168.1.10")
	overrides.SetDomain("svc.local", []net.IP{ip})

	ips, err := r.GetIPAddress(context.Background(), "svc.local", ntsock.EndpointOptions{})
	require.NoError(t, err)
	require.Equal(t, []net.IP{ip}, ips)
}

func TestResolverGetIPAddressNotFoundWithoutSystem(t *testing.T) {
	r, _ := newTestResolver(t)
	_, err := r.GetIPAddress(context.Background(), "nowhere.example", ntsock.EndpointOptions{})
	require.Equal(t, ntsock.KindNotFound, ntsock.KindOf(err))
}

func TestResolverGetEndpointLiteralDoesNotNeedOverride(t *testing.T) {
	r, _ := newTestResolver(t)
	ep, err := r.GetEndpoint(context.Background(), "127.0.0.1:8080", ntsock.EndpointOptions{})
	require.NoError(t, err)
	require.Equal(t, ntsock.EndpointIPv4, ep.Type())
	require.EqualValues(t, 8080, ep.Port())
}

func TestResolverGetEndpointResolvesBareHostnameViaOverride(t *testing.T) {
	r, overrides := newTestResolver(t)
	ip := net.ParseIP("10.1.2.3")
	overrides.SetDomain("app.internal", []net.IP{ip})

	ep, err := r.GetEndpoint(context.Background(), "app.internal:443", ntsock.EndpointOptions{})
	require.NoError(t, err)
	require.Equal(t, ntsock.EndpointIPv4, ep.Type())
	require.EqualValues(t, 443, ep.Port())
	require.True(t, ip.Equal(ep.IP()))
}

func TestResolverGetEndpointNamedServiceViaOverride(t *testing.T) {
	r, overrides := newTestResolver(t)
	ip := net.ParseIP("10.1.2.4")
	overrides.SetDomain("app.internal", []net.IP{ip})
	overrides.SetService(ntsock.TransportTCP, "nt-ctrl", 9001)

	ep, err := r.GetEndpoint(context.Background(), "app.internal:nt-ctrl", ntsock.EndpointOptions{Transport: ntsock.TransportTCP})
	require.NoError(t, err)
	require.EqualValues(t, 9001, ep.Port())
}

func TestResolverOptionsSanitizeClampsFields(t *testing.T) {
	opts := ResolverOptions{
		Client: ClientOptions{Attempts: 99, Timeout: time.Hour, Dots: 99},
		System: SystemOptions{MinThreads: 0, MaxThreads: 0},
	}
	opts.sanitize()
	require.Equal(t, 5, opts.Client.Attempts)
	require.Equal(t, 30*time.Second, opts.Client.Timeout)
	require.Equal(t, 15, opts.Client.Dots)
	require.Equal(t, 1, opts.System.MinThreads)
	require.Equal(t, 1, opts.System.MaxThreads)
}

func TestLookupCachePositiveAndNegative(t *testing.T) {
	c := newLookupCache(
		CacheOptions{Enabled: true, MinTTL: time.Minute, MaxTTL: time.Hour},
		CacheOptions{Enabled: true, MinTTL: time.Second, MaxTTL: time.Minute},
	)
	ip := net.ParseIP("1.2.3.4")
	c.putPositive("ok.example", []net.IP{ip}, 5*time.Second)
	e, ok := c.get("ok.example")
	require.True(t, ok)
	require.Nil(t, e.err)
	require.Equal(t, []net.IP{ip}, e.ips)

	c.putNegative("bad.example", ntsock.ErrNotFound)
	e, ok = c.get("bad.example")
	require.True(t, ok)
	require.Equal(t, ntsock.KindNotFound, ntsock.KindOf(e.err))
}
