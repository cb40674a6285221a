// Package resolve implements spec.md §4.K's Resolver: get_ip_address and
// get_endpoint layered over ResolverOverrides, host/port databases, a
// positive/negative lookup cache and a DNS-backed system fallback.
//
// Generalized from the teacher's ad hoc net.ResolveTCPAddr/net.SplitHostPort
// calls in client/main.go and server/main.go (plain host:port handling with
// no override layer, no cache, no configurable DNS client) into the full
// configuration surface spec.md §6 "Resolver configuration" names.
package resolve

import "time"

// HostDBOptions configures the optional on-disk host-database override
// source (spec.md §6 host_db_{enabled,path}).
type HostDBOptions struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// PortDBOptions configures the optional on-disk service/port-database
// override source (spec.md §6 port_db_{enabled,path}).
type PortDBOptions struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CacheOptions configures a TTL-bounded lookup cache (spec.md §6
// positive_cache_{enabled,min_ttl,max_ttl} / negative_cache_{...}).
type CacheOptions struct {
	Enabled bool          `mapstructure:"enabled"`
	MinTTL  time.Duration `mapstructure:"min_ttl"`
	MaxTTL  time.Duration `mapstructure:"max_ttl"`
}

// ClientOptions configures the DNS client used for the system fallback
// (spec.md §6 client_{enabled,spec_path,remote_endpoints,domain_search,
// attempts,timeout,rotate,dots,debug}).
type ClientOptions struct {
	Enabled         bool          `mapstructure:"enabled"`
	SpecPath        string        `mapstructure:"spec_path"`
	RemoteEndpoints []string      `mapstructure:"remote_endpoints"`
	DomainSearch    []string      `mapstructure:"domain_search"`
	Attempts        int           `mapstructure:"attempts"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Rotate          bool          `mapstructure:"rotate"`
	Dots            int           `mapstructure:"dots"`
	Debug           bool          `mapstructure:"debug"`
}

// SystemOptions bounds the concurrency of outstanding system lookups
// (spec.md §6 system_{enabled,min_threads,max_threads}).
type SystemOptions struct {
	Enabled    bool `mapstructure:"enabled"`
	MinThreads int  `mapstructure:"min_threads"`
	MaxThreads int  `mapstructure:"max_threads"`
}

// ServerOptions names the endpoints a resolver that also acts as a name
// server would bind (spec.md §6 server_{enabled,source_endpoints}). Nothing
// in spec.md §4.K names a "serve DNS" operation alongside get_ip_address/
// get_endpoint, so these fields are accepted and stored for configuration
// round-tripping but no listener is started from them — see DESIGN.md.
type ServerOptions struct {
	Enabled         bool     `mapstructure:"enabled"`
	SourceEndpoints []string `mapstructure:"source_endpoints"`
}

// ResolverOptions is the full recognized configuration surface of spec.md
// §6 "Resolver configuration". Every field is optional; NewResolver applies
// the silent caps (attempts ≤ 5, timeout ≤ 30s, dots ≤ 15) through
// sanitize, and assigning a field of this struct directly does not clamp
// it. Field tags match the snake_case keys
// package config's viper loader reads from file/env, nested one level per
// sub-struct (e.g. "client.attempts", "host_db.path").
type ResolverOptions struct {
	HostDB        HostDBOptions `mapstructure:"host_db"`
	PortDB        PortDBOptions `mapstructure:"port_db"`
	PositiveCache CacheOptions  `mapstructure:"positive_cache"`
	NegativeCache CacheOptions  `mapstructure:"negative_cache"`
	Client        ClientOptions `mapstructure:"client"`
	System        SystemOptions `mapstructure:"system"`
	Server        ServerOptions `mapstructure:"server"`
}

// DefaultResolverOptions mirrors the teacher's sized-constant config style.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		PositiveCache: CacheOptions{Enabled: true, MinTTL: 5 * time.Second, MaxTTL: 5 * time.Minute},
		NegativeCache: CacheOptions{Enabled: true, MinTTL: 1 * time.Second, MaxTTL: 30 * time.Second},
		Client: ClientOptions{
			Enabled:  true,
			SpecPath: "/etc/resolv.conf",
			Attempts: 2,
			Timeout:  5 * time.Second,
			Dots:     1,
		},
		System: SystemOptions{Enabled: true, MinThreads: 1, MaxThreads: 4},
	}
}

// sanitize clamps every field spec.md §6 calls out as silently capped.
func (o *ResolverOptions) sanitize() {
	if o.Client.Attempts <= 0 {
		o.Client.Attempts = 1
	}
	if o.Client.Attempts > 5 {
		o.Client.Attempts = 5
	}
	if o.Client.Timeout <= 0 {
		o.Client.Timeout = 5 * time.Second
	}
	if o.Client.Timeout > 30*time.Second {
		o.Client.Timeout = 30 * time.Second
	}
	if o.Client.Dots < 0 {
		o.Client.Dots = 0
	}
	if o.Client.Dots > 15 {
		o.Client.Dots = 15
	}
	if o.System.MinThreads < 1 {
		o.System.MinThreads = 1
	}
	if o.System.MaxThreads < o.System.MinThreads {
		o.System.MaxThreads = o.System.MinThreads
	}
	if o.PositiveCache.MaxTTL > 0 && o.PositiveCache.MinTTL > o.PositiveCache.MaxTTL {
		o.PositiveCache.MinTTL = o.PositiveCache.MaxTTL
	}
	if o.NegativeCache.MaxTTL > 0 && o.NegativeCache.MinTTL > o.NegativeCache.MaxTTL {
		o.NegativeCache.MinTTL = o.NegativeCache.MaxTTL
	}
}
