// Package config is ntconfig, the thin viper wrapper SPEC_FULL.md §4.N
// names for loading spec.md §6 "Resolver configuration": defaults, then an
// optional config file, then environment variables, layered the way
// nabbar-golib's viper package layers them, but scoped down to the single
// struct this module actually needs (resolve.ResolverOptions) instead of
// nabbar-golib's general-purpose Viper interface.
//
// Generalized from the teacher's server/config.go and client/main.go,
// which load a flat struct from a single JSON file with no env overlay and
// no defaults layer; ntconfig adds both because spec.md §6 describes a
// config surface meant to be partially overridden per-deployment rather
// than fully respecified.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/xtaci/ntsock/resolve"
)

// EnvPrefix is the prefix environment overrides are read under, e.g.
// NTSOCK_RESOLVER_CLIENT_ATTEMPTS for resolve.ResolverOptions.Client.Attempts.
const EnvPrefix = "NTSOCK_RESOLVER"

// LoadResolverOptions builds a resolve.ResolverOptions from
// resolve.DefaultResolverOptions(), overlaid with path (if non-empty) and
// then with EnvPrefix-prefixed environment variables. path may name any
// format viper supports (json, yaml, toml, ...); its extension selects the
// decoder. An empty path skips the file layer entirely, so a deployment
// that only sets environment variables never needs a file on disk.
func LoadResolverOptions(path string) (resolve.ResolverOptions, error) {
	defaults := resolve.DefaultResolverOptions()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaults)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return resolve.ResolverOptions{}, errors.Wrap(err, "ntconfig: read resolver config")
		}
	}

	var opts resolve.ResolverOptions
	if err := v.Unmarshal(&opts); err != nil {
		return resolve.ResolverOptions{}, errors.Wrap(err, "ntconfig: unmarshal resolver config")
	}

	return opts, nil
}

// setDefaults seeds viper's defaults layer from a resolve.ResolverOptions
// value so an absent file or env var falls back to
// resolve.DefaultResolverOptions() field-by-field rather than to Go's zero
// values (which would silently disable the positive/negative caches and
// the DNS client).
func setDefaults(v *viper.Viper, d resolve.ResolverOptions) {
	v.SetDefault("host_db.enabled", d.HostDB.Enabled)
	v.SetDefault("host_db.path", d.HostDB.Path)

	v.SetDefault("port_db.enabled", d.PortDB.Enabled)
	v.SetDefault("port_db.path", d.PortDB.Path)

	v.SetDefault("positive_cache.enabled", d.PositiveCache.Enabled)
	v.SetDefault("positive_cache.min_ttl", d.PositiveCache.MinTTL)
	v.SetDefault("positive_cache.max_ttl", d.PositiveCache.MaxTTL)

	v.SetDefault("negative_cache.enabled", d.NegativeCache.Enabled)
	v.SetDefault("negative_cache.min_ttl", d.NegativeCache.MinTTL)
	v.SetDefault("negative_cache.max_ttl", d.NegativeCache.MaxTTL)

	v.SetDefault("client.enabled", d.Client.Enabled)
	v.SetDefault("client.spec_path", d.Client.SpecPath)
	v.SetDefault("client.remote_endpoints", d.Client.RemoteEndpoints)
	v.SetDefault("client.domain_search", d.Client.DomainSearch)
	v.SetDefault("client.attempts", d.Client.Attempts)
	v.SetDefault("client.timeout", d.Client.Timeout)
	v.SetDefault("client.rotate", d.Client.Rotate)
	v.SetDefault("client.dots", d.Client.Dots)
	v.SetDefault("client.debug", d.Client.Debug)

	v.SetDefault("system.enabled", d.System.Enabled)
	v.SetDefault("system.min_threads", d.System.MinThreads)
	v.SetDefault("system.max_threads", d.System.MaxThreads)

	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.source_endpoints", d.Server.SourceEndpoints)
}
