package resolve

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/xtaci/ntsock"
)

// loadHostDB populates overrides from an /etc/hosts-format file: each
// non-comment line is "ip name [alias...]". Lines the core can't parse are
// skipped rather than treated as fatal, matching /etc/hosts's own tolerance
// for stray content. This is deliberately the minimal line grammar spec.md's
// resolver non-goal ("no name-service RFC parsing beyond the DNS
// configuration consumed from a structured config") allows — not a
// general-purpose hosts-file parser.
func (r *Resolver) loadHostDB(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ntsock.Wrap(ntsock.ErrNotFound, "open host database")
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}
		for _, name := range fields[1:] {
			existing, _ := r.overrides.LookupDomain(name)
			r.overrides.SetDomain(name, append(existing, ip))
			r.overrides.SetReverse(ip, name)
		}
	}
	return sc.Err()
}

// loadPortDB populates overrides from an /etc/services-format file: each
// non-comment line is "name port/proto [alias...]".
func (r *Resolver) loadPortDB(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ntsock.Wrap(ntsock.ErrNotFound, "open port database")
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := fields[0]
		portProto := strings.SplitN(fields[1], "/", 2)
		if len(portProto) != 2 {
			continue
		}
		port, err := strconv.ParseUint(portProto[0], 10, 16)
		if err != nil {
			continue
		}
		transport := ntsock.TransportTCP
		if strings.EqualFold(portProto[1], "udp") {
			transport = ntsock.TransportUDP
		}
		r.overrides.SetService(transport, name, uint16(port))
	}
	return sc.Err()
}
