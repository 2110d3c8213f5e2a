package pgpool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// prepareConnConfig parses the DSN and fixes the target address and TLS
// posture once, at pool construction. Per-connection dials reuse the result
// so a flapping resolver cannot change where the pool connects mid-flight.
func prepareConnConfig(cfg Config) (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgpool: parse dsn: %w", err)
	}

	host := cc.Host
	if strings.HasPrefix(host, "/") {
		// unix socket, nothing to resolve and TLS is meaningless
		cc.TLSConfig = nil
		return cc, nil
	}

	resolved, err := resolveHost(host)
	if err != nil {
		return nil, fmt.Errorf("pgpool: resolve %q: %w", host, err)
	}
	cc.Host = resolved.String()

	switch cfg.TLS {
	case TLSDisable:
		cc.TLSConfig = nil
	case TLSInsecure:
		cc.TLSConfig = &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		}
	default:
		if isPrivateOrLoopback(resolved) {
			cc.TLSConfig = nil
		} else {
			// strict validation against the original hostname, not the
			// resolved address
			cc.TLSConfig = &tls.Config{
				ServerName: host,
				MinVersion: tls.VersionTLS12,
			}
		}
	}

	if cfg.QueryTimeout > 0 {
		if cc.RuntimeParams == nil {
			cc.RuntimeParams = map[string]string{}
		}
		cc.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.QueryTimeout.Milliseconds(), 10)
	}

	return cc, nil
}

// resolveHost resolves the host exactly once and deterministically prefers
// the first IPv4 address to avoid dual-stack connection flakiness.
func resolveHost(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	ips, err := net.DefaultResolver.LookupIP(context.Background(), "ip", host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for host")
	}

	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return ips[0], nil
}

func isPrivateOrLoopback(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
