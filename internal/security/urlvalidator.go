package security

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// DefaultTrustedHosts serve generated images for the supported backends.
var DefaultTrustedHosts = []string{
	"openrouter.ai",
	"googleusercontent.com",
	"storage.googleapis.com",
	"oaidalleapiprodscus.blob.core.windows.net",
}

var (
	ErrPrivateIP     = fmt.Errorf("URL resolves to private IP address")
	ErrUntrustedHost = fmt.Errorf("URL host is not trusted")
	ErrInvalidScheme = fmt.Errorf("only HTTPS URLs are allowed")
)

// URLValidator decides which remote image results may be downloaded.
// Every URL must be HTTPS and must not resolve to a private address. With
// Strict set the host must also be one of TrustedHosts or a subdomain of one.
type URLValidator struct {
	Strict       bool
	TrustedHosts []string

	lookupIP func(host string) ([]net.IP, error)
}

// NewURLValidator trusts DefaultTrustedHosts plus extraHosts.
func NewURLValidator(strict bool, extraHosts ...string) *URLValidator {
	hosts := slices.Clone(DefaultTrustedHosts)
	for _, h := range extraHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" && !slices.Contains(hosts, h) {
			hosts = append(hosts, h)
		}
	}
	return &URLValidator{Strict: strict, TrustedHosts: hosts, lookupIP: net.LookupIP}
}

func (v *URLValidator) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}

	host := strings.ToLower(parsed.Hostname())
	if v.Strict && !v.trusted(host) {
		return fmt.Errorf("%w: %s", ErrUntrustedHost, host)
	}
	return v.checkAddress(host)
}

func (v *URLValidator) trusted(host string) bool {
	return slices.ContainsFunc(v.TrustedHosts, func(t string) bool {
		return host == t || strings.HasSuffix(host, "."+t)
	})
}

func (v *URLValidator) checkAddress(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return ErrPrivateIP
	}

	lookup := v.lookupIP
	if lookup == nil {
		lookup = net.LookupIP
	}
	ips, err := lookup(host)
	if err != nil {
		// unresolvable hosts fail later at dial time
		return nil
	}
	if slices.ContainsFunc(ips, isPrivateIP) {
		return ErrPrivateIP
	}
	return nil
}

// reservedV4 are IPv4 ranges the net.IP predicates do not cover.
var reservedV4 = []*net.IPNet{
	mustCIDR("0.0.0.0/8"),
	mustCIDR("100.64.0.0/10"),
	mustCIDR("192.0.0.0/24"),
	mustCIDR("192.0.2.0/24"),
	mustCIDR("198.51.100.0/24"),
	mustCIDR("203.0.113.0/24"),
	mustCIDR("240.0.0.0/4"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	return slices.ContainsFunc(reservedV4, func(n *net.IPNet) bool { return n.Contains(ip) })
}
