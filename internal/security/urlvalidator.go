package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrPrivateIP     = fmt.Errorf("URL resolves to private IP address")
	ErrUntrustedHost = fmt.Errorf("URL host is not trusted")
	ErrInvalidScheme = fmt.Errorf("only HTTPS URLs are allowed")
)

// URLPolicy controls which image URLs the saver is willing to download.
// The zero value rejects plain HTTP and private targets but accepts any
// public host.
type URLPolicy struct {
	// AllowedHosts pins downloads to these hosts (and their
	// subdomains) when non-empty.
	AllowedHosts []string
	// AllowPrivate permits loopback and RFC1918 targets. Tests serve
	// images from 127.0.0.1.
	AllowPrivate bool
}

// DefaultURLPolicy trusts the blob hosts OpenAI serves generated images
// from. Gemini returns inline data, so no Google hosts appear here.
func DefaultURLPolicy() *URLPolicy {
	return &URLPolicy{
		AllowedHosts: []string{
			"oaidalleapiprodscus.blob.core.windows.net",
			"dalleprodsec.blob.core.windows.net",
		},
	}
}

func (p *URLPolicy) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if p.AllowPrivate {
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return ErrInvalidScheme
		}
		return nil
	}

	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}

	host := parsed.Hostname()

	if len(p.AllowedHosts) > 0 && !p.isAllowedHost(host) {
		return fmt.Errorf("%w: %s", ErrUntrustedHost, host)
	}

	return validateHostIP(host)
}

func (p *URLPolicy) isAllowedHost(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range p.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func validateHostIP(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable hosts fail at download time with a clearer error.
		return nil
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
	}

	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0: // 0.0.0.0/8
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127: // 100.64.0.0/10 (CGNAT)
			return true
		case ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 0: // 192.0.0.0/24
			return true
		case ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 2: // 192.0.2.0/24 (TEST-NET-1)
			return true
		case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100: // 198.51.100.0/24 (TEST-NET-2)
			return true
		case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113: // 203.0.113.0/24 (TEST-NET-3)
			return true
		case ip4[0] >= 224 && ip4[0] <= 239: // 224.0.0.0/4 (Multicast)
			return true
		case ip4[0] >= 240: // 240.0.0.0/4 (Reserved)
			return true
		}
	}

	return false
}
