package discovery

import (
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

// DefaultDomain is the multicast DNS domain.
const DefaultDomain = "local"

// NormalizeType strips leading and trailing dots from a service type.
// The dots separate the type from the domain and are not part of it.
func NormalizeType(serviceType string) string {
	return strings.Trim(serviceType, ".")
}

// SplitType splits a possibly fully qualified service type into the service
// part and the domain it was reported in:
//
//	_http._tcp.local.       -> _http._tcp, local
//	_printer._sub._ipp._tcp -> _printer._sub._ipp._tcp, ""
//
// Types without a _tcp or _udp label are returned normalized with an empty domain.
func SplitType(serviceType string) (string, string) {
	normalized := NormalizeType(serviceType)
	labels := dns.SplitDomainName(normalized)
	if len(labels) == 0 {
		return normalized, ""
	}

	proto := -1
	for i, l := range labels {
		if strings.EqualFold(l, "_tcp") || strings.EqualFold(l, "_udp") {
			proto = i
		}
	}
	if proto < 0 {
		return normalized, ""
	}
	return strings.Join(labels[:proto+1], "."), strings.Join(labels[proto+1:], ".")
}

// ServiceType returns the service part of a reported type.
// It is idempotent: ServiceType(ServiceType(s)) == ServiceType(s).
func ServiceType(serviceType string) string {
	t, _ := SplitType(serviceType)
	return t
}

// ValidateType checks that a service type is usable for a browse or publish.
func ValidateType(serviceType string) error {
	normalized := NormalizeType(serviceType)
	if normalized == "" {
		return nsderr.New(nsderr.IllegalArgument, "expected service type")
	}
	if _, ok := dns.IsDomainName(normalized); !ok {
		return nsderr.Newf(nsderr.IllegalArgument, "invalid service type %q", serviceType)
	}
	return nil
}

// QualifiedType joins a service type and a domain into a fully qualified name.
// A domain already carried by serviceType is replaced.
func QualifiedType(serviceType, domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	return dns.Fqdn(ServiceType(serviceType) + "." + NormalizeType(domain))
}

// SplitInstance extracts the unescaped instance name from a fully qualified
// service instance name such as `My\ Printer._ipp._tcp.local.`.
// It returns an empty string if the name does not contain serviceType.
func SplitInstance(fullName, serviceType string) string {
	labels := dns.SplitDomainName(fullName)
	typeLabels := dns.SplitDomainName(ServiceType(serviceType))
	if len(labels) == 0 || len(typeLabels) == 0 {
		return ""
	}

	for i := 1; i+len(typeLabels) <= len(labels); i++ {
		match := true
		for j, tl := range typeLabels {
			if !strings.EqualFold(labels[i+j], tl) {
				match = false
				break
			}
		}
		if match {
			return unescapeLabel(strings.Join(labels[:i], "."))
		}
	}
	return ""
}

// unescapeLabel reverses DNS presentation escaping (\. \\ \032).
func unescapeLabel(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			if n, err := strconv.Atoi(s[i+1 : i+4]); err == nil && n < 256 {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i+1])
		i++
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
