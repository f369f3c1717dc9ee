package ratelimit

import (
	"fmt"
	"net/netip"
	"strings"

	"kv-gateway/middleware/ratelimit/domain"
)

// Classifier decide a classe do chamador a partir da chave extraída.
type Classifier func(caller string) domain.Class

// LoopbackOnly trata como confiável apenas 127.0.0.0/8 e ::1.
func LoopbackOnly(caller string) domain.Class {
	if addr, ok := parseAddr(caller); ok && addr.IsLoopback() {
		return domain.ClassTrustedLocal
	}
	return domain.ClassGeneral
}

// TrustedNetworks aceita loopback mais os CIDRs informados. Chaves que não são
// IP (ex: vindas de header) sempre caem na classe geral.
func TrustedNetworks(cidrs ...string) (Classifier, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted cidr %q: %w", c, err)
		}
		prefixes = append(prefixes, p.Masked())
	}

	return func(caller string) domain.Class {
		addr, ok := parseAddr(caller)
		if !ok {
			return domain.ClassGeneral
		}
		if addr.IsLoopback() {
			return domain.ClassTrustedLocal
		}
		for _, p := range prefixes {
			if p.Contains(addr) {
				return domain.ClassTrustedLocal
			}
		}
		return domain.ClassGeneral
	}, nil
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	// ::ffff:127.0.0.1 conta como loopback IPv4
	return addr.Unmap(), true
}
