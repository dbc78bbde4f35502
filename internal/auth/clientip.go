package auth

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address a request came from. Forwarding headers are
// only honored when the direct peer is one of trustedProxies; the client is
// the right-most address in the chain that is not a trusted proxy.
func ClientIP(r *http.Request, trustedProxies []*net.IPNet) string {
	if r == nil {
		return ""
	}
	remoteHost := remoteAddrHost(r.RemoteAddr)
	if remoteHost == "" || len(trustedProxies) == 0 {
		return remoteHost
	}
	remoteIP := parseIP(remoteHost)
	if remoteIP == nil || !ipInNets(remoteIP, trustedProxies) {
		return remoteHost
	}
	if ip := selectClientIP(parseForwardedFor(r.Header.Get("Forwarded")), trustedProxies); ip != "" {
		return ip
	}
	if ip := selectClientIP(parseXForwardedFor(r.Header.Get("X-Forwarded-For")), trustedProxies); ip != "" {
		return ip
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != nil {
		return ip.String()
	}
	return remoteHost
}

// ParseTrustedProxies parses IPs and CIDRs. Invalid entries are returned
// separately so the caller can log them.
func ParseTrustedProxies(values []string) ([]*net.IPNet, []string) {
	if len(values) == 0 {
		return nil, nil
	}
	trusted := make([]*net.IPNet, 0, len(values))
	var invalid []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if strings.Contains(value, "/") {
			_, ipNet, err := net.ParseCIDR(value)
			if err != nil {
				invalid = append(invalid, value)
				continue
			}
			trusted = append(trusted, ipNet)
			continue
		}
		ip := parseIP(value)
		if ip == nil {
			invalid = append(invalid, value)
			continue
		}
		bits := 128
		if ip.To4() != nil {
			bits = 32
		}
		trusted = append(trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return trusted, invalid
}

func remoteAddrHost(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

func selectClientIP(ips []net.IP, trustedProxies []*net.IPNet) string {
	for i := len(ips) - 1; i >= 0; i-- {
		if !ipInNets(ips[i], trustedProxies) {
			return ips[i].String()
		}
	}
	if len(ips) > 0 {
		return ips[0].String()
	}
	return ""
}

// parseForwardedFor extracts the for= parameters of an RFC 7239 header.
func parseForwardedFor(header string) []net.IP {
	if header == "" {
		return nil
	}
	var ips []net.IP
	for _, element := range strings.Split(header, ",") {
		for _, param := range strings.Split(element, ";") {
			param = strings.TrimSpace(param)
			if len(param) < 4 || !strings.EqualFold(param[:4], "for=") {
				continue
			}
			if ip := parseForwardedValue(param[4:]); ip != nil {
				ips = append(ips, ip)
			}
		}
	}
	return ips
}

func parseXForwardedFor(header string) []net.IP {
	if header == "" {
		return nil
	}
	var ips []net.IP
	for _, part := range strings.Split(header, ",") {
		if ip := parseIP(part); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

func parseForwardedValue(value string) net.IP {
	value = strings.Trim(strings.TrimSpace(value), "\"")
	if value == "" || strings.EqualFold(value, "unknown") {
		return nil
	}
	if strings.HasPrefix(value, "[") {
		if idx := strings.Index(value, "]"); idx != -1 {
			return parseIP(value[1:idx])
		}
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		return parseIP(host)
	}
	return parseIP(value)
}

func parseIP(value string) net.IP {
	value = strings.TrimSpace(value)
	if idx := strings.IndexByte(value, '%'); idx != -1 {
		value = value[:idx]
	}
	ip := net.ParseIP(value)
	if ip == nil {
		return nil
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4
	}
	return ip
}

func ipInNets(ip net.IP, nets []*net.IPNet) bool {
	for _, n := range nets {
		if n != nil && n.Contains(ip) {
			return true
		}
	}
	return false
}
