package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// UnknownUserAgent is recorded when a request carries no User-Agent header
const UnknownUserAgent = "Unknown"

var privateNets = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8", "::1/128", "fc00::/7"} {
		_, n, _ := net.ParseCIDR(cidr)
		nets = append(nets, n)
	}
	return nets
}()

// GetRealIP returns the client address recorded on audit entries.
//
// X-Real-IP wins when it holds a public address. Otherwise the first public
// hop of X-Forwarded-For is used, then its first valid hop, then gin's
// ClientIP.
func GetRealIP(c *gin.Context) string {
	if ip := parseIP(c.GetHeader("X-Real-IP")); ip != nil && !isPrivate(ip) {
		return ip.String()
	}

	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		var first net.IP
		for _, hop := range strings.Split(forwarded, ",") {
			ip := parseIP(hop)
			if ip == nil {
				continue
			}
			if !isPrivate(ip) {
				return ip.String()
			}
			if first == nil {
				first = ip
			}
		}
		if first != nil {
			return first.String()
		}
	}

	return c.ClientIP()
}

// GetUserAgent returns the request's User-Agent or UnknownUserAgent
func GetUserAgent(c *gin.Context) string {
	if ua := c.Request.UserAgent(); ua != "" {
		return ua
	}
	return UnknownUserAgent
}

func parseIP(s string) net.IP {
	return net.ParseIP(strings.TrimSpace(s))
}

func isPrivate(ip net.IP) bool {
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
