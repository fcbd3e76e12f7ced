package capture

import (
	"net"

	"github.com/yl2chen/cidranger"
)

// internal address space: RFC1918, loopback, link-local, and their IPv6
// counterparts
var internalCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"fc00::/7",
	"fe80::/10",
	"::1/128",
}

// AddrClassifier answers whether an address belongs to the monitored
// internal network. The session coordinator uses it to split the retained
// window into LAN and WAN traffic for the assets view.
type AddrClassifier struct {
	ranger cidranger.Ranger
}

func NewAddrClassifier() *AddrClassifier {
	ranger := cidranger.NewPCTrieRanger()
	for _, cidr := range internalCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		_ = ranger.Insert(cidranger.NewBasicRangerEntry(*network))
	}
	return &AddrClassifier{ranger: ranger}
}

// Internal reports whether addr is part of the internal address space.
// Unparseable addresses count as external.
func (c *AddrClassifier) Internal(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	ok, err := c.ranger.Contains(ip)
	return err == nil && ok
}

// InternalFlow reports whether both endpoints stay inside the internal
// network.
func (c *AddrClassifier) InternalFlow(src, dst string) bool {
	return c.Internal(src) && c.Internal(dst)
}
