package session

import (
	"encoding/hex"
	"net"

	"golang.org/x/crypto/blake2b"
)

// HashIP returns a keyed BLAKE2b-256 digest of the host part of remoteAddr,
// so records never hold a raw client address. An empty result means the
// address could not be parsed.
func HashIP(remoteAddr string, salt []byte) string {
	ip := hostIP(remoteAddr)
	if ip == nil {
		return ""
	}
	if len(salt) > blake2b.Size {
		salt = salt[:blake2b.Size]
	}
	h, err := blake2b.New256(salt)
	if err != nil {
		return ""
	}
	h.Write(ip)
	return hex.EncodeToString(h.Sum(nil))
}

// Subnet returns the /24 (IPv4) or /64 (IPv6) network of remoteAddr.
func Subnet(remoteAddr string) string {
	ip := hostIP(remoteAddr)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return (&net.IPNet{IP: v4.Mask(net.CIDRMask(24, 32)), Mask: net.CIDRMask(24, 32)}).String()
	}
	return (&net.IPNet{IP: ip.Mask(net.CIDRMask(64, 128)), Mask: net.CIDRMask(64, 128)}).String()
}

func hostIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}
