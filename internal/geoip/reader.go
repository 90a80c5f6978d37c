package geoip

import (
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"
)

// Provider resolves server addresses to ISO country codes.
type Provider struct {
	db *geoip2.Reader
}

// Open initializes the GeoIP database reader from a specific file path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db}, nil
}

// Close closes the underlying GeoIP database reader.
func (p *Provider) Close() error {
	return p.db.Close()
}

// CountryCode returns the ISO code (e.g. "DE") for ip, or "" when unknown.
// A nil Provider always returns "".
func (p *Provider) CountryCode(ip netip.Addr) string {
	if p == nil || !ip.IsValid() || ip.IsPrivate() || ip.IsLoopback() {
		return ""
	}

	record, err := p.db.Country(net.IP(ip.Unmap().AsSlice()))
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}

// LookupString is CountryCode for textual addresses.
func (p *Provider) LookupString(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	return p.CountryCode(addr)
}
