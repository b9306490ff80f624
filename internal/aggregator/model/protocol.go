// Package model holds the shared data types of the aggregation pipeline:
// Source, ValidationResult, VPNConfiguration, Protocol, Job and Event.
// Nothing in this package performs I/O; it is the closed vocabulary the rest
// of the aggregator is built around.
package model

import "strings"

// Protocol is the closed enum of VPN proxy schemes the aggregator recognizes.
type Protocol string

const (
	ProtocolVMess        Protocol = "vmess"
	ProtocolVLess        Protocol = "vless"
	ProtocolTrojan       Protocol = "trojan"
	ProtocolShadowsocks  Protocol = "shadowsocks"
	ProtocolShadowsocksR Protocol = "shadowsocksr"
	ProtocolHysteria     Protocol = "hysteria"
	ProtocolHysteria2    Protocol = "hysteria2"
	ProtocolTUIC         Protocol = "tuic"
	ProtocolWireGuard    Protocol = "wireguard"
	ProtocolUnknown      Protocol = "unknown"
)

// schemePrefixes maps a lowercase URI scheme prefix to its Protocol.
// DetectProtocol keeps the longest matching prefix, so the order of the
// entries does not matter.
var schemePrefixes = []struct {
	prefix   string
	protocol Protocol
}{
	{"vmess://", ProtocolVMess},
	{"vless://", ProtocolVLess},
	{"trojan://", ProtocolTrojan},
	{"ss://", ProtocolShadowsocks},
	{"ssr://", ProtocolShadowsocksR},
	{"hysteria2://", ProtocolHysteria2},
	{"hysteria://", ProtocolHysteria},
	{"tuic://", ProtocolTUIC},
	{"wireguard://", ProtocolWireGuard},
}

// DetectProtocol returns the Protocol for a config URI based on its scheme
// prefix, case-insensitively. Returns ProtocolUnknown when no scheme matches.
func DetectProtocol(configURI string) Protocol {
	lower := strings.ToLower(configURI)
	best := ProtocolUnknown
	bestLen := 0
	for _, sp := range schemePrefixes {
		if strings.HasPrefix(lower, sp.prefix) && len(sp.prefix) > bestLen {
			best = sp.protocol
			bestLen = len(sp.prefix)
		}
	}
	return best
}

// acceptedLinePrefixes is the set of prefixes ConfigurationProcessor accepts
// from a raw source line (spec §4.4). Note this is a strict subset of
// schemePrefixes above: "wireguard://" is a valid detected Protocol but is
// never accepted as an individually-pasted line in a subscription body —
// WireGuard peers are distributed as full INI blocks, not single URIs, so
// the line-level gate only admits the eight URI-shaped schemes.
var acceptedLinePrefixes = []string{
	"vmess://", "vless://", "trojan://", "ss://", "ssr://",
	"hysteria://", "hysteria2://", "tuic://",
}

// HasAcceptedPrefix reports whether line starts (case-insensitively) with one
// of the protocol prefixes ConfigurationProcessor accepts as an individual
// configuration line.
func HasAcceptedPrefix(line string) (prefix string, ok bool) {
	lower := strings.ToLower(line)
	for _, p := range acceptedLinePrefixes {
		if strings.HasPrefix(lower, p) {
			return p, true
		}
	}
	return "", false
}

// AllSchemes returns every recognized scheme prefix (including wireguard://),
// used by SourceValidator's body scanning which must detect all protocols
// mentioned in a payload, not just the line-acceptable subset.
func AllSchemes() []string {
	out := make([]string, len(schemePrefixes))
	for i, sp := range schemePrefixes {
		out[i] = sp.prefix
	}
	return out
}
