package output

import (
	"encoding/json"
	"strconv"

	"vpnagg/internal/aggregator/model"
)

// singboxOutbound mirrors the subset of sing-box's published outbound JSON
// schema the aggregator can populate from a VPNConfiguration's parsed
// host/port — a hand-rolled struct set rather than importing
// github.com/sagernet/sing-box directly (its option structs are
// version-fragile and deeply nested; see DESIGN.md).
type singboxOutbound struct {
	Type       string `json:"type"`
	Tag        string `json:"tag"`
	Server     string `json:"server"`
	ServerPort int    `json:"server_port"`
}

type singboxDocument struct {
	Outbounds []singboxOutbound `json:"outbounds"`
}

// Singbox renders the sing-box outbounds configuration object.
func Singbox(configs []*model.VPNConfiguration) (string, error) {
	doc := singboxDocument{Outbounds: make([]singboxOutbound, 0, len(configs))}
	for i, c := range configs {
		doc.Outbounds = append(doc.Outbounds, singboxOutbound{
			Type:       singboxType(c.Protocol),
			Tag:        tagFor(c, i),
			Server:     c.Host,
			ServerPort: c.Port,
		})
	}
	buf, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func singboxType(p model.Protocol) string {
	switch p {
	case model.ProtocolVMess:
		return "vmess"
	case model.ProtocolVLess:
		return "vless"
	case model.ProtocolTrojan:
		return "trojan"
	case model.ProtocolShadowsocks, model.ProtocolShadowsocksR:
		return "shadowsocks"
	case model.ProtocolHysteria:
		return "hysteria"
	case model.ProtocolHysteria2:
		return "hysteria2"
	case model.ProtocolTUIC:
		return "tuic"
	case model.ProtocolWireGuard:
		return "wireguard"
	default:
		return "direct"
	}
}

func tagFor(c *model.VPNConfiguration, index int) string {
	if c.Host != "" {
		return c.Host
	}
	return protocolTag(c.Protocol, index)
}

func protocolTag(p model.Protocol, index int) string {
	return string(p) + "-" + strconv.Itoa(index)
}
