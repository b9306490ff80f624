package output

import (
	"gopkg.in/yaml.v3"

	"vpnagg/internal/aggregator/model"
)

// clashProxy covers the fields common to Clash's proxy types. Every field
// is always written; a host or port that could not be parsed is written
// as its zero value.
type clashProxy struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Server string `yaml:"server"`
	Port   int    `yaml:"port"`
}

type clashDocument struct {
	Proxies []clashProxy `yaml:"proxies"`
}

// Clash renders the Clash YAML proxy list.
func Clash(configs []*model.VPNConfiguration) (string, error) {
	doc := clashDocument{Proxies: make([]clashProxy, 0, len(configs))}
	for i, c := range configs {
		doc.Proxies = append(doc.Proxies, clashProxy{
			Name:   tagFor(c, i),
			Type:   singboxType(c.Protocol),
			Server: c.Host,
			Port:   c.Port,
		})
	}
	buf, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
