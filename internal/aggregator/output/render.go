// Package output renders a finished merge's VPNConfigurations into the
// wire-level artifact formats spec §6 names: raw, base64, detailed CSV,
// sing-box JSON, Clash YAML, and the JSON summary report. Rendering is
// mechanical, so raw/base64/CSV stay on the standard library
// (encoding/csv, encoding/base64) per SPEC_FULL.md's documented carve-out;
// no third-party CSV or base64 library appears anywhere in the example
// pack this was built from.
package output

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"strconv"
	"strings"

	"vpnagg/internal/aggregator/model"
)

// Raw renders the LF-joined list of accepted URIs, no trailing newline.
func Raw(configs []*model.VPNConfiguration) string {
	lines := make([]string, 0, len(configs))
	for _, c := range configs {
		lines = append(lines, c.ConfigURI)
	}
	return strings.Join(lines, "\n")
}

// Base64 renders the standard base64 encoding of Raw's output, no line
// breaks.
func Base64(configs []*model.VPNConfiguration) string {
	return base64.StdEncoding.EncodeToString([]byte(Raw(configs)))
}

// CSV renders the detailed CSV: header `Config,Ping_MS`, ping blank when
// unknown, RFC 4180 quoting via encoding/csv.
func CSV(configs []*model.VPNConfiguration) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Config", "Ping_MS"}); err != nil {
		return "", err
	}
	for _, c := range configs {
		ping := ""
		if c.PingMS != nil {
			ping = strconv.FormatInt(*c.PingMS, 10)
		}
		if err := w.Write([]string{c.ConfigURI, ping}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
