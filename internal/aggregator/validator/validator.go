// Package validator implements SourceValidator (spec §4.3): probes a source
// URL, classifies its body format, estimates a configuration count, scans for
// protocol schemes, and derives a reliability score.
package validator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"vpnagg/internal/aggregator/model"
)

const (
	maxRecursionDepth = 10
	maxHistory        = 1000
)

// Validator probes sources and keeps a bounded history of results.
type Validator struct {
	fetch func(ctx context.Context, url string) (status int, body string, responseTime time.Duration, err error)

	mu      sync.Mutex
	history []model.ValidationResult
}

// New constructs a Validator. fetch performs the actual HTTP GET and is
// injected so tests never touch the network: dependency injection over a
// package-level client.
func New(fetch func(ctx context.Context, url string) (int, string, time.Duration, error)) *Validator {
	return &Validator{fetch: fetch}
}

// Validate probes url and returns a ValidationResult. Per spec §4.3 this
// never returns an error; all failure modes surface as accessible=false with
// an error string.
func (v *Validator) Validate(ctx context.Context, url string) model.ValidationResult {
	start := time.Now()
	status, body, fetchElapsed, err := v.fetch(ctx, url)

	var result model.ValidationResult
	switch {
	case err != nil:
		result = errorResult(url, err.Error(), time.Since(start))
	case status != 200:
		result = errorResult(url, httpErrorText(status), fetchElapsed)
	default:
		protocols := detectProtocols(body, 0)
		count := estimateConfigCount(body, 0)
		result = model.ValidationResult{
			URL:              url,
			Accessible:       true,
			StatusCode:       status,
			ContentLength:    len(body),
			EstimatedConfigs: count,
			ProtocolsFound:   protocols,
			ReliabilityScore: reliabilityScore(status, count, protocols),
			ResponseTime:     fetchElapsed,
			Timestamp:        time.Now(),
		}
	}

	v.appendHistory(result)
	return result
}

func errorResult(url, errText string, elapsed time.Duration) model.ValidationResult {
	return model.ValidationResult{
		URL:          url,
		Accessible:   false,
		ResponseTime: elapsed,
		Error:        errText,
		Timestamp:    time.Now(),
	}
}

func httpErrorText(status int) string {
	return "HTTP " + strconv.Itoa(status)
}

func (v *Validator) appendHistory(r model.ValidationResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.history = append(v.history, r)
	if len(v.history) > maxHistory {
		v.history = v.history[len(v.history)-maxHistory:]
	}
}

// History returns a copy of the bounded validation history.
func (v *Validator) History() []model.ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.ValidationResult, len(v.history))
	copy(out, v.history)
	return out
}

// detectProtocols scans body for any known scheme prefix, case-insensitive,
// at line starts and (for structured formats) inside string values up to
// maxRecursionDepth (spec §4.3 step 4).
func detectProtocols(body string, depth int) map[model.Protocol]struct{} {
	found := make(map[model.Protocol]struct{})
	format := detectFormat(body)

	switch format {
	case formatBase64:
		if decoded, ok := tryBase64Decode(body); ok && depth < maxRecursionDepth {
			for p := range detectProtocols(decoded, depth+1) {
				found[p] = struct{}{}
			}
		}
	case formatJSON, formatYAML:
		scanLines(body, found)
		if depth < maxRecursionDepth {
			scanStringValuesJSON(body, found, depth)
		}
	default:
		scanLines(body, found)
	}
	return found
}

func scanLines(body string, found map[model.Protocol]struct{}) {
	for _, line := range strings.Split(strings.ToLower(body), "\n") {
		line = strings.TrimSpace(line)
		for _, scheme := range model.AllSchemes() {
			if strings.HasPrefix(line, scheme) {
				found[model.DetectProtocol(scheme)] = struct{}{}
			}
		}
	}
}

// scanStringValuesJSON walks a JSON document (best-effort; non-JSON bodies
// simply fail to unmarshal and are skipped) looking for string values that
// contain a protocol scheme, up to maxRecursionDepth.
func scanStringValuesJSON(body string, found map[model.Protocol]struct{}, depth int) {
	var v interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &v); err != nil {
		return
	}
	walkJSON(v, found, depth)
}

func walkJSON(v interface{}, found map[model.Protocol]struct{}, depth int) {
	if depth >= maxRecursionDepth {
		return
	}
	switch t := v.(type) {
	case string:
		lower := strings.ToLower(t)
		for _, scheme := range model.AllSchemes() {
			if strings.Contains(lower, scheme) {
				found[model.DetectProtocol(scheme)] = struct{}{}
			}
		}
	case []interface{}:
		for _, item := range t {
			walkJSON(item, found, depth+1)
		}
	case map[string]interface{}:
		for _, item := range t {
			walkJSON(item, found, depth+1)
		}
	}
}

type contentFormat int

const (
	formatPlainText contentFormat = iota
	formatJSON
	formatYAML
	formatBase64
)

// detectFormat classifies body per spec §4.3 step 4: JSON if {/[ parses;
// YAML if it has "- " / "key:" line markers; base64 if whitespace-stripped
// length is a positive multiple of 4 and decodes; else plain_text.
func detectFormat(body string) contentFormat {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v interface{}
		if json.Unmarshal([]byte(trimmed), &v) == nil {
			return formatJSON
		}
	}
	for _, line := range strings.Split(body, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "key:") {
			return formatYAML
		}
	}
	if _, ok := tryBase64Decode(body); ok {
		return formatBase64
	}
	return formatPlainText
}

func tryBase64Decode(body string) (string, bool) {
	stripped := stripWhitespace(body)
	if len(stripped) == 0 || len(stripped)%4 != 0 {
		return "", false
	}
	if decoded, err := base64.StdEncoding.DecodeString(stripped); err == nil {
		return string(decoded), true
	}
	return "", false
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// estimateConfigCount implements spec §4.3 step 5.
func estimateConfigCount(body string, depth int) int {
	format := detectFormat(body)

	switch format {
	case formatJSON:
		trimmed := strings.TrimSpace(body)
		var arr []interface{}
		if json.Unmarshal([]byte(trimmed), &arr) == nil {
			return len(arr)
		}
		var obj map[string]interface{}
		if json.Unmarshal([]byte(trimmed), &obj) == nil {
			for _, key := range []string{"configs", "servers", "proxies", "outbounds", "inbounds"} {
				if v, ok := obj[key]; ok {
					if list, ok := v.([]interface{}); ok {
						return len(list)
					}
				}
			}
			return 1
		}
		return 1

	case formatYAML:
		count := 0
		for _, line := range strings.Split(body, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "- ") {
				count++
			}
		}
		if count < 1 {
			count = 1
		}
		return count

	case formatBase64:
		if depth < maxRecursionDepth {
			if decoded, ok := tryBase64Decode(body); ok {
				return estimateConfigCount(decoded, depth+1)
			}
		}
		return 1

	default:
		total := 0
		for _, scheme := range model.AllSchemes() {
			total += strings.Count(strings.ToLower(body), scheme)
		}
		if total > 0 {
			return total
		}
		return fallbackSeparatorEstimate(body)
	}
}

func fallbackSeparatorEstimate(body string) int {
	max := 0
	for _, sep := range []string{"\n", "|", ";", ","} {
		if c := strings.Count(body, sep); c > max {
			max = c
		}
	}
	n := max / 2
	if n < 1 {
		n = 1
	}
	return n
}

// reliabilityScore implements spec §4.3 step 6 exactly, grounded on
// original_source's _calculate_reliability_score.
func reliabilityScore(status, configCount int, protocols map[model.Protocol]struct{}) float64 {
	nProtocols := len(protocols)

	if status == 200 && configCount == 0 {
		if nProtocols > 0 {
			return 0.5
		}
		return 0.4
	}
	if status == 200 && configCount >= 100000 {
		if nProtocols >= 3 {
			return 1.0
		}
		return 0.8
	}

	statusScore := 0.0
	if status == 200 {
		statusScore = 0.4
	}
	configScore := float64(configCount) / 10000.0
	if configScore > 0.1 {
		configScore = 0.1
	}
	diversity := float64(nProtocols) / 5.0
	if diversity > 1.0 {
		diversity = 1.0
	}
	score := statusScore + configScore + diversity*0.3

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
