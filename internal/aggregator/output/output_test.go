package output

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"vpnagg/internal/aggregator/model"
)

func sampleConfigs() []*model.VPNConfiguration {
	return []*model.VPNConfiguration{
		{ConfigURI: "vmess://A", Protocol: model.ProtocolVMess, Host: "a.example.com", Port: 443},
		{ConfigURI: "vless://B", Protocol: model.ProtocolVLess, Host: "b.example.com", Port: 8443},
	}
}

func TestRawJoinsWithoutTrailingNewline(t *testing.T) {
	got := Raw(sampleConfigs())
	want := "vmess://A\nvless://B"
	if got != want {
		t.Fatalf("Raw() = %q, want %q", got, want)
	}
}

func TestBase64EncodesRawWithNoLineBreaks(t *testing.T) {
	got := Base64(sampleConfigs())
	if strings.Contains(got, "\n") {
		t.Fatal("base64 output must not contain line breaks")
	}
	decoded, err := base64.StdEncoding.DecodeString(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != Raw(sampleConfigs()) {
		t.Fatal("decoded base64 does not match Raw output")
	}
}

func TestCSVHasHeaderAndBlankPingWhenUnknown(t *testing.T) {
	got, err := CSV(sampleConfigs())
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if lines[0] != "Config,Ping_MS" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[1] != "vmess://A," {
		t.Fatalf("expected blank ping column, got %q", lines[1])
	}
}

func TestCSVIncludesPingWhenKnown(t *testing.T) {
	ping := int64(42)
	configs := []*model.VPNConfiguration{
		{ConfigURI: "vmess://A", Protocol: model.ProtocolVMess, PingMS: &ping},
	}
	got, err := CSV(configs)
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	if !strings.Contains(got, "vmess://A,42") {
		t.Fatalf("expected ping column populated, got %q", got)
	}
}

func TestDedupAcrossSourcesYieldsOneCSVRow(t *testing.T) {
	// mirrors spec's dedup scenario: accepted count = 1 once the
	// vpnconfig.Processor has already deduplicated upstream.
	configs := []*model.VPNConfiguration{
		{ConfigURI: "vmess://X", Protocol: model.ProtocolVMess},
	}
	got, err := CSV(configs)
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected exactly one data row, got %d lines", len(lines)-1)
	}
}

func TestSingboxRendersOneOutboundPerConfig(t *testing.T) {
	got, err := Singbox(sampleConfigs())
	if err != nil {
		t.Fatalf("Singbox: %v", err)
	}
	if !strings.Contains(got, `"type": "vmess"`) {
		t.Fatalf("expected vmess outbound type, got %q", got)
	}
	if !strings.Contains(got, `"server": "a.example.com"`) {
		t.Fatalf("expected server field, got %q", got)
	}
}

func TestClashRendersProxyList(t *testing.T) {
	got, err := Clash(sampleConfigs())
	if err != nil {
		t.Fatalf("Clash: %v", err)
	}
	if !strings.Contains(got, "proxies:") {
		t.Fatalf("expected a proxies key, got %q", got)
	}
	if !strings.Contains(got, "server: a.example.com") {
		t.Fatalf("expected server field, got %q", got)
	}
}

func TestBuildReportCountsReachableConfigs(t *testing.T) {
	reachable := true
	unreachable := false
	configs := []*model.VPNConfiguration{
		{ConfigURI: "a", IsReachable: &reachable},
		{ConfigURI: "b", IsReachable: &unreachable},
		{ConfigURI: "c"},
	}
	tierCounts := map[model.Tier]int{model.TierPremium: 2, model.TierBulk: 1}

	report := BuildReport(configs, 3, 2, 1, tierCounts, 5*time.Second, time.Unix(0, 0))

	if report.Statistics.TotalConfigs != 3 {
		t.Fatalf("expected 3 total configs, got %d", report.Statistics.TotalConfigs)
	}
	if report.Statistics.ReachableConfigs != 1 {
		t.Fatalf("expected 1 reachable config, got %d", report.Statistics.ReachableConfigs)
	}
	if report.SourceCategories.TotalUniqueSources != 3 {
		t.Fatalf("expected 3 unique sources across tiers, got %d", report.SourceCategories.TotalUniqueSources)
	}
}

func TestReportJSONIncludesGenerationInfo(t *testing.T) {
	report := BuildReport(nil, 0, 0, 0, nil, time.Second, time.Unix(0, 0))
	got, err := report.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(got, `"generation_info"`) {
		t.Fatalf("expected generation_info key, got %q", got)
	}
}
