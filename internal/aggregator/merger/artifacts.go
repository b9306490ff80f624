package merger

import (
	"os"
	"path/filepath"
	"time"

	"vpnagg/internal/aggregator/model"
	"vpnagg/internal/aggregator/output"
)

// WriteArtifacts renders result's configurations in each named format and
// writes them under dir, matching the filenames spec §6 assigns
// (vpn_subscription_raw.txt, vpn_subscription_base64.txt, vpn_detailed.csv,
// vpn_singbox.json, vpn_report.json; "clash" writes clash.yaml, grounded on
// original_source/vpn_merger/api/rest_endpoints.py's `export` endpoint
// using the same filename for that one format). An empty or nil formats
// list writes nothing. dir is created if it does not already exist.
func (m *Merger) WriteArtifacts(dir string, formats []string, result *Result, elapsed time.Duration) error {
	if len(formats) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		wanted[f] = struct{}{}
	}

	for name := range wanted {
		text, filename, err := renderFormat(name, result, m.sources.TierCounts(), elapsed)
		if err != nil {
			return err
		}
		if filename == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, filename), []byte(text), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func renderFormat(name string, result *Result, tierCounts map[model.Tier]int, elapsed time.Duration) (text, filename string, err error) {
	switch name {
	case "raw":
		return output.Raw(result.Configurations), "vpn_subscription_raw.txt", nil
	case "base64":
		return output.Base64(result.Configurations), "vpn_subscription_base64.txt", nil
	case "csv":
		text, err = output.CSV(result.Configurations)
		return text, "vpn_detailed.csv", err
	case "singbox":
		text, err = output.Singbox(result.Configurations)
		return text, "vpn_singbox.json", err
	case "clash":
		text, err = output.Clash(result.Configurations)
		return text, "clash.yaml", err
	case "report":
		rep := output.BuildReport(result.Configurations, result.SourcesTotal, result.SourcesOK, result.SourcesFailed, tierCounts, elapsed, time.Now())
		text, err = rep.JSON()
		return text, "vpn_report.json", err
	default:
		return "", "", nil
	}
}
