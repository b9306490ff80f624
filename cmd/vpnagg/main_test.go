package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildPipelineFallsBackOnMissingSourcesFile(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())
	p, err := buildPipeline(filepath.Join(t.TempDir(), "missing.yaml"), "error")
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	if len(p.sources.AllSources()) == 0 {
		t.Fatal("expected the embedded fallback source list to be populated")
	}
	if p.jobs == nil || p.merger == nil || p.discovery == nil {
		t.Fatal("expected every pipeline component to be constructed")
	}
}

func TestSubcommandsAreNamedAndRunnable(t *testing.T) {
	cases := map[string]string{
		"serve":    newServeCmd().Use,
		"merge":    newMergeCmd().Use,
		"validate": newValidateCmd().Use,
	}
	for wantPrefix, use := range cases {
		if !strings.HasPrefix(use, wantPrefix) {
			t.Fatalf("subcommand Use = %q, want to start with %q", use, wantPrefix)
		}
	}
}
