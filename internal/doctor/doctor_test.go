package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stencilbot/stencilbot/internal/config"
)

// fakeConverter drops an executable script into dir and returns its name.
func fakeConverter(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write converter: %v", err)
	}
	return path
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()

	templatesDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(templatesDir, "quote.svg"), []byte("<svg/>"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	imagesDir := t.TempDir()
	binDir := t.TempDir()

	return &config.Config{
		Service: config.ServiceConfig{
			Name:         "stencilbot",
			PollInterval: 200 * time.Millisecond,
			PollTimeout:  10 * time.Second,
		},
		Templates: config.TemplatesConfig{Dir: templatesDir},
		Render: config.RenderConfig{
			ImagesDir:   imagesDir,
			URLRoot:     "https://img.example.com/i/",
			InkscapeCmd: fakeConverter(t, binDir, "inkscape"),
			ConvertCmd:  fakeConverter(t, binDir, "convert"),
		},
		State: config.StateConfig{Path: filepath.Join(t.TempDir(), "state.db")},
	}
}

func findIssue(issues []Issue, field string) *Issue {
	for i := range issues {
		if issues[i].Field == field {
			return &issues[i]
		}
	}
	return nil
}

func TestValidateHealthySetup(t *testing.T) {
	r := New(validConfig(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %+v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %+v", r.Warnings)
	}
}

func TestValidateMissingTemplatesDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.Templates.Dir = filepath.Join(t.TempDir(), "nope")

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid result")
	}
	if findIssue(r.Errors, "templates.dir") == nil {
		t.Fatalf("missing templates.dir error: %+v", r.Errors)
	}
}

func TestValidateEmptyTemplatesDirWarns(t *testing.T) {
	cfg := validConfig(t)
	cfg.Templates.Dir = t.TempDir()

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("empty dir must be a warning, got errors: %+v", r.Errors)
	}
	if findIssue(r.Warnings, "templates.dir") == nil {
		t.Fatalf("missing empty-dir warning: %+v", r.Warnings)
	}
}

func TestValidateMissingConverter(t *testing.T) {
	cfg := validConfig(t)
	cfg.Render.InkscapeCmd = filepath.Join(t.TempDir(), "no-such-inkscape")

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid result")
	}
	issue := findIssue(r.Errors, "render.inkscape_cmd")
	if issue == nil {
		t.Fatalf("missing converter error: %+v", r.Errors)
	}
	if !strings.Contains(issue.Message, "not found") {
		t.Fatalf("unexpected message %q", issue.Message)
	}
}

func TestValidateAbsentImagesDirWarns(t *testing.T) {
	cfg := validConfig(t)
	cfg.Render.ImagesDir = filepath.Join(t.TempDir(), "images")

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("absent images dir must be a warning, got errors: %+v", r.Errors)
	}
	if findIssue(r.Warnings, "render.images_dir") == nil {
		t.Fatalf("missing images_dir warning: %+v", r.Warnings)
	}
}

func TestValidateURLRoot(t *testing.T) {
	cfg := validConfig(t)
	cfg.Render.URLRoot = "http://img.example.com/i"

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("url_root issues must be warnings, got errors: %+v", r.Errors)
	}
	warnings := 0
	for _, w := range r.Warnings {
		if w.Field == "render.url_root" {
			warnings++
		}
	}
	if warnings != 2 {
		t.Fatalf("expected https and trailing-slash warnings, got: %+v", r.Warnings)
	}
}

func TestFormatHuman(t *testing.T) {
	cfg := validConfig(t)
	cfg.Render.URLRoot = ""

	r := New(cfg).Validate()
	out := FormatHuman(r)
	if !strings.Contains(out, "Configuration invalid") {
		t.Fatalf("unexpected report:\n%s", out)
	}
	if !strings.Contains(out, "render.url_root") {
		t.Fatalf("report missing field:\n%s", out)
	}

	out = FormatHuman(New(validConfig(t)).Validate())
	if out != "Configuration valid.\n" {
		t.Fatalf("unexpected report for valid config: %q", out)
	}
}
