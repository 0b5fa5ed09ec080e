// Package doctor validates the bot's configuration and host environment
// before the service starts taking traffic.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/stencilbot/stencilbot/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the host.
type Doctor struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkTemplatesDir(r)
	d.checkImagesDir(r)
	d.checkConverters(r)
	d.checkStatePath(r)
	d.checkURLRoot(r)
	d.checkPolling(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkTemplatesDir verifies the template directory is readable and counts
// the templates in it.
func (d *Doctor) checkTemplatesDir(r *Result) {
	dir := d.cfg.Templates.Dir
	if dir == "" {
		d.addError(r, "templates", "templates.dir", "templates.dir is required")
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		d.addError(r, "templates", "templates.dir",
			fmt.Sprintf("cannot read template directory: %v", err))
		return
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".svg") {
			count++
		}
	}
	if count == 0 {
		d.addWarning(r, "templates", "templates.dir",
			fmt.Sprintf("no .svg templates in %s; inline queries will return no results", dir))
	}
}

// checkImagesDir verifies the artifact directory exists and is writable.
func (d *Doctor) checkImagesDir(r *Result) {
	dir := d.cfg.Render.ImagesDir
	if dir == "" {
		d.addError(r, "render", "render.images_dir", "render.images_dir is required")
		return
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		d.addWarning(r, "render", "render.images_dir",
			fmt.Sprintf("%s does not exist yet; it will be created at startup", dir))
		return
	}
	if err != nil {
		d.addError(r, "render", "render.images_dir", fmt.Sprintf("cannot stat %s: %v", dir, err))
		return
	}
	if !info.IsDir() {
		d.addError(r, "render", "render.images_dir", fmt.Sprintf("%s is not a directory", dir))
		return
	}

	probe := filepath.Join(dir, fmt.Sprintf(".doctor-%d", os.Getpid()))
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		d.addError(r, "render", "render.images_dir",
			fmt.Sprintf("%s is not writable: %v", dir, err))
		return
	}
	_ = os.Remove(probe)
}

// checkConverters resolves both external converter commands on PATH.
func (d *Doctor) checkConverters(r *Result) {
	for field, cmd := range map[string]string{
		"render.inkscape_cmd": d.cfg.Render.InkscapeCmd,
		"render.convert_cmd":  d.cfg.Render.ConvertCmd,
	} {
		if cmd == "" {
			d.addError(r, "converters", field, "converter command is empty")
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			d.addError(r, "converters", field,
				fmt.Sprintf("converter %q not found: %v", cmd, err))
		}
	}
}

// checkStatePath verifies the state database directory exists.
func (d *Doctor) checkStatePath(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	dir := filepath.Dir(d.cfg.State.Path)
	if _, err := os.Stat(dir); err != nil {
		d.addWarning(r, "state", "state.path",
			fmt.Sprintf("state directory %s does not exist yet; it will be created at startup", dir))
	}
}

// checkURLRoot sanity-checks the public artifact URL base.
func (d *Doctor) checkURLRoot(r *Result) {
	root := d.cfg.Render.URLRoot
	if root == "" {
		d.addError(r, "render", "render.url_root", "render.url_root is required")
		return
	}
	if !strings.HasPrefix(root, "https://") {
		d.addWarning(r, "render", "render.url_root",
			"url_root is not https; Telegram requires https photo URLs")
	}
	if !strings.HasSuffix(root, "/") {
		d.addWarning(r, "render", "render.url_root",
			"url_root has no trailing slash; artifact keys are appended verbatim")
	}
}

// checkPolling flags polling settings that would hammer or stall the API.
func (d *Doctor) checkPolling(r *Result) {
	if d.cfg.Service.PollInterval < 50*time.Millisecond {
		d.addWarning(r, "service", "service.poll_interval",
			fmt.Sprintf("poll_interval %s is very short", d.cfg.Service.PollInterval))
	}
	if d.cfg.Service.PollTimeout > time.Minute {
		d.addWarning(r, "service", "service.poll_timeout",
			fmt.Sprintf("poll_timeout %s exceeds one minute", d.cfg.Service.PollTimeout))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
