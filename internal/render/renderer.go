// Package render turns a template and a request string into a cached raster
// artifact via an external two-stage conversion pipeline.
package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/stencilbot/stencilbot/internal/log"
	"github.com/stencilbot/stencilbot/internal/template"
)

const (
	// maxOutputBytes caps the converter output captured for error logs.
	maxOutputBytes = 16 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before
	// sending SIGKILL to a stuck converter.
	terminationGracePeriod = 2 * time.Second

	intermediateExt = ".png"
)

// Renderer invokes the vector-to-raster and raster-to-target converters as
// child processes with an enforced wall-clock timeout per stage.
type Renderer struct {
	inkscapeCmd  string
	convertCmd   string
	background   string
	stageTimeout time.Duration
	logger       *slog.Logger
}

// NewRenderer creates a Renderer with the given converter commands.
func NewRenderer(inkscapeCmd, convertCmd, background string, stageTimeout time.Duration) *Renderer {
	if stageTimeout <= 0 {
		stageTimeout = 10 * time.Second
	}
	return &Renderer{
		inkscapeCmd:  inkscapeCmd,
		convertCmd:   convertCmd,
		background:   background,
		stageTimeout: stageTimeout,
		logger:       log.WithComponent("render"),
	}
}

// Render expands the template at templatePath with args, rasterizes it, and
// transcodes the result into outPath. The final file appears under outPath
// only after the whole chain succeeded; intermediate files are cleaned up on
// every path.
func (r *Renderer) Render(ctx context.Context, templatePath, outPath string, args []string) error {
	src, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}

	doc, err := template.Expand(string(src), args)
	if err != nil {
		return fmt.Errorf("expand template: %w", err)
	}

	tmp, err := os.CreateTemp("", "stencilbot-*.svg")
	if err != nil {
		return fmt.Errorf("create temp svg: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.WriteString(doc); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp svg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp svg: %w", err)
	}

	rasterPath := outPath + intermediateExt
	// The intermediate raster is removed regardless of outcome; its absence
	// is not an error.
	defer os.Remove(rasterPath)

	if err := r.runStage(ctx, "inkscape", r.inkscapeCmd,
		"-z", "--export-background="+r.background, "-e", rasterPath, tmpPath); err != nil {
		return err
	}

	partialPath := outPath + ".partial"
	if err := r.runStage(ctx, "convert", r.convertCmd, rasterPath, partialPath); err != nil {
		_ = os.Remove(partialPath)
		return err
	}

	// Materialize the artifact atomically; a reader either sees the complete
	// file or nothing.
	if err := os.Rename(partialPath, outPath); err != nil {
		_ = os.Remove(partialPath)
		return fmt.Errorf("materialize artifact: %w", err)
	}
	return nil
}

// runStage executes one converter with the stage timeout. On expiry the
// process gets SIGTERM, then SIGKILL after the grace period.
func (r *Renderer) runStage(ctx context.Context, stage, command string, args ...string) error {
	timer := time.NewTimer(r.stageTimeout)
	defer timer.Stop()

	cmd := exec.Command(command, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.logger.Debug("running converter", "stage", stage, "command", command)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", stage, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-timer.C:
		r.logger.Warn("converter timed out, sending SIGTERM", "stage", stage, "timeout", r.stageTimeout)
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}

		grace := time.NewTimer(terminationGracePeriod)
		defer grace.Stop()
		select {
		case <-waitErr:
		case <-grace.C:
			r.logger.Warn("converter did not exit after SIGTERM, sending SIGKILL", "stage", stage)
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-waitErr
		}
		return fmt.Errorf("%s timed out after %v: %w", stage, r.stageTimeout, context.DeadlineExceeded)

	case err := <-waitErr:
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				r.logger.Error("converter failed",
					"stage", stage,
					"exit_code", exitErr.ExitCode(),
					"output", truncateOutput(output.String()))
				return fmt.Errorf("%s exited with status %d", stage, exitErr.ExitCode())
			}
			return fmt.Errorf("wait for %s: %w", stage, err)
		}
		return nil
	}
}

func truncateOutput(s string) string {
	if len(s) > maxOutputBytes {
		return s[:maxOutputBytes]
	}
	return s
}
