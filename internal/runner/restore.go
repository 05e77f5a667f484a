package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Restore runs the external face-restoration tool. The tool is a standalone
// program invoked per job; the reference image is staged into a scratch
// directory, the tool writes the restored copy next to it.
type Restore struct {
	tool   string
	args   []string
	logger zerolog.Logger
}

// NewRestore builds the restoration runner. extraArgs is a space-separated
// argument string appended to every invocation. An empty tool path falls
// back to synthetic output so development machines stay usable.
func NewRestore(tool, extraArgs string, logger zerolog.Logger) *Restore {
	var args []string
	if strings.TrimSpace(extraArgs) != "" {
		args = strings.Fields(extraArgs)
	}
	return &Restore{tool: tool, args: args, logger: logger}
}

// Run stages the input image, invokes the tool and reads back the result.
func (r *Restore) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.RefImage) == 0 {
		return nil, fmt.Errorf("runner: restoration requires a reference image")
	}
	if r.tool == "" {
		r.logger.Debug().Str("job_id", req.JobID).Msg("runner: no restore tool configured, rendering synthetic image")
		return synthesize(req, "synthetic")
	}

	workDir, err := os.MkdirTemp("", "restore-"+req.JobID+"-")
	if err != nil {
		return nil, fmt.Errorf("runner: scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.png")
	if err := os.WriteFile(inputPath, req.RefImage, 0o644); err != nil {
		return nil, fmt.Errorf("runner: stage input image: %w", err)
	}
	outputDir := filepath.Join(workDir, "out")

	args := append([]string{}, r.args...)
	args = append(args, "-i", inputPath, "-o", outputDir,
		"-s", fmt.Sprintf("%d", req.Steps), "-w", fmt.Sprintf("%g", req.Strength))

	cmd := exec.CommandContext(ctx, r.tool, args...)
	r.logger.Info().Str("job_id", req.JobID).Str("cmd", cmd.String()).Msg("runner: restoring image")
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("runner: restore tool failed: %w: %s", err, truncate(out, 256))
	}

	restoredPath := filepath.Join(outputDir, "restored_imgs", filepath.Base(inputPath))
	data, err := os.ReadFile(restoredPath)
	if err != nil {
		return nil, fmt.Errorf("runner: read restored image: %w", err)
	}

	return &Result{
		ImagePNG:  data,
		Seed:      req.Seed,
		Width:     req.Width,
		Height:    req.Height,
		Steps:     req.Steps,
		ModelName: filepath.Base(r.tool),
	}, nil
}

var _ Runner = (*Restore)(nil)
