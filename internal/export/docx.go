package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// pandocDOCX converts HTML to DOCX by piping it through pandoc.
func pandocDOCX(pandocPath string, timeout time.Duration) htmlConverter {
	return func(ctx context.Context, html, title string) (*Result, error) {
		if _, err := exec.LookPath(pandocPath); err != nil {
			return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, pandocPath,
			"-f", "html",
			"-t", "docx",
			"--standalone",
			"--metadata", "title="+title,
			"-o", "-",
		)
		cmd.Stdin = strings.NewReader(html)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		output, err := cmd.Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil, fmt.Errorf("pandoc failed: %s", strings.TrimSpace(stderr.String()))
			}
			return nil, fmt.Errorf("pandoc execution failed: %w", err)
		}

		return &Result{
			Data:     output,
			Filename: sanitizeFilename(title) + ".docx",
			MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}, nil
	}
}
