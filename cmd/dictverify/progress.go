package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"dictverify/internal/logging"
	"dictverify/internal/verify"
)

// progressReporter renders job events. On a terminal it redraws one status
// line; otherwise progress goes to the log in 10% steps.
type progressReporter struct {
	out         io.Writer
	interactive bool
	logger      *slog.Logger
	sampler     *logging.ProgressSampler
	lineWidth   int
}

func newProgressReporter(out io.Writer, logger *slog.Logger) *progressReporter {
	return &progressReporter{
		out:         out,
		interactive: isTerminal(out),
		logger:      logging.NewComponentLogger(logger, "cli"),
		sampler:     logging.NewProgressSampler(10),
	}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progressReporter) begin(title string, volumes int) {
	p.sampler.Reset()
	fmt.Fprintf(p.out, "Verifying %s (%d %s)\n", title, volumes, pluralize(volumes, "volume", "volumes"))
}

func (p *progressReporter) progress(ev verify.ProgressEvent, total int) {
	if p.interactive {
		p.redraw(fmt.Sprintf("  %3.0f%%  volume %d of %d", ev.Fraction*100, min(ev.Ordinal, total), total))
		return
	}
	if p.sampler.ShouldLog(ev.Fraction, ev.DictionaryID.String()) {
		p.logger.Info("verification progress",
			logging.String(logging.FieldDictionaryID, ev.DictionaryID.String()),
			logging.Int(logging.FieldVolume, ev.Ordinal),
			logging.Float64("percent", ev.Fraction*100))
	}
}

func (p *progressReporter) item(ev verify.ItemVerifiedEvent) {
	p.clear()
	fmt.Fprintf(p.out, "  %-40s %s\n", ev.Item, ev.Outcome)
}

func (p *progressReporter) done(title string, result verify.Result) {
	p.clear()
	fmt.Fprintln(p.out, summarizeResult(title, result))
}

func (p *progressReporter) redraw(line string) {
	pad := ""
	if n := p.lineWidth - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprint(p.out, "\r"+line+pad)
	p.lineWidth = len(line)
}

func (p *progressReporter) clear() {
	if p.lineWidth == 0 {
		return
	}
	fmt.Fprint(p.out, "\r"+strings.Repeat(" ", p.lineWidth)+"\r")
	p.lineWidth = 0
}

func summarizeResult(title string, result verify.Result) string {
	var b strings.Builder
	switch result.Status {
	case verify.StatusSucceeded:
		fmt.Fprintf(&b, "%s: ok (%d of %d %s verified)", title, result.Verified, result.Total, pluralize(result.Total, "volume", "volumes"))
	case verify.StatusCorrupted:
		fmt.Fprintf(&b, "%s: CORRUPTED at %s", title, result.Item)
	case verify.StatusFailed:
		fmt.Fprintf(&b, "%s: verification failed at %s: %s", title, result.Item, result.Message)
	case verify.StatusCancelled:
		fmt.Fprintf(&b, "%s: cancelled after %d of %d %s", title, result.Verified, result.Total, pluralize(result.Total, "volume", "volumes"))
	default:
		fmt.Fprintf(&b, "%s: %s", title, result.Status)
	}
	if result.PersistErr != nil {
		fmt.Fprintf(&b, " (warning: result not saved: %v)", result.PersistErr)
	}
	return b.String()
}
