// Package vault reads from and writes to the markdown knowledge vault the
// reports are built from.
package vault

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/dbrain/pkg/logger"
)

const (
	SummariesDir = "summaries"
	MOCFile      = "MOC/MOC-weekly.md"
	// PreviousWeeksHeading anchors new summary links in the weekly MOC.
	PreviousWeeksHeading = "## Previous Weeks\n"
)

// SummaryFrontmatter is written at the top of each weekly summary.
type SummaryFrontmatter struct {
	Date string `yaml:"date"`
	Type string `yaml:"type"`
	Week string `yaml:"week"`
}

// SummaryWriter stores delivered weekly digests in the vault.
type SummaryWriter struct {
	root      string
	converter *md.Converter
}

// NewSummaryWriter creates a writer for the vault at root.
func NewSummaryWriter(root string) *SummaryWriter {
	return &SummaryWriter{
		root:      root,
		converter: md.NewConverter("", true, &md.Options{EscapeMode: "disabled"}),
	}
}

// ISOWeek formats the ISO week of t as YYYY-Www.
func ISOWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// SummaryPath returns where the summary for the week of t is stored.
func (w *SummaryWriter) SummaryPath(t time.Time) string {
	return filepath.Join(w.root, SummariesDir, ISOWeek(t)+"-summary.md")
}

// Save converts the Telegram HTML report to markdown and writes it with
// frontmatter. An existing summary for the same week is replaced.
func (w *SummaryWriter) Save(ctx context.Context, reportHTML string, date time.Time) (string, error) {
	path := w.SummaryPath(date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create summaries directory")
	}

	front, err := yaml.Marshal(SummaryFrontmatter{
		Date: date.Format("2006-01-02"),
		Type: "weekly-summary",
		Week: ISOWeek(date),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal summary frontmatter")
	}

	body, err := w.ToMarkdown(reportHTML)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(front)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	buf.WriteString("\n")

	if err := lockedfile.Write(path, &buf, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write summary %s", path)
	}
	logger.G(ctx).WithField("path", path).Info("weekly summary saved")
	return path, nil
}

// ToMarkdown converts report HTML to markdown one line at a time so the
// line structure of the report survives. Only tags are rewritten; plain text
// such as "1. item" or "a_b" is kept as written.
func (w *SummaryWriter) ToMarkdown(reportHTML string) (string, error) {
	lines := strings.Split(strings.TrimSpace(reportHTML), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			out = append(out, "")
			continue
		}
		converted, err := w.converter.ConvertString(line)
		if err != nil {
			return "", errors.Wrap(err, "failed to convert report to markdown")
		}
		out = append(out, converted)
	}
	return strings.Join(out, "\n"), nil
}

// LinkInMOC adds a link to the summary under the Previous Weeks heading of
// the weekly MOC. It does nothing when the MOC does not exist, has no such
// heading, or already mentions the summary.
func (w *SummaryWriter) LinkInMOC(ctx context.Context, summaryPath string) (bool, error) {
	mocPath := filepath.Join(w.root, MOCFile)
	if _, err := os.Stat(mocPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to stat weekly MOC")
	}

	name := filepath.Base(summaryPath)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	link := fmt.Sprintf("- [[%s/%s|%s]]", SummariesDir, name, stem)

	updated := false
	err := lockedfile.Transform(mocPath, func(data []byte) ([]byte, error) {
		content := string(data)
		if strings.Contains(content, stem) || !strings.Contains(content, PreviousWeeksHeading) {
			return data, nil
		}
		updated = true
		return []byte(strings.Replace(content, PreviousWeeksHeading, PreviousWeeksHeading+"\n"+link+"\n", 1)), nil
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to update weekly MOC")
	}
	if updated {
		logger.G(ctx).WithField("summary", stem).Info("linked summary in weekly MOC")
	}
	return updated, nil
}
