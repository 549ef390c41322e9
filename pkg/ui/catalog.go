package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"mediarelay/pkg/catalog"
	"mediarelay/pkg/storage"
	"mediarelay/pkg/token"
)

// DirectoryCheck reports whether a directory fits in every button that carries it.
type DirectoryCheck struct {
	Name string
	OK   bool
	// Reason explains a failed check.
	Reason string
}

// CheckDirectories encodes the longest tokens each directory appears in. Directories that
// fail are silently left out of keyboards at runtime.
func CheckDirectories(dirs []string) []DirectoryCheck {
	checks := make([]DirectoryCheck, 0, len(dirs))
	for _, dir := range dirs {
		check := DirectoryCheck{Name: dir, OK: true}
		probes := []token.Token{
			{Action: token.Browse, Directory: dir, Page: 999, Correlation: "9999999999"},
			{Action: token.RandomSet, Directory: dir, Correlation: "9999999999"},
			{Action: token.BatchUpload, Directory: dir, Channel: "telegram"},
		}
		for _, probe := range probes {
			if _, err := token.Encode(probe); err != nil {
				check.OK = false
				check.Reason = err.Error()
				break
			}
		}
		checks = append(checks, check)
	}
	return checks
}

// RenderCatalog renders the configured channels and directories as tables.
func RenderCatalog(channels []catalog.Channel, dirs []string) string {
	th := defaultTheme()

	var b strings.Builder
	b.WriteString(th.header.Render("mediarelay catalog"))
	b.WriteString(" ")
	b.WriteString(th.headerMeta.Render(fmt.Sprintf("%d channels, %d directories", len(channels), len(dirs))))
	b.WriteString("\n\n")

	b.WriteString(th.section.Render("Channels"))
	b.WriteString("\n")
	channelRows := make([][]string, 0, len(channels))
	defaultCode := catalog.DefaultChannel(channels)
	for i, ch := range channels {
		provider, sub := storage.SplitChannel(ch.Code)
		marker := ""
		if ch.Code == defaultCode {
			marker = "default"
		}
		channelRows = append(channelRows, []string{
			strconv.Itoa(i + 1), ch.Name, ch.Code, provider, sub, catalog.DisplayChannel(channels, ch.Code), marker,
		})
	}
	b.WriteString(th.table([]string{"#", "Name", "Code", "Provider", "Subchannel", "Listed as", ""}, channelRows).String())
	b.WriteString("\n\n")

	b.WriteString(th.section.Render("Directories"))
	b.WriteString("\n")
	if len(dirs) == 0 {
		b.WriteString(th.hint.Render("none configured, uploads go to " + catalog.DefaultDirectory))
		b.WriteString("\n")
		return b.String()
	}

	dirRows := make([][]string, 0, len(dirs))
	for i, check := range CheckDirectories(dirs) {
		status := th.ok.Render("ok")
		if !check.OK {
			status = th.bad.Render("skipped: " + check.Reason)
		}
		dirRows = append(dirRows, []string{strconv.Itoa(i + 1), check.Name, status})
	}
	b.WriteString(th.table([]string{"#", "Directory", "Buttons"}, dirRows).String())
	b.WriteString("\n")

	return b.String()
}

func (th theme) table(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(th.border).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return th.headCell
			}
			return th.cell
		}).
		Headers(headers...).
		Rows(rows...)
}
