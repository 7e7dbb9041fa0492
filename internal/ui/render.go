package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/sergi/go-diff/diffmatchpatch"

	"godra/internal/agent"
	"godra/internal/cag"
	"godra/internal/highlight"
	"godra/internal/watcher"
)

func renderHelp(s *Styles) string {
	var b strings.Builder
	b.WriteString(s.Accent.Render("commands") + "\n")
	for _, c := range commands {
		usage := c.name
		if c.args != "" {
			usage += " " + c.args
		}
		b.WriteString("  " + s.HelpCommand.Render(fmt.Sprintf("%-18s", usage)) + s.HelpText.Render(c.desc) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var kindOrder = []cag.Kind{
	cag.KindContextItem,
	cag.KindDecompiledFunction,
	cag.KindRenamedEntity,
	cag.KindAnalysisResult,
}

func renderStats(s *Styles, st cag.Stats) string {
	var b strings.Builder
	b.WriteString(s.Accent.Render("session cache") + "\n")
	fmt.Fprintf(&b, "  session: %s\n", st.SessionID)
	fmt.Fprintf(&b, "  knowledge documents: %d\n", st.KnowledgeDocs)
	for _, k := range kindOrder {
		fmt.Fprintf(&b, "  %s: %d\n", strings.ReplaceAll(string(k), "_", " "), st.SessionEntries[k])
	}
	fmt.Fprintf(&b, "  history sessions: %d\n", st.HistorySessions)
	fmt.Fprintf(&b, "  log size: ~%d tokens (prompt budget %d)\n", st.SessionTokens, st.TokenLimit)
	return strings.TrimRight(b.String(), "\n")
}

func renderKnowledge(s *Styles, ks KnowledgeStatus) string {
	var b strings.Builder
	b.WriteString(s.Accent.Render("reference corpus") + "\n")
	fmt.Fprintf(&b, "  documents: %d\n", ks.Documents)
	if ks.Watching {
		fmt.Fprintf(&b, "  watching: %d directories\n", ks.WatchedDirs)
	} else {
		b.WriteString("  watching: off\n")
	}
	if len(ks.Reloads) == 0 {
		b.WriteString(s.Muted.Render("  no reloads this session"))
		return b.String()
	}
	b.WriteString("  recent reloads:\n")
	for _, r := range ks.Reloads {
		fmt.Fprintf(&b, "    %s · %d files\n", r.Time.Format("15:04:05"), len(r.Paths))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSessions(s *Styles, ids []string, current string) string {
	if len(ids) == 0 {
		return s.Muted.Render("no saved sessions")
	}
	var b strings.Builder
	b.WriteString(s.Accent.Render("saved sessions") + "\n")
	for _, id := range ids {
		marker := "  "
		if id == current {
			marker = s.Success.Render("* ")
		}
		b.WriteString(marker + id + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderHealth(s *Styles, msg healthMsg) string {
	line := func(name string, err error) string {
		if err != nil {
			return s.Error.Render(fmt.Sprintf("  ✗ %s: %v", name, err))
		}
		return s.Success.Render(fmt.Sprintf("  ✓ %s: ok", name))
	}

	var b strings.Builder
	b.WriteString(s.Accent.Render("backend health") + "\n")
	b.WriteString(line("model ("+msg.model+")", msg.llmErr) + "\n")
	b.WriteString(line("analysis backend", msg.analyzerErr))
	return b.String()
}

func renderReload(s *Styles, msg watcher.ReloadedMsg) string {
	if msg.Err != nil {
		return s.FormatError(fmt.Errorf("corpus reload: %w", msg.Err))
	}
	return s.FormatNotice(fmt.Sprintf(
		"knowledge corpus reloaded: %d documents (%d files changed)", msg.Documents, len(msg.Paths)))
}

// renderOutcome formats a finished run: a verdict badge, a meta line, and
// the report rendered as markdown.
func renderOutcome(s *Styles, renderer *glamour.TermRenderer, outcome *agent.Outcome, elapsed time.Duration) string {
	badge := s.ReportBadge.Render("● answer")
	switch {
	case outcome.Canceled:
		badge = s.Warning.Render("■ canceled")
	case outcome.Directive == agent.DirectiveExitLoop:
		badge = s.Warning.Render("● incomplete")
	}

	meta := s.ReportMeta.Render(fmt.Sprintf("%d %s · %s · %s",
		outcome.Iterations, passWord(outcome.Iterations),
		elapsed.Round(100*time.Millisecond), outcome.Reason))

	body := outcome.Report
	if body == "" {
		body = outcome.Analysis
	}
	if body == "" {
		body = "No findings were produced."
	}
	if renderer != nil {
		if rendered, err := renderer.Render(body); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}

	return badge + " " + meta + "\n" + body
}

func passWord(n int) string {
	if n == 1 {
		return "pass"
	}
	return "passes"
}

// renderRecall formats a past analysis replayed by /log.
func renderRecall(s *Styles, renderer *glamour.TermRenderer, answer string) string {
	badge := s.ReportBadge.Render("● recalled")
	meta := s.ReportMeta.Render("from this session's log")
	if renderer != nil {
		if rendered, err := renderer.Render(answer); err == nil {
			answer = strings.TrimRight(rendered, "\n")
		}
	}
	return badge + " " + meta + "\n" + answer
}

// renderCode shows the most recent decompiled capture of a function with
// syntax highlighting and line numbers.
func renderCode(s *Styles, hl *highlight.Highlighter, name string, versions []cag.DecompiledFunction) string {
	if len(versions) == 0 {
		return s.Warning.Render(fmt.Sprintf("no captures of %q in this session", name))
	}
	latest := versions[len(versions)-1]
	header := s.Accent.Render(captureLabel(latest))
	if len(versions) > 1 {
		header += s.Muted.Render(fmt.Sprintf("  · %d captures, /diff shows changes", len(versions)))
	}
	lang := hl.DetectLanguage(latest.Code)
	return header + "\n" + hl.HighlightWithLineNumbers(latest.Code, lang, 1)
}

// diffLine is one line of a line-mode diff.
type diffLine struct {
	op   byte // '-', '+' or ' '
	text string
}

// diffLines computes a line-mode diff between two code captures.
func diffLines(before, after string) []diffLine {
	dmp := diffmatchpatch.New()
	c1, c2, lineArr := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(c1, c2, false), lineArr)

	var lines []diffLine
	for _, d := range diffs {
		op := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = '+'
		case diffmatchpatch.DiffDelete:
			op = '-'
		}
		for _, text := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			lines = append(lines, diffLine{op: op, text: text})
		}
	}
	return lines
}

// renderFunctionDiff diffs the last two captures of a function. Lone
// single-line replacements get inline span highlighting; everything else
// gets whole-line diff coloring.
func renderFunctionDiff(s *Styles, hl *highlight.Highlighter, name string, versions []cag.DecompiledFunction) string {
	if len(versions) == 0 {
		return s.Warning.Render(fmt.Sprintf("no captures of %q in this session", name))
	}
	if len(versions) == 1 {
		return s.Warning.Render(fmt.Sprintf("only one capture of %q; decompile it again after a change to diff", name))
	}

	before := versions[len(versions)-2]
	after := versions[len(versions)-1]
	if before.Code == after.Code {
		return s.FormatNotice(fmt.Sprintf("last two captures of %q are identical", name))
	}

	lines := diffLines(before.Code, after.Code)
	out := []string{
		hl.HighlightDiff("--- " + captureLabel(before)),
		hl.HighlightDiff("+++ " + captureLabel(after)),
	}

	for i := 0; i < len(lines); {
		if isLonePair(lines, i) {
			oldH, newH := hl.HighlightInlineDiff(lines[i].text, lines[i+1].text)
			out = append(out, "-"+oldH, "+"+newH)
			i += 2
			continue
		}
		out = append(out, hl.HighlightDiff(string(lines[i].op)+lines[i].text))
		i++
	}
	return strings.Join(out, "\n")
}

// isLonePair reports whether lines[i] starts a single-line replacement:
// one deletion followed by one insertion with neither run extending
// further.
func isLonePair(lines []diffLine, i int) bool {
	if lines[i].op != '-' || i+1 >= len(lines) || lines[i+1].op != '+' {
		return false
	}
	if i > 0 && lines[i-1].op == '-' {
		return false
	}
	if i+2 < len(lines) && lines[i+2].op == '+' {
		return false
	}
	return true
}

func captureLabel(f cag.DecompiledFunction) string {
	name := f.Name
	switch {
	case name == "":
		name = f.Address
	case f.Address != "":
		name = fmt.Sprintf("%s (%s)", f.Name, f.Address)
	}
	return fmt.Sprintf("%s at %s", name, f.Timestamp.Format("15:04:05"))
}
