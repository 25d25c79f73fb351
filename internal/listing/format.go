// Package listing renders tracker and journal data for the terminal.
package listing

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/saveweb/solar-tracker/internal/journal"
	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// FormatProjects writes projects as a table and returns how many were written.
func FormatProjects(w io.Writer, projects []tracker.Project) int {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects found")
		return 0
	}

	fmt.Fprintf(w, "%-24s %-8s %-7s %-6s %-6s %s\n",
		"IDENTIFIER", "VERSION", "DELAY", "PUBLIC", "PAUSED", "DESCRIPTION")
	fmt.Fprintf(w, "%-24s %-8s %-7s %-6s %-6s %s\n",
		"------------------------", "--------", "-------", "------", "------", "----------------------------------------")

	for _, p := range projects {
		fmt.Fprintf(w, "%-24s %-8s %-7s %-6s %-6s %s\n",
			truncate(p.Meta.Identifier, 24),
			dash(p.Client.Version),
			formatDelay(p.Client.Delay()),
			formatBool(p.Status.Public),
			formatBool(p.Status.Paused),
			truncate(firstLine(p.Meta.Slug), 40),
		)
	}

	fmt.Fprintf(w, "\n%d %s found\n", len(projects), plural(len(projects), "project", "projects"))
	return len(projects)
}

// FormatProjectsJSONL writes one compact JSON object per project.
func FormatProjectsJSONL(w io.Writer, projects []tracker.Project) error {
	for _, p := range projects {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal project to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatProjectJSON writes a single project as indented JSON.
func FormatProjectJSON(w io.Writer, p tracker.Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project to JSON: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	return nil
}

// FormatProject writes the human-readable details of one project.
func FormatProject(w io.Writer, p tracker.Project) {
	fmt.Fprintf(w, "Project '%s'\n\n", p.Meta.Identifier)
	rows := [][2]string{
		{"Description", dash(p.Meta.Slug)},
		{"Deadline", dash(p.Meta.Deadline)},
		{"Client version", dash(p.Client.Version)},
		{"Claim delay", formatDelay(p.Client.Delay())},
		{"Public", formatBool(p.Status.Public)},
		{"Paused", formatBool(p.Status.Paused)},
		{"Task id field", p.Mongodb.DocIDName()},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %-15s %s\n", row[0]+":", row[1])
	}
}

// FormatRanking writes endpoint probe results, fastest first. The selected
// endpoint is marked with "*".
func FormatRanking(w io.Writer, r tracker.Ranking) {
	if len(r) == 0 {
		fmt.Fprintln(w, "No tracker endpoints configured")
		return
	}

	fmt.Fprintf(w, "  %-40s %-10s %s\n", "NODE", "LATENCY", "STATUS")
	for i, m := range r {
		mark := " "
		if i == 0 {
			mark = "*"
		}
		latency, status := "-", "ok"
		if m.Healthy() {
			latency = m.Latency.Round(time.Millisecond).String()
		} else {
			status = "unreachable"
			if m.Err != nil {
				status = truncate("unreachable: "+m.Err.Error(), 60)
			}
		}
		fmt.Fprintf(w, "%s %-40s %-10s %s\n", mark, m.URL, latency, status)
	}
}

// FormatPending writes journal entries as a table and returns how many were
// written. Ages are relative to now.
func FormatPending(w io.Writer, entries []*journal.Entry, now time.Time) int {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No tasks in flight")
		return 0
	}

	fmt.Fprintf(w, "%-24s %-4s %-8s %s\n", "ID", "TYPE", "CLAIMED", "TASK")
	fmt.Fprintf(w, "%-24s %-4s %-8s %s\n",
		"------------------------", "----", "--------", "----------------------------------------")
	for _, e := range entries {
		task := "-"
		if e.Task != nil {
			task = truncate(string(e.Task.Raw()), 40)
		}
		fmt.Fprintf(w, "%-24s %-4s %-8s %s\n",
			truncate(e.ID.String(), 24),
			e.ID.Tag(),
			formatAge(now.Sub(e.ClaimedAt)),
			task,
		)
	}

	fmt.Fprintf(w, "\n%d %s in flight\n", len(entries), plural(len(entries), "task", "tasks"))
	return len(entries)
}

// FormatStats writes outcome counters sorted by outcome name.
func FormatStats(w io.Writer, stats map[string]int64) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No completed tasks")
		return
	}
	outcomes := make([]string, 0, len(stats))
	for outcome := range stats {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		fmt.Fprintf(w, "  %-10s %d\n", outcome+":", stats[outcome])
	}
}

// truncate shortens s to max characters, ending with "..." when cut.
func truncate(s string, max int) string {
	if s == "" {
		return "-"
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}

// firstLine returns the first non-empty trimmed line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatDelay shows a claim delay in seconds, or "-" when there is none.
func formatDelay(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// formatAge formats a duration as "2m ago", "1h ago", etc.
func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "-"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
