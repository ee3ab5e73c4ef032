package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/promptmill/internal/pipeline"
	"github.com/roach88/promptmill/internal/record"
)

// reportView renders a full run report.
type reportView pipeline.Report

func (v reportView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", v.RunID)
	writePhase(&b, pipeline.PhaseGenerate, v.Generate)
	writePhase(&b, pipeline.PhaseDispatch, v.Dispatch)
	fmt.Fprintf(&b, "Store: %d pending, %d completed", v.Counts.Pending, v.Counts.Completed)
	return b.String()
}

// phaseView renders a single phase.
type phaseView struct {
	Phase                string `json:"phase" yaml:"phase"`
	pipeline.PhaseReport `yaml:",inline"`
}

func (v phaseView) String() string {
	var b strings.Builder
	writePhase(&b, v.Phase, v.PhaseReport)
	return strings.TrimSuffix(b.String(), "\n")
}

func writePhase(b *strings.Builder, phase string, r pipeline.PhaseReport) {
	if r.Skipped {
		fmt.Fprintf(b, "  %-9s skipped\n", phase+":")
		return
	}
	fmt.Fprintf(b, "  %-9s %d attempted, %d succeeded, %d failed", phase+":", r.Attempted, r.Succeeded, r.Failed())
	if len(r.Failures) > 0 {
		kinds := make([]string, 0, len(r.Failures))
		for k := range r.Failures {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		parts := make([]string, len(kinds))
		for i, k := range kinds {
			parts[i] = fmt.Sprintf("%s=%d", k, r.Failures[k])
		}
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// addedView is the result of the add command.
type addedView struct {
	ID   int64  `json:"prompt_id" yaml:"prompt_id"`
	Text string `json:"prompt_text" yaml:"prompt_text"`
}

func (v addedView) String() string {
	return fmt.Sprintf("Added prompt %d", v.ID)
}

// promptsView lists prompts.
type promptsView struct {
	Prompts []record.Prompt `json:"prompts" yaml:"prompts"`
}

func (v promptsView) String() string {
	if len(v.Prompts) == 0 {
		return "No prompts."
	}
	var b strings.Builder
	for i, p := range v.Prompts {
		if i > 0 {
			b.WriteString("\n")
		}
		when := p.CreatedAt.UTC().Format(time.RFC3339)
		if p.CompletedAt != nil {
			when = p.CompletedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%5d  %-9s  %s  %s", p.ID, p.Status, when, p.Text)
	}
	return b.String()
}

// poolView describes the example pool and the current cycle.
type poolView struct {
	Size      int   `json:"size" yaml:"size"`
	Remaining []int `json:"remaining" yaml:"remaining"`
}

func (v poolView) String() string {
	return fmt.Sprintf("Example pool: %d examples, %d left in current cycle", v.Size, len(v.Remaining))
}
