package report

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/cwbudde/bouncepath/internal/runner"
	"github.com/cwbudde/bouncepath/internal/store"
)

func init() {
	// NO_COLOR still disables colours when output is piped
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// Success prints a green line with a check mark
func Success(w io.Writer, format string, a ...any) {
	green.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Warning prints a yellow line
func Warning(w io.Writer, format string, a ...any) {
	yellow.Fprintf(w, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

// Step prints a cyan progress line
func Step(w io.Writer, format string, a ...any) {
	cyan.Fprintf(w, "→ %s\n", fmt.Sprintf(format, a...))
}

// Error prints title, explanation and suggestions to stderr and returns an
// error carrying only the title, for commands that silence cobra's own
// error output.
func Error(title, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(os.Stderr)
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}
	return fmt.Errorf("%s", title)
}

// PrintOutcome writes the summary of a finished run
func PrintOutcome(w io.Writer, outcome *runner.Outcome) {
	if outcome == nil || outcome.Result == nil {
		Warning(w, "No result")
		return
	}
	result := outcome.Result

	bold.Fprintf(w, "Run %s\n", outcome.RunID)
	fmt.Fprintf(w, "  Improvements:    %d\n", result.Improvements)
	if result.Converged {
		fmt.Fprintf(w, "  Converged:       %s\n", green.Sprint("yes"))
	} else {
		fmt.Fprintf(w, "  Converged:       %s\n", yellow.Sprint("no"))
	}
	fmt.Fprintf(w, "  Curved action:   %.6g\n", result.CurvedAction)
	fmt.Fprintf(w, "  Straight action: %.6g\n", result.StraightAction)
	fmt.Fprintf(w, "  Best action:     %s\n", green.Sprintf("%.6g", result.Action))
	if len(result.Weights) == 2 {
		fmt.Fprintf(w, "  Weights:         (%.4f, %.4f)\n", result.Weights[0], result.Weights[1])
	}
	if outcome.Bubble != nil {
		bubble := outcome.Bubble
		fmt.Fprintf(w, "  Bubble action:   %.6g (kinetic %.4g, potential %.4g)\n",
			bubble.Action, bubble.Kinetic, bubble.Potential)
		if len(bubble.Radii) > 0 {
			fmt.Fprintf(w, "  Bubble radius:   %.4g\n", bubble.Radii[len(bubble.Radii)-1])
		}
	}
	if outcome.Elapsed > 0 {
		fmt.Fprintf(w, "  Elapsed:         %s\n", outcome.Elapsed.Round(time.Millisecond))
	}
}

// PrintOutcomes writes ledger rows as a table, newest first as given
func PrintOutcomes(w io.Writer, outcomes []store.PairOutcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No outcomes recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tTEMPERATURE\tACTION\tIMPROVEMENTS\tRECORDED\tREASON")
	for _, outcome := range outcomes {
		status := green.Sprint(outcome.Status)
		action := fmt.Sprintf("%.6g", outcome.Action)
		switch outcome.Status {
		case store.StatusCancelled:
			status = yellow.Sprint(outcome.Status)
		case store.StatusFailed:
			status = red.Sprint(outcome.Status)
			action = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%g\t%s\t%d\t%s\t%s\n",
			outcome.RunID,
			status,
			outcome.Temperature,
			action,
			outcome.Improvements,
			outcome.RecordedAt.Format("2006-01-02 15:04:05"),
			outcome.Reason)
	}
	tw.Flush()
}
