package backfill

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

// Confirmer gates a located gap before any data is written. It decouples
// the orchestration from terminal I/O: unattended runs plug in
// AutoConfirmer, interactive runs plug in TerminalConfirmer.
type Confirmer interface {
	// Confirm reports whether the backfill for this cluster's gap should
	// proceed.
	Confirm(cluster string, gap types.Gap) bool
}

// AutoConfirmer approves every gap. Used for unattended runs (--yes).
type AutoConfirmer struct{}

func (AutoConfirmer) Confirm(string, types.Gap) bool { return true }

// TerminalConfirmer prompts the operator on Out and reads the answer
// from In. Only an explicit "yes" (case-insensitive) proceeds.
type TerminalConfirmer struct {
	In  io.Reader
	Out io.Writer
}

func (c *TerminalConfirmer) Confirm(cluster string, gap types.Gap) bool {
	start := time.UnixMilli(gap.StartMillis).UTC()
	end := time.UnixMilli(gap.EndMillis).UTC()

	fmt.Fprintln(c.Out)
	fmt.Fprintln(c.Out, "============================================================")
	fmt.Fprintf(c.Out, "  Backfill gap found on cluster %q\n", cluster)
	fmt.Fprintln(c.Out, "============================================================")
	fmt.Fprintf(c.Out, "  Start:    %s (%d)\n", start.Format(time.RFC3339), gap.StartMillis)
	fmt.Fprintf(c.Out, "  End:      %s (%d)\n", end.Format(time.RFC3339), gap.EndMillis)
	fmt.Fprintf(c.Out, "  Duration: %s\n", gap.Duration())
	fmt.Fprintln(c.Out, "============================================================")
	fmt.Fprintln(c.Out)
	fmt.Fprint(c.Out, "Type 'yes' to backfill this range: ")

	scanner := bufio.NewScanner(c.In)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}
