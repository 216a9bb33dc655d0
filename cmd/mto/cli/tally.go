package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cabinetworks/mto/internal/ledger"
)

// TallyMode enumerates supported execution strategies.
type TallyMode string

const (
	// TallyModeDry parses and previews the file without touching stock.
	TallyModeDry TallyMode = "dry"
	// TallyModeApply reconciles the counts after confirmation.
	TallyModeApply TallyMode = "apply"
)

// exit code returned when some entries of an applied batch failed.
const exitPartialTally = 10

// Reconciler applies a stock-tally batch.
type Reconciler interface {
	ReconcileTally(ctx context.Context, input ledger.TallyInput) (ledger.TallyReport, error)
}

// TallyOptions configures the tally command execution.
type TallyOptions struct {
	Path         string
	SourceReader io.Reader
	Mode         TallyMode
	Notes        string
	ActorID      int64
	JSONOutput   bool
	Yes          bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
	Confirm      func(io.Reader, io.Writer) (bool, error)
}

// TallySummary is the structured outcome printed by the command.
type TallySummary struct {
	Mode    TallyMode           `json:"mode"`
	Entries []ledger.TallyEntry `json:"entries,omitempty"`
	Report  *ledger.TallyReport `json:"report,omitempty"`
}

// TallyCLI imports physical stock counts from CSV files.
type TallyCLI struct {
	service Reconciler
}

// NewTallyCLI constructs the helper.
func NewTallyCLI(service Reconciler) (*TallyCLI, error) {
	if service == nil {
		return nil, errors.New("tally cli: reconciler required")
	}
	return &TallyCLI{service: service}, nil
}

// Command runs the tally import and returns the process exit code.
func (c *TallyCLI) Command(ctx context.Context, opts TallyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = TallyModeDry
	}
	mode := TallyMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case TallyModeDry, TallyModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "tally: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}

	entries, err := loadTallyEntries(opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "tally: %v\n", err)
		return 1
	}
	summary := TallySummary{Mode: mode, Entries: entries}
	if mode == TallyModeDry {
		if err := writeTallyOutput(opts, summary); err != nil {
			fmt.Fprintf(opts.Stderr, "tally: %v\n", err)
			return 1
		}
		return 0
	}

	if !opts.Yes {
		confirm := opts.Confirm
		if confirm == nil {
			confirm = promptConfirm
		}
		fmt.Fprintf(opts.Stderr, "apply %d counts? [y/N] ", len(entries))
		ok, err := confirm(opts.Stdin, opts.Stderr)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "tally: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(opts.Stderr, "tally: aborted")
			return 1
		}
	}

	report, err := c.service.ReconcileTally(ctx, ledger.TallyInput{Entries: entries, Notes: opts.Notes, ActorID: opts.ActorID})
	if err != nil {
		fmt.Fprintf(opts.Stderr, "tally: %v\n", err)
		return 1
	}
	summary.Entries = nil
	summary.Report = &report
	if err := writeTallyOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "tally: %v\n", err)
		return 1
	}
	if report.Failed > 0 {
		return exitPartialTally
	}
	return 0
}

func loadTallyEntries(opts TallyOptions) ([]ledger.TallyEntry, error) {
	if opts.SourceReader != nil {
		return ledger.ParseTallyCSV(opts.SourceReader)
	}
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("a CSV file is required")
	}
	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ledger.ParseTallyCSV(f)
}

func writeTallyOutput(opts TallyOptions, summary TallySummary) error {
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	if summary.Report == nil {
		fmt.Fprintf(opts.Stdout, "parsed %d counts (dry run)\n", len(summary.Entries))
		for _, e := range summary.Entries {
			fmt.Fprintf(opts.Stdout, "  item %d -> %s\n", e.ItemID, e.NewQuantity.String())
		}
		return nil
	}
	r := summary.Report
	fmt.Fprintf(opts.Stdout, "batch %s: %d updated, %d unchanged, %d failed\n", r.BatchID, r.Updated, r.Unchanged, r.Failed)
	for _, res := range r.Results {
		if res.Outcome != ledger.TallyFailed {
			continue
		}
		fmt.Fprintf(opts.Stdout, "  item %d failed: %s\n", res.ItemID, res.Error)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(opts.Stdout, "  warning %s: %s\n", w.Code, w.Message)
	}
	return nil
}

func promptConfirm(in io.Reader, _ io.Writer) (bool, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
