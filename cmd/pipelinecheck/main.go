// Command pipelinecheck validates a pipeline snapshot offline.
//
//	pipelinecheck [--json] [--fix] snapshot.json
//	cat snapshot.json | pipelinecheck
//
// It exits 0 for a legal record, 1 when issues are found, 2 on bad input.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/phases"
	"github.com/yungbote/tourforge-backend/internal/modules/pipeline/validation"
)

const (
	exitValid   = 0
	exitIssues  = 1
	exitBadData = 2
)

type report struct {
	Summary        string                 `json:"summary"`
	Validation     validation.Result      `json:"validation"`
	NeedsAttention []validation.Attention `json:"needs_attention"`
	Recovery       *validation.Recovery   `json:"recovery,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	code := exitBadData
	var asJSON, showFix bool

	cmd := &cobra.Command{
		Use:           "pipelinecheck [snapshot.json]",
		Short:         "Validate a pipeline snapshot and print the suggested recovery",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}
			c, err := check(in, stdout, asJSON, showFix)
			code = c
			return err
		},
	}
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&showFix, "fix", false, "print the suggested recovery")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitBadData
	}
	return code
}

func check(in io.Reader, stdout io.Writer, asJSON, showFix bool) (int, error) {
	snap, err := decode(in)
	if err != nil {
		return exitBadData, fmt.Errorf("invalid snapshot: %w", err)
	}

	res := validation.Validate(snap)
	rep := report{
		Summary:        validation.Summarize(snap),
		Validation:     res,
		NeedsAttention: validation.NeedsAttention(snap),
	}
	if rec, ok := res.Recovery(); ok {
		rep.Recovery = &rec
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return exitBadData, fmt.Errorf("encode: %w", err)
		}
	} else {
		fmt.Fprintln(stdout, rep.Summary)
		for _, is := range res.Issues {
			fmt.Fprintf(stdout, "  [%s] %s: %s\n", is.Severity, is.Code, is.Message)
		}
		for _, a := range rep.NeedsAttention {
			fmt.Fprintf(stdout, "  needs human: %s after %d automatic attempts\n", a.Step, a.AttemptCount)
		}
		if showFix && rep.Recovery != nil {
			fmt.Fprintf(stdout, "  recovery: phase=%s current_step=%d\n", rep.Recovery.Phase, rep.Recovery.CurrentStep)
		}
	}

	if !res.IsValid {
		return exitIssues, nil
	}
	return exitValid, nil
}

// decode accepts a bare snapshot or a full pipeline record; both share the
// phase/current_step/step_outputs/step_retry_state keys.
func decode(r io.Reader) (domain.Snapshot, error) {
	var snap domain.Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return domain.Snapshot{}, err
	}
	p, err := phases.ParsePhase(string(snap.Phase))
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Phase = p
	if snap.CurrentStep < 0 {
		return domain.Snapshot{}, fmt.Errorf("current_step must not be negative, got %d", snap.CurrentStep)
	}
	return snap, nil
}
