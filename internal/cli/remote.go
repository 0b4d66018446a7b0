// pattern: Imperative Shell
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	flag "github.com/spf13/pflag"

	"dmnexplorer/internal/instance"
	"dmnexplorer/internal/output"
	"dmnexplorer/internal/web"
)

// waitInterval is how often remote validate --wait polls the surface.
const waitInterval = 200 * time.Millisecond

// RegisterRemoteCommands registers commands that act on the instance
// running for the workspace.
func RegisterRemoteCommands(group *Group, opts Options) {
	delegate := func() Delegate {
		return Delegate{ConfigDir: opts.ConfigDir, Workspace: opts.Workspace, ExitFunc: opts.ExitFunc, Stderr: opts.Stderr}
	}

	group.AddCommand(&Command{
		Name:    "tree",
		Summary: "Print the instance's decision tree",
		Usage:   "Usage: dmnexplorer remote tree [--json]",
		Run: func(args []string) error {
			fs := flag.NewFlagSet("remote tree", flag.ContinueOnError)
			fs.SetOutput(opts.Stderr)
			asJSON := fs.Bool("json", false, "print raw JSON")
			if err := fs.Parse(args); err != nil {
				return err
			}
			d := delegate()
			d.Run(func(client *instance.Client) error {
				data, err := client.Tree()
				if err != nil {
					return err
				}
				if *asJSON {
					return PrintJSON(opts.Stdout, data)
				}
				var entries []web.EntryResponse
				if err := json.Unmarshal(data, &entries); err != nil {
					return fmt.Errorf("failed to parse tree: %w", err)
				}
				PrintTree(opts.Stdout, entries)
				return nil
			})
			return nil
		},
	})

	group.AddCommand(&Command{
		Name:    "validate",
		Summary: "Validate a decision file in the running instance",
		Usage:   "Usage: dmnexplorer remote validate <file.dmn> [--wait]",
		Run: func(args []string) error {
			fs := flag.NewFlagSet("remote validate", flag.ContinueOnError)
			fs.SetOutput(opts.Stderr)
			wait := fs.Bool("wait", false, "wait for the response and print it")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if fs.NArg() != 1 {
				return fmt.Errorf("usage: dmnexplorer remote validate <file.dmn> [--wait]")
			}
			d := delegate()
			d.Run(func(client *instance.Client) error {
				path := absPath(fs.Arg(0))
				surface, run, err := client.Validate(path)
				if err != nil {
					return err
				}
				if !*wait {
					fmt.Fprintln(opts.Stdout, surface)
					return nil
				}
				snap, err := waitForRun(client, surface, run, waitInterval)
				if err != nil {
					return err
				}
				for _, line := range snap.Lines {
					fmt.Fprintln(opts.Stdout, line)
				}
				if snap.State == output.StateErrored.String() {
					return fmt.Errorf("validation request for %s (run %d) failed", surface, run)
				}
				return nil
			})
			return nil
		},
	})

	group.AddCommand(&Command{
		Name:    "output",
		Summary: "Print or follow an output surface",
		Usage:   "Usage: dmnexplorer remote output <name> [--follow] [--no-color]",
		Run: func(args []string) error {
			fs := flag.NewFlagSet("remote output", flag.ContinueOnError)
			fs.SetOutput(opts.Stderr)
			follow := fs.BoolP("follow", "f", false, "stream new lines until interrupted")
			noColor := fs.Bool("no-color", false, "strip ANSI escape sequences")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if fs.NArg() != 1 {
				return fmt.Errorf("usage: dmnexplorer remote output <name> [--follow] [--no-color]")
			}
			name := fs.Arg(0)
			emit := func(line string) {
				if *noColor {
					line = StripANSI(line)
				}
				fmt.Fprintln(opts.Stdout, line)
			}

			d := delegate()
			d.Run(func(client *instance.Client) error {
				if *follow {
					ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
					defer stop()
					return client.StreamOutput(ctx, name, emit)
				}
				snap, err := fetchSnapshot(client, name)
				if err != nil {
					return err
				}
				for _, line := range snap.Lines {
					emit(line)
				}
				return nil
			})
			return nil
		},
	})

	group.AddCommand(&Command{
		Name:    "outputs",
		Summary: "List output surfaces, most recent first",
		Usage:   "Usage: dmnexplorer remote outputs",
		Run: func(args []string) error {
			d := delegate()
			d.Run(func(client *instance.Client) error {
				data, err := client.Outputs()
				if err != nil {
					return err
				}
				var snaps []output.Snapshot
				if err := json.Unmarshal(data, &snaps); err != nil {
					return fmt.Errorf("failed to parse outputs: %w", err)
				}
				for _, s := range snaps {
					fmt.Fprintf(opts.Stdout, "%-10s %3d  %s\n", s.State, s.Runs, s.Name)
				}
				return nil
			})
			return nil
		},
	})
}

func fetchSnapshot(client *instance.Client, name string) (output.Snapshot, error) {
	var snap output.Snapshot
	data, err := client.Output(name)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to parse output: %w", err)
	}
	return snap, nil
}

// waitForRun polls one run of a surface until it has finished. Runs started
// on the same surface by other clients do not affect it.
func waitForRun(client *instance.Client, name string, run int, interval time.Duration) (output.Snapshot, error) {
	for {
		var snap output.Snapshot
		data, err := client.OutputRun(name, run)
		if err != nil {
			return snap, err
		}
		if err := json.Unmarshal(data, &snap); err != nil {
			return snap, fmt.Errorf("failed to parse output: %w", err)
		}
		switch snap.State {
		case output.StateComplete.String(), output.StateErrored.String():
			return snap, nil
		}
		time.Sleep(interval)
	}
}
