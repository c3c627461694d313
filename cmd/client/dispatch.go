package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type dispatchCmd struct {
	raw   bool
	quiet bool
}

func (*dispatchCmd) Name() string {
	return "dispatch"
}

func (*dispatchCmd) Synopsis() string {
	return "dispatch an action"
}

func (*dispatchCmd) Usage() string {
	return `dispatch [flags] <type> [payload]:
	dispatch an action, payload is parsed as JSON unless -raw is given
	the resulting state is written to stdout
`
}

func (d *dispatchCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&d.raw, "raw", false, "send payload as a string rather than JSON")
	f.BoolVar(&d.quiet, "quiet", false, "do not output the resulting state")
}

func (d *dispatchCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	actionType := f.Arg(0)
	if actionType == "" {
		return usage("action type required")
	}
	payload, err := parsePayload(f.Arg(1), d.raw)
	if err != nil {
		return fatal("Invalid payload", err)
	}

	// Setup rest client
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	resp, err := c.Dispatch(ctx, actionType, payload)
	if err != nil {
		return fatal("REST call failed", err)
	}
	if d.quiet {
		return subcommands.ExitSuccess
	}
	if err := outputJSON(resp.State); err != nil {
		return fatal("Error", err)
	}

	return subcommands.ExitSuccess
}

// parsePayload decodes arg as JSON, or returns it unchanged when raw.  An empty arg is a nil
// payload.
func parsePayload(arg string, raw bool) (any, error) {
	if arg == "" {
		return nil, nil
	}
	if raw {
		return arg, nil
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return nil, fmt.Errorf("%q is not JSON, use -raw to send a string: %w", arg, err)
	}
	return v, nil
}
