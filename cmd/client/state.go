package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type stateCmd struct {
	key string
}

func (*stateCmd) Name() string {
	return "state"
}

func (*stateCmd) Synopsis() string {
	return "output the current state"
}

func (*stateCmd) Usage() string {
	return `state [flags]:
	output the current state as JSON
	exit status will be 1 if -key is given and not present
`
}

func (s *stateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.key, "key", "", "output only the value stored under this key")
}

func (s *stateCmd) Execute(
	ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	// Setup rest client
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	state, err := c.State(ctx)
	if err != nil {
		return fatal("REST call failed", err)
	}
	if s.key != "" {
		m, ok := state.(map[string]any)
		if !ok {
			return fatal("Error", fmt.Errorf("state is a %T, not an object", state))
		}
		v, ok := m[s.key]
		if !ok {
			return subcommands.ExitFailure
		}
		state = v
	}
	if err := outputJSON(state); err != nil {
		return fatal("Error", err)
	}

	return subcommands.ExitSuccess
}
