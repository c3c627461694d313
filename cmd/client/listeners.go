package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type listenersCmd struct {
	clear bool
}

func (*listenersCmd) Name() string {
	return "listeners"
}

func (*listenersCmd) Synopsis() string {
	return "output the number of registered listeners"
}

func (*listenersCmd) Usage() string {
	return `listeners [flags]:
	output the number of listeners registered with the middleware
`
}

func (l *listenersCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&l.clear, "clear", false, "remove every listener first")
}

func (l *listenersCmd) Execute(
	ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	// Setup rest client
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	if l.clear {
		if err := c.ClearListeners(ctx); err != nil {
			return fatal("REST call failed", err)
		}
	}
	n, err := c.ListenerCount(ctx)
	if err != nil {
		return fatal("REST call failed", err)
	}
	fmt.Println(n)

	return subcommands.ExitSuccess
}
