package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/listenkit/listenkit/pkg/rest/model"
)

type monitorCmd struct {
	output string
	typ    regexFlag
	count  int
}

func (*monitorCmd) Name() string {
	return "monitor"
}

func (*monitorCmd) Synopsis() string {
	return "output actions as they are dispatched"
}

func (*monitorCmd) Usage() string {
	return `monitor [flags] [namespace]:
	output recent and newly dispatched actions until interrupted
	namespace restricts output to types such as <namespace>/set
`
}

func (m *monitorCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.output, "output", "type", "output format: type or json")
	f.Var(&m.typ, "type", "action type matching regexp")
	f.IntVar(&m.count, "count", 0, "exit after this many actions, 0 to run until interrupted")
}

func (m *monitorCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	var outFunc func(rec model.JSONActionRecordV1) error
	switch m.output {
	case "type":
		outFunc = func(rec model.JSONActionRecordV1) error {
			_, err := fmt.Printf("%d\t%s\n", rec.Seq, rec.Type)
			return err
		}
	case "json":
		outFunc = func(rec model.JSONActionRecordV1) error {
			return outputJSON(rec)
		}
	default:
		return usage("unknown output type: " + m.output)
	}

	// Setup rest client
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	records, err := c.Monitor(ctx, f.Arg(0))
	if err != nil {
		return fatal("Monitor connection failed", err)
	}
	seen := 0
	for rec := range records {
		if !m.typ.Match(rec.Type) {
			continue
		}
		if err := outFunc(rec); err != nil {
			return fatal("Error", err)
		}
		seen++
		if m.count > 0 && seen >= m.count {
			break
		}
	}

	return subcommands.ExitSuccess
}
