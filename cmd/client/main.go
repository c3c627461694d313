// Package main implements a command line client for the listenkit REST API
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/listenkit/listenkit/pkg/rest/client"
)

var (
	host     = flag.String("host", "localhost", "host/IP of listenkit server")
	port     = flag.Uint("port", 9000, "HTTP port of listenkit server")
	basePath = flag.String("base", "", "base path the server was configured with")
	timeout  = flag.Duration("timeout", 30*time.Second, "REST request timeout")
)

// regexFlag is a flag.Value holding an optional regular expression.  The zero value matches
// everything.
type regexFlag struct {
	re *regexp.Regexp
}

var _ flag.Value = &regexFlag{}

// Match reports whether s matches, always true when no pattern was set.
func (r *regexFlag) Match(s string) bool {
	return r.re == nil || r.re.MatchString(s)
}

func (r *regexFlag) Set(pattern string) (err error) {
	if pattern == "" {
		r.re = nil
		return nil
	}
	r.re, err = regexp.Compile(pattern)
	return err
}

func (r *regexFlag) String() string {
	if r.re == nil {
		return ""
	}
	return r.re.String()
}

func main() {
	subcommands.ImportantFlag("host")
	subcommands.ImportantFlag("port")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&dispatchCmd{}, "actions")
	subcommands.Register(&stateCmd{}, "actions")
	subcommands.Register(&monitorCmd{}, "actions")
	subcommands.Register(&listenersCmd{}, "listeners")

	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := subcommands.Execute(ctx)
	stop()
	os.Exit(int(status))
}

// baseURL joins the global host, port and base path flags.
func baseURL() string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(*host, strconv.FormatUint(uint64(*port), 10)),
	}
	return u.JoinPath(*basePath).String()
}

// newClient builds a REST client from the global flags.
func newClient() (*client.Client, error) {
	return client.New(baseURL(), client.WithOptTimeout(*timeout))
}

// fatal reports err, including the HTTP status for errors returned by the server.
func fatal(msg string, err error) subcommands.ExitStatus {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "%s: server responded %d: %s\n", msg, apiErr.StatusCode,
			apiErr.Message)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	return subcommands.ExitFailure
}

func usage(msg string) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, msg)
	return subcommands.ExitUsageError
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
