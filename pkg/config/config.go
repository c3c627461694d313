package config

import (
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	prefix      = "listenkit"
	tableFormat = `listenkit is configured via the environment. The following environment
variables can be used:

KEY	DEFAULT	REQUIRED	DESCRIPTION
{{range .}}{{usage_key .}}	{{usage_default .}}	{{usage_required .}}	{{usage_description .}}
{{end}}`
)

var (
	// Version of this build, set by main
	Version = ""

	// BuildDate for this build, set by main
	BuildDate = ""
)

// Root wraps all other configurations.
type Root struct {
	LogLevel string `required:"true" default:"INFO" desc:"DEBUG, INFO, WARN, or ERROR"`
	Web      Web
	Listener Listener
	Poller   Poller
	Lua      Lua
	Rules    Rules
}

// Web contains the HTTP server configuration.
type Web struct {
	Addr           string `required:"true" default:"0.0.0.0:9000" desc:"Web server IP4 host:port"`
	BasePath       string `default:"" desc:"Base path prefix for URLs"`
	MonitorHistory int    `required:"true" default:"30" desc:"Monitor remembered actions"`
}

// Listener contains the listener middleware configuration.
type Listener struct {
	ConditionTimeout time.Duration `required:"true" default:"30s" desc:"Timeout for rule await blocks without one"`
	ShutdownTimeout  time.Duration `required:"true" default:"5s" desc:"Wait for running effects at shutdown"`
}

// Poller contains the periodic update listener configuration.
type Poller struct {
	Enabled  bool          `required:"true" default:"true" desc:"Register the poller listener?"`
	Interval time.Duration `required:"true" default:"1s" desc:"Default tick interval"`
	Timeout  time.Duration `default:"0s" desc:"Stop polling after this long, 0 to poll until canceled"`
}

// Lua contains the Lua extension host configuration.
type Lua struct {
	Path string `required:"true" default:"listenkit.lua" desc:"Lua script path"`
}

// Rules contains the declarative rules configuration.
type Rules struct {
	Path string `default:"" desc:"YAML rules file path, empty to disable"`
}

// Process loads and parses configuration from the environment.
func Process() (*Root, error) {
	c := &Root{}
	err := envconfig.Process(prefix, c)
	return c, err
}

// Usage prints out the envconfig usage to Stderr.
func Usage() {
	tabs := tabwriter.NewWriter(os.Stderr, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(prefix, &Root{}, tabs, tableFormat); err != nil {
		log.Fatalf("Unable to parse env config: %v", err)
	}
	tabs.Flush()
}
