// Package rules builds listeners from a declarative YAML file.
//
// A rule names the actions it reacts to, an optional boolean expression over the action
// and state, an optional follow-up action to wait for, and the actions to dispatch:
//
//	rules:
//	  - name: confirm-order
//	    on: order/placed
//	    if: payload.total > 100
//	    await:
//	      on: order/confirmed
//	      if: payload.id == trigger.payload.id
//	      timeout: 5s
//	    dispatch:
//	      - type: kv/incr
//	        payload: confirmed
//	    otherwise:
//	      - type: order/expired
//	        payload: "=trigger.payload.id"
//
// Expressions are evaluated with type, payload, meta, state and previous bound to the
// current action and states.  Within await and the dispatched payloads, trigger is the
// action that started the rule and reply the action that satisfied await.  A payload
// string starting with "=" is an expression; "==" escapes a literal "=".
package rules

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/hashicorp/go-multierror"
	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// File is the YAML document.
type File struct {
	Rules []Spec `yaml:"rules"`
}

// Spec is a rule as written in the YAML file.
type Spec struct {
	Name      string         `yaml:"name"`
	On        string         `yaml:"on"`
	When      string         `yaml:"when"`
	If        string         `yaml:"if"`
	Await     *AwaitSpec     `yaml:"await"`
	Dispatch  []DispatchSpec `yaml:"dispatch"`
	Otherwise []DispatchSpec `yaml:"otherwise"`
}

// AwaitSpec describes the follow-up action a rule waits for.
type AwaitSpec struct {
	On      string `yaml:"on"`
	If      string `yaml:"if"`
	Timeout string `yaml:"timeout"`
}

// DispatchSpec is an action to dispatch.
type DispatchSpec struct {
	Type    string `yaml:"type"`
	Payload any    `yaml:"payload"`
}

// Rule is a compiled Spec.
type Rule struct {
	Name      string
	when      listener.Phase
	match     action.Matcher
	cond      *vm.Program
	await     *await
	dispatch  []template
	otherwise []template
	effect    listener.Effect
	logger    zerolog.Logger
}

type await struct {
	match   action.Matcher
	cond    *vm.Program
	timeout time.Duration
}

type template struct {
	typ     string
	payload any // Literal values, with *vm.Program in place of expressions.
}

var phases = map[string]listener.Phase{
	"":       listener.AfterReducer,
	"after":  listener.AfterReducer,
	"before": listener.BeforeReducer,
	"both":   listener.Both,
}

// Option configures Load and Parse.
type Option func(*parseOptions)

type parseOptions struct {
	awaitTimeout time.Duration
}

// WithAwaitTimeout sets the timeout of await blocks that do not specify one.  Without it they
// wait until the middleware is closed.
func WithAwaitTimeout(d time.Duration) Option {
	return func(o *parseOptions) { o.awaitTimeout = d }
}

// Load reads and compiles the rules file at path.
func Load(path string, opts ...Option) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rules, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// Parse compiles a YAML rules document.  Every invalid rule is reported in the returned
// error.
func Parse(data []byte, opts ...Option) ([]*Rule, error) {
	o := &parseOptions{}
	for _, opt := range opts {
		opt(o)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	var errs *multierror.Error
	rules := make([]*Rule, 0, len(f.Rules))
	for i, spec := range f.Rules {
		r, err := Compile(spec)
		if err != nil {
			name := spec.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			errs = multierror.Append(errs, fmt.Errorf("rule %s: %w", name, err))
			continue
		}
		if r.await != nil && spec.Await.Timeout == "" {
			r.await.timeout = o.awaitTimeout
		}
		rules = append(rules, r)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Compile validates a single rule and compiles its expressions.
func Compile(spec Spec) (*Rule, error) {
	var errs *multierror.Error
	if spec.On == "" {
		errs = multierror.Append(errs, fmt.Errorf("on is required"))
	}
	when, ok := phases[strings.ToLower(spec.When)]
	if !ok {
		errs = multierror.Append(errs, fmt.Errorf("when %q is not before, after or both", spec.When))
	}
	if len(spec.Dispatch) == 0 && len(spec.Otherwise) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("nothing to dispatch"))
	}

	r := &Rule{
		Name:   spec.Name,
		when:   when,
		match:  action.Pattern(spec.On),
		logger: log.With().Str("module", "rules").Str("rule", spec.Name).Str("on", spec.On).Logger(),
	}
	var err error
	if r.cond, err = compileCondition(spec.If); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("if: %w", err))
	}
	if spec.Await != nil {
		r.await, err = compileAwait(spec.Await)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("await: %w", err))
		}
	} else if len(spec.Otherwise) > 0 {
		errs = multierror.Append(errs, fmt.Errorf("otherwise requires await"))
	}
	if r.dispatch, err = compileTemplates(spec.Dispatch); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("dispatch: %w", err))
	}
	if r.otherwise, err = compileTemplates(spec.Otherwise); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("otherwise: %w", err))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	r.effect = r.run
	return r, nil
}

func compileAwait(spec *AwaitSpec) (*await, error) {
	if spec.On == "" {
		return nil, fmt.Errorf("on is required")
	}
	a := &await{match: action.Pattern(spec.On)}
	var err error
	if a.cond, err = compileCondition(spec.If); err != nil {
		return nil, fmt.Errorf("if: %w", err)
	}
	if spec.Timeout != "" {
		if a.timeout, err = cast.ToDurationE(spec.Timeout); err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
	}
	return a, nil
}

func compileCondition(src string) (*vm.Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	return expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
}

func compileTemplates(specs []DispatchSpec) ([]template, error) {
	ts := make([]template, 0, len(specs))
	for i, spec := range specs {
		if spec.Type == "" {
			return nil, fmt.Errorf("#%d: type is required", i+1)
		}
		payload, err := compileValue(spec.Payload)
		if err != nil {
			return nil, fmt.Errorf("#%d: %w", i+1, err)
		}
		ts = append(ts, template{typ: spec.Type, payload: payload})
	}
	return ts, nil
}

// compileValue replaces expression strings within v by compiled programs.
func compileValue(v any) (any, error) {
	switch v := v.(type) {
	case string:
		switch {
		case strings.HasPrefix(v, "=="):
			return v[1:], nil
		case strings.HasPrefix(v, "="):
			return expr.Compile(v[1:], expr.AllowUndefinedVariables())
		}
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			c, err := compileValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			c, err := compileValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	}
	return v, nil
}

// render evaluates the programs within a compiled value.
func render(v any, env map[string]any) (any, error) {
	switch v := v.(type) {
	case *vm.Program:
		return expr.Run(v, env)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := render(item, env)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := render(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}
