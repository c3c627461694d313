package rules

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/listener"
)

// Register adds a listener for every rule.  The returned func removes them all.
func Register(mw *listener.Middleware, rules []*Rule) (func(), error) {
	unsubscribes := make([]listener.Unsubscribe, 0, len(rules))
	removeAll := func() {
		for _, u := range unsubscribes {
			u()
		}
	}
	for _, r := range rules {
		u, err := mw.AddListener(r.Registration())
		if err != nil {
			removeAll()
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		unsubscribes = append(unsubscribes, u)
	}
	return removeAll, nil
}

// Registration returns the listener registration for r.
func (r *Rule) Registration() listener.Registration {
	return listener.Registration{
		Trigger: listener.OnPredicate(r.predicate),
		Effect:  r.effect,
		When:    r.when,
	}
}

func (r *Rule) predicate(a action.Action, current, previous any) bool {
	if !r.match(a) {
		return false
	}
	return r.test(r.cond, env(a, current, previous))
}

// test evaluates an optional condition; evaluation errors count as false.
func (r *Rule) test(cond *vm.Program, env map[string]any) bool {
	if cond == nil {
		return true
	}
	out, err := expr.Run(cond, env)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Condition failed")
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func (r *Rule) run(ctx context.Context, a action.Action, api *listener.API) error {
	scope := env(a, api.GetState(), api.GetOriginalState())
	scope["trigger"] = actionEnv(a)

	templates := r.dispatch
	if r.await != nil {
		taken, ok := api.Take(ctx, func(next action.Action, current, previous any) bool {
			if !r.await.match(next) {
				return false
			}
			e := env(next, current, previous)
			e["trigger"] = scope["trigger"]
			return r.test(r.await.cond, e)
		}, r.await.timeout)
		if ctx.Err() != nil {
			return nil
		}
		if ok {
			scope = env(taken.Action, taken.State, taken.OriginalState)
			scope["trigger"] = actionEnv(a)
			scope["reply"] = actionEnv(taken.Action)
		} else {
			templates = r.otherwise
			r.logger.Debug().Msg("Await timed out")
		}
	}

	for _, t := range templates {
		payload, err := render(t.payload, scope)
		if err != nil {
			return fmt.Errorf("rule %s: %s payload: %w", r.Name, t.typ, err)
		}
		api.Dispatch(action.Action{Type: t.typ, Payload: payload})
	}
	return nil
}

func actionEnv(a action.Action) map[string]any {
	return map[string]any{
		"type":    a.Type,
		"payload": a.Payload,
		"meta":    a.Meta,
	}
}

func env(a action.Action, current, previous any) map[string]any {
	e := actionEnv(a)
	e["state"] = current
	e["previous"] = previous
	return e
}
