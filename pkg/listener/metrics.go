package listener

// Metrics receives instrumentation events from the middleware.
type Metrics interface {
	ListenerCount(n int)
	ActionSwept(actionType string)
	EffectStarted(phase Phase)
	ListenerFailed(raisedBy RaisedBy)
}

type noopMetrics struct{}

func (noopMetrics) ListenerCount(int)       {}
func (noopMetrics) ActionSwept(string)      {}
func (noopMetrics) EffectStarted(Phase)     {}
func (noopMetrics) ListenerFailed(RaisedBy) {}
