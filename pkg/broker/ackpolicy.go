package broker

// Decision is the terminal outcome a policy picks for a delivery.
type Decision int

const (
	// DecisionAck removes the message from the queue.
	DecisionAck Decision = iota
	// DecisionRequeue puts a copy back on the queue for another attempt.
	DecisionRequeue
	// DecisionDrop acknowledges without retrying; the failure is final.
	DecisionDrop
)

// AckPolicy decides what happens to a delivery after its handler has
// run. attempts counts how often the same message was requeued before.
type AckPolicy interface {
	Name() string
	Decide(handlerErr error, attempts int) Decision
}

// AlwaysAck acknowledges every delivery regardless of handler outcome,
// trading retries for queue liveness.
type AlwaysAck struct{}

func (AlwaysAck) Name() string { return "always" }

func (AlwaysAck) Decide(handlerErr error, attempts int) Decision {
	return DecisionAck
}

// AckOnSuccess acknowledges clean runs and requeues failures until the
// message has been retried RequeueLimit times, then drops it.
type AckOnSuccess struct {
	RequeueLimit int
}

func (AckOnSuccess) Name() string { return "on_success" }

func (p AckOnSuccess) Decide(handlerErr error, attempts int) Decision {
	if handlerErr == nil {
		return DecisionAck
	}
	if attempts >= p.RequeueLimit {
		return DecisionDrop
	}
	return DecisionRequeue
}

// PolicyFromName maps a config value to its policy.
func PolicyFromName(name string, requeueLimit int) AckPolicy {
	if name == "always" {
		return AlwaysAck{}
	}
	return AckOnSuccess{RequeueLimit: requeueLimit}
}
