package broker_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/siphon/pkg/broker"
)

func TestAlwaysAck(t *testing.T) {
	policy := broker.AlwaysAck{}
	failure := errors.New("handler blew up")

	assert.Equal(t, "always", policy.Name())
	assert.Equal(t, broker.DecisionAck, policy.Decide(nil, 0))
	assert.Equal(t, broker.DecisionAck, policy.Decide(failure, 0))
	assert.Equal(t, broker.DecisionAck, policy.Decide(failure, 100))
}

func TestAckOnSuccess(t *testing.T) {
	failure := errors.New("handler blew up")

	tests := []struct {
		name     string
		limit    int
		err      error
		attempts int
		want     broker.Decision
	}{
		{"success acks", 3, nil, 0, broker.DecisionAck},
		{"success acks even after retries", 3, nil, 2, broker.DecisionAck},
		{"first failure requeues", 3, failure, 0, broker.DecisionRequeue},
		{"under limit requeues", 3, failure, 2, broker.DecisionRequeue},
		{"at limit drops", 3, failure, 3, broker.DecisionDrop},
		{"over limit drops", 3, failure, 4, broker.DecisionDrop},
		{"zero limit drops immediately", 0, failure, 0, broker.DecisionDrop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := broker.AckOnSuccess{RequeueLimit: tt.limit}
			assert.Equal(t, tt.want, policy.Decide(tt.err, tt.attempts))
		})
	}

	assert.Equal(t, "on_success", broker.AckOnSuccess{}.Name())
}

func TestPolicyFromName(t *testing.T) {
	assert.Equal(t, broker.AlwaysAck{}, broker.PolicyFromName("always", 3))
	assert.Equal(t, broker.AckOnSuccess{RequeueLimit: 5}, broker.PolicyFromName("on_success", 5))
	assert.Equal(t, broker.AckOnSuccess{RequeueLimit: 3}, broker.PolicyFromName("", 3))
}
