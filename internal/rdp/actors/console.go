// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// EvaluationResult is the outcome of a console evaluation.
type EvaluationResult struct {
	Result           *Grip  `json:"result,omitempty"`
	Exception        *Grip  `json:"exception,omitempty"`
	ExceptionMessage *Grip  `json:"exceptionMessage,omitempty"`
	Input            string `json:"input,omitempty"`
}

// Failed reports whether the evaluation threw.
func (r *EvaluationResult) Failed() bool {
	return r.Exception != nil || r.ExceptionMessage != nil
}

// Console is the proxy for a webconsole actor. Evaluations are asynchronous on
// the wire: the request is acknowledged with a resultID and the value arrives
// later in an evaluationResult event carrying that id. The event can be
// dispatched before the caller has seen the ack, so results without a waiter
// are parked until the ack's resultID claims them.
type Console struct {
	*rdp.Actor

	mu        sync.Mutex
	waiting   map[string]chan *EvaluationResult
	unclaimed map[string]*EvaluationResult
}

// NewConsole creates a console proxy and registers it with the connection.
func NewConsole(conn *rdp.Connection, name string, log logr.Logger) *Console {
	c := &Console{
		Actor:     rdp.NewActor(conn, name, log),
		waiting:   make(map[string]chan *EvaluationResult),
		unclaimed: make(map[string]*EvaluationResult),
	}

	c.OnEvent("evaluationResult", func(p *rdp.Packet) {
		var event struct {
			ResultID string `json:"resultID"`
			EvaluationResult
		}
		if err := p.Unmarshal(&event); err != nil {
			c.Log().Error(err, "Malformed evaluationResult event")
			return
		}

		result := event.EvaluationResult

		c.mu.Lock()
		waiter, found := c.waiting[event.ResultID]
		if found {
			delete(c.waiting, event.ResultID)
		} else {
			c.unclaimed[event.ResultID] = &result
		}
		c.mu.Unlock()

		if found {
			waiter <- &result
		}
	})

	conn.Register(c)
	return c
}

// Evaluate runs an expression in the console's context and waits for the result.
// frameActor, when non-empty, selects the stack frame the expression is
// evaluated in.
func (c *Console) Evaluate(ctx context.Context, expression string, frameActor string) (*EvaluationResult, error) {
	type args struct {
		Text       string `json:"text"`
		FrameActor string `json:"frameActor,omitempty"`
	}

	packet, requestErr := c.SendRequest(ctx, "evaluateJSAsync", args{
		Text:       expression,
		FrameActor: frameActor,
	})
	if requestErr != nil {
		return nil, requestErr
	}

	var ack struct {
		ResultID string `json:"resultID"`
	}
	if err := packet.Unmarshal(&ack); err != nil {
		return nil, err
	}

	// The result may have been dispatched between the ack and this point.
	waiter := make(chan *EvaluationResult, 1)
	c.mu.Lock()
	if result, arrived := c.unclaimed[ack.ResultID]; arrived {
		delete(c.unclaimed, ack.ResultID)
		c.mu.Unlock()
		return result, nil
	}
	c.waiting[ack.ResultID] = waiter
	c.mu.Unlock()

	select {
	case result := <-waiter:
		return result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiting, ack.ResultID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// StartListeners subscribes to the legacy console listeners. Modern servers
// deliver console output as watched resources instead.
func (c *Console) StartListeners(ctx context.Context) error {
	type args struct {
		Listeners []string `json:"listeners"`
	}

	_, requestErr := c.SendRequest(ctx, "startListeners", args{
		Listeners: []string{"ConsoleAPI", "PageError"},
	})
	return requestErr
}
