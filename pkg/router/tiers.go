package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"routerbot/pkg/classifier"
	"routerbot/pkg/generation"
)

const (
	OutcomeClassified Outcome = "classified"
	OutcomePattern    Outcome = "pattern"
	OutcomeGeneration Outcome = "generation"
	OutcomeDefault    Outcome = "default"
)

// Outcome names the tier that produced a reply.
type Outcome string

// Reply is the result of Process.
type Reply struct {
	Text      string
	Outcome   Outcome
	BindingID string
	// Classification is set when the classifier ran.
	Classification *classifier.Result
	// Err is the handler failure behind an error-template reply.
	Err error
}

// tier returns false to pass the message to the next tier.
type tier func(ctx context.Context, text string, rc Context) (Reply, bool)

var errEmptyReply = errors.New("handler returned an empty reply")

// HandlerError wraps a failure or panic inside a binding handler.
type HandlerError struct {
	BindingID string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("route %q handler: %v", e.BindingID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

func (r *Router) classified(ctx context.Context, text string, rc Context) (reply Reply, ok bool) {
	defer r.passOnPanic("classified", &reply, &ok)

	if r.intents == nil || !r.intents.Ready() {
		return Reply{}, false
	}

	result := r.intents.Classify(ctx, text, classifier.Context{UserHistory: rc.UserHistory})
	if result.Confidence < r.threshold {
		r.log.Debug("classification below threshold",
			"category", result.CategoryID,
			"confidence", result.Confidence,
			"threshold", r.threshold,
		)
		return Reply{}, false
	}

	binding, found := r.bindingForCategory(result.CategoryID)
	if !found {
		return Reply{}, false
	}

	reply = r.invoke(ctx, binding, text, OutcomeClassified)
	reply.Classification = &result
	return reply, true
}

func (r *Router) matched(ctx context.Context, text string, _ Context) (Reply, bool) {
	binding, ok := r.bindingForText(text)
	if !ok {
		return Reply{}, false
	}
	return r.invoke(ctx, binding, text, OutcomePattern), true
}

func (r *Router) generated(ctx context.Context, text string, _ Context) (reply Reply, ok bool) {
	defer r.passOnPanic("generation", &reply, &ok)

	if r.gen == nil || strings.TrimSpace(text) == "" {
		return Reply{}, false
	}

	resp, err := r.gen.Generate(ctx, generation.Request{Prompt: text})
	if err != nil {
		r.log.Warn("generation tier failed, using default reply", "error", err, "cause", generation.CauseOf(err))
		return Reply{}, false
	}

	return Reply{Text: Escape(resp.Content), Outcome: OutcomeGeneration}, true
}

// passOnPanic turns a panic inside a tier into a pass to the next tier.
func (r *Router) passOnPanic(tierName string, reply *Reply, ok *bool) {
	if recovered := recover(); recovered != nil {
		r.log.Error("tier panicked, passing to next tier", "tier", tierName, "panic", recovered)
		*reply = Reply{}
		*ok = false
	}
}

func (r *Router) fallback(text string) Reply {
	return Reply{Text: fmt.Sprintf(defaultReplyFormat, Escape(text)), Outcome: OutcomeDefault}
}

// invoke runs a handler and turns errors, panics and empty replies into the
// error template.
func (r *Router) invoke(ctx context.Context, b Binding, text string, outcome Outcome) (reply Reply) {
	reply = Reply{Outcome: outcome, BindingID: b.ID}

	defer func() {
		if recovered := recover(); recovered != nil {
			reply.Text = handlerErrorReply
			reply.Err = &HandlerError{BindingID: b.ID, Err: fmt.Errorf("panic: %v", recovered)}
		}
	}()

	out, err := b.Handler(ctx, text)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errEmptyReply
	}
	if err != nil {
		reply.Text = handlerErrorReply
		reply.Err = &HandlerError{BindingID: b.ID, Err: err}
		return reply
	}

	reply.Text = out
	return reply
}
