package router

import (
	"cmp"
	"context"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"routerbot/pkg/classifier"
	"routerbot/pkg/config"
	"routerbot/pkg/generation"
	"routerbot/pkg/logger"
)

// Handler turns message text into a reply. Replies are sent as HTML, so a
// handler that echoes user input must escape it.
type Handler func(ctx context.Context, text string) (string, error)

// Binding ties a category and an optional pattern to a handler.
type Binding struct {
	ID          string
	Category    string
	Description string
	// Pattern is a case-insensitive literal substring, or a regular
	// expression when Regexp is set. Empty means the binding is only reachable
	// through classification.
	Pattern  string
	Regexp   bool
	Priority int
	Handler  Handler
	// CreatedAt is set by AddRoute.
	CreatedAt time.Time

	re *regexp.Regexp
}

func (b Binding) matches(text string) bool {
	switch {
	case b.Pattern == "":
		return false
	case b.re != nil:
		return b.re.MatchString(text)
	default:
		return strings.Contains(strings.ToLower(text), strings.ToLower(b.Pattern))
	}
}

// Context carries per-message hints passed down to classification.
type Context struct {
	ChatID      string
	UserHistory []string
}

// Intents is the part of the classifier the router consumes.
type Intents interface {
	Ready() bool
	Classify(ctx context.Context, text string, cctx classifier.Context) classifier.Result
}

// Option configures a Router.
type Option func(*Router)

// WithClassifier enables the classified tier.
func WithClassifier(c Intents) Option {
	return func(r *Router) {
		r.intents = c
	}
}

// WithGenerator enables the generation tier.
func WithGenerator(g generation.Generator) Option {
	return func(r *Router) {
		r.gen = g
	}
}

// WithThreshold sets the minimum confidence for the classified tier.
func WithThreshold(threshold float64) Option {
	return func(r *Router) {
		r.threshold = threshold
	}
}

// WithLogger sets the router logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// WithPicker replaces the random template picker. pick returns an index in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(r *Router) {
		if pick != nil {
			r.pick = pick
		}
	}
}

// WithoutBuiltinRoutes starts the router with an empty binding table.
func WithoutBuiltinRoutes() Option {
	return func(r *Router) {
		r.skipBuiltins = true
	}
}

// Router turns free text into a reply through four tiers: classified binding,
// pattern binding, generation, and a fixed default.
type Router struct {
	intents   Intents
	gen       generation.Generator
	threshold float64
	pick      func(n int) int
	log       *slog.Logger

	skipBuiltins bool

	mu     sync.RWMutex
	routes []Binding

	stats statsRecorder
}

// New builds a router with the built-in greeting, status and thanks bindings.
func New(opts ...Option) *Router {
	r := &Router{
		threshold: config.DefaultConfidenceThreshold,
		pick:      rand.IntN,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "router")

	if !r.skipBuiltins {
		for _, b := range r.builtinRoutes() {
			if err := r.AddRoute(b); err != nil {
				panic("router: invalid builtin route: " + err.Error())
			}
		}
	}
	return r
}

// AddRoute registers a binding. Missing id or handler, an invalid regular
// expression and a duplicate id are configuration errors.
func (r *Router) AddRoute(b Binding) error {
	b.ID = strings.TrimSpace(b.ID)
	if b.ID == "" {
		return config.Invalid("route.id", "id is required")
	}
	if b.Handler == nil {
		return config.Invalid("route.handler", "handler is required for %q", b.ID)
	}
	if b.Regexp {
		re, err := regexp.Compile(b.Pattern)
		if err != nil {
			return config.Invalid("route.pattern", "route %q: %v", b.ID, err)
		}
		b.re = re
	}
	if b.Description == "" {
		b.Description = b.ID
	}
	b.CreatedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.ContainsFunc(r.routes, func(existing Binding) bool { return existing.ID == b.ID }) {
		return config.Invalid("route.id", "duplicate id %q", b.ID)
	}

	r.routes = append(r.routes, b)
	slices.SortStableFunc(r.routes, func(x, y Binding) int {
		return cmp.Compare(y.Priority, x.Priority)
	})

	r.log.Debug("route added", "id", b.ID, "category", b.Category, "priority", b.Priority)
	return nil
}

// Routes returns the bindings in match order.
func (r *Router) Routes() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.routes)
}

// ClearRoutes removes every binding, built-ins included.
func (r *Router) ClearRoutes() {
	r.mu.Lock()
	r.routes = nil
	r.mu.Unlock()
	r.log.Info("routes cleared")
}

// Threshold returns the classified-tier confidence threshold.
func (r *Router) Threshold() float64 {
	return r.threshold
}

// Process always returns a non-empty reply.
func (r *Router) Process(ctx context.Context, text string, rc Context) Reply {
	startedAt := r.stats.begin()
	log := r.log.With("chat_id", rc.ChatID)
	log.Debug("routing started", "text_preview", logger.Preview(text))

	reply := r.route(ctx, text, rc)
	r.stats.finish(reply)

	if reply.Err != nil {
		log.Error("route handler failed", "binding", reply.BindingID, "outcome", reply.Outcome, "error", reply.Err)
	}
	log.Debug("routing completed",
		"outcome", reply.Outcome,
		"binding", reply.BindingID,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
	return reply
}

func (r *Router) route(ctx context.Context, text string, rc Context) Reply {
	for _, step := range []tier{r.classified, r.matched, r.generated} {
		if reply, ok := step(ctx, text, rc); ok {
			return reply
		}
	}
	return r.fallback(text)
}

func (r *Router) bindingForCategory(category string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.routes {
		if b.Category == category {
			return b, true
		}
	}
	return Binding{}, false
}

func (r *Router) bindingForText(text string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.routes {
		if b.matches(text) {
			return b, true
		}
	}
	return Binding{}, false
}
