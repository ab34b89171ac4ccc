// Package router discovers the generative backends available to a request and
// dispatches a question to the one the caller selected.
//
// The cloud backend is present whenever a completer was configured at start.
// Local backends are whatever models the caller's Ollama host reports at the
// time of the call; discovery is never cached.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/studenthub/internal/metrics"
	"github.com/MikeSquared-Agency/studenthub/internal/ollama"
)

// OnlineKey always selects the cloud backend.
const OnlineKey = "online"

const localKeyPrefix = "ollama_"

var (
	ErrEmptyMessage    = errors.New("empty message")
	ErrBackendNotFound = errors.New("backend not found")
)

type Kind string

const (
	KindOnline Kind = "online"
	KindLocal  Kind = "local"
)

// Target is the concrete backend behind a descriptor. Its fields are
// unexported so that only discovery can produce one.
type Target struct {
	kind  Kind
	model string
	host  string
}

func (t Target) Kind() Kind { return t.kind }

// Model is the model name as the local host reported it. Empty for cloud.
func (t Target) Model() string { return t.model }

type Descriptor struct {
	Key         string `json:"key"`
	DisplayName string `json:"name"`
	Kind        Kind   `json:"type"`
	Description string `json:"description"`

	target Target
}

func (d Descriptor) Target() Target { return d.target }

// Envelope is the uniform result of Generate. Failures never escape as
// errors; Cause carries the sentinel for input errors so callers can tell a
// misconfigured request from a backend outage.
type Envelope struct {
	Success     bool   `json:"success"`
	Text        string `json:"response,omitempty"`
	BackendName string `json:"model,omitempty"`
	BackendKind Kind   `json:"type,omitempty"`
	Error       string `json:"error,omitempty"`

	Cause error `json:"-"`
}

type Request struct {
	Message    string
	BackendKey string
	LocalHost  string
	Context    string
}

// Completer is a cloud LLM that turns one prompt into one answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LocalHost lists and runs models on an Ollama-compatible server.
type LocalHost interface {
	ListModels(ctx context.Context, baseURL string) ([]ollama.Model, error)
	Generate(ctx context.Context, baseURL string, req ollama.GenerateRequest) (string, error)
}

type Options struct {
	CloudName        string
	CloudTimeout     time.Duration
	LocalTimeout     time.Duration
	DiscoveryTimeout time.Duration
	Sampling         ollama.Options
}

// DefaultOptions mirrors the values a fresh config produces.
func DefaultOptions() Options {
	return Options{
		CloudName:        "Gemini 2.0 Flash",
		CloudTimeout:     60 * time.Second,
		LocalTimeout:     60 * time.Second,
		DiscoveryTimeout: 5 * time.Second,
		Sampling:         ollama.Options{Temperature: 0.7, TopP: 0.9, TopK: 40},
	}
}

type Router struct {
	cloud   Completer
	local   LocalHost
	opts    Options
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// New builds a router. A nil cloud completer means no credential was
// configured and the online backend is never offered. Non-positive timeouts
// take their default values.
func New(cloud Completer, local LocalHost, opts Options, rec *metrics.Recorder, logger *slog.Logger) *Router {
	def := DefaultOptions()
	if opts.CloudTimeout <= 0 {
		opts.CloudTimeout = def.CloudTimeout
	}
	if opts.LocalTimeout <= 0 {
		opts.LocalTimeout = def.LocalTimeout
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = def.DiscoveryTimeout
	}
	return &Router{
		cloud:   cloud,
		local:   local,
		opts:    opts,
		metrics: rec,
		logger:  logger,
	}
}

func (r *Router) cloudDescriptor() Descriptor {
	return Descriptor{
		Key:         OnlineKey,
		DisplayName: r.opts.CloudName,
		Kind:        KindOnline,
		Description: "Modelo online",
		target:      Target{kind: KindOnline},
	}
}

// Discover lists the backends usable right now. A failed probe of the local
// host is logged and yields no local entries.
func (r *Router) Discover(ctx context.Context, localHost string) []Descriptor {
	var out []Descriptor
	if r.cloud != nil {
		out = append(out, r.cloudDescriptor())
	}

	localHost = strings.TrimSpace(localHost)
	if localHost == "" || r.local == nil {
		return out
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.opts.DiscoveryTimeout)
	defer cancel()

	models, err := r.local.ListModels(probeCtx, localHost)
	if err != nil {
		r.logger.Warn("local model discovery failed", "host", localHost, "error", err)
		return out
	}

	seen := make(map[string]bool, len(models))
	for _, m := range models {
		name := strings.TrimSpace(m.Name)
		if name == "" || strings.Contains(strings.ToLower(name), "embed") {
			continue
		}
		key := LocalKey(name)
		if key == localKeyPrefix || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Descriptor{
			Key:         key,
			DisplayName: displayName(name),
			Kind:        KindLocal,
			Description: "Modelo local: " + name,
			target:      Target{kind: KindLocal, model: name, host: localHost},
		})
	}
	return out
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// LocalKey derives the stable selection key for a local model name.
// "Llama3.2:latest" and "llama3.2" both map to "ollama_llama3_2".
func LocalKey(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	name = strings.TrimSuffix(name, ":latest")
	name = strings.Trim(nonAlnumRe.ReplaceAllString(name, "_"), "_")
	return localKeyPrefix + name
}

func displayName(model string) string {
	base, tag, hasTag := strings.Cut(model, ":")
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)

	words := strings.Fields(base)
	for i, w := range words {
		words[i] = titleWord(w)
	}
	name := strings.Join(words, " ")
	if hasTag && tag != "" {
		name += " (" + tag + ")"
	}
	return name
}

func titleWord(w string) string {
	first, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(first)) + strings.ToLower(w[size:])
}

// Generate answers req.Message with the backend named by req.BackendKey.
// The returned text is raw backend output; rendering is the caller's job.
func (r *Router) Generate(ctx context.Context, req Request) Envelope {
	if strings.TrimSpace(req.Message) == "" {
		return Envelope{Error: ErrEmptyMessage.Error(), Cause: ErrEmptyMessage}
	}

	desc, ok := r.lookup(ctx, req.BackendKey, req.LocalHost)
	if !ok {
		return Envelope{
			Error: fmt.Sprintf("backend %q not found", req.BackendKey),
			Cause: ErrBackendNotFound,
		}
	}

	start := time.Now()
	text, err := r.dispatch(ctx, desc.target, req)
	elapsed := time.Since(start)

	env := Envelope{BackendName: desc.DisplayName, BackendKind: desc.Kind}
	outcome := "success"
	switch {
	case err != nil && isTimeout(err):
		outcome = "timeout"
		env.Error = fmt.Sprintf("backend %s timed out", desc.DisplayName)
	case err != nil:
		outcome = "error"
		env.Error = fmt.Sprintf("backend %s is unavailable", desc.DisplayName)
	case strings.TrimSpace(text) == "":
		outcome = "empty"
		env.Error = fmt.Sprintf("backend %s returned an empty response", desc.DisplayName)
	default:
		env.Success = true
		env.Text = text
	}

	r.metrics.ObserveBackend(string(desc.Kind), outcome, elapsed)
	if !env.Success {
		r.logger.Warn("backend generate failed",
			"backend", desc.Key,
			"kind", desc.Kind,
			"outcome", outcome,
			"elapsed", elapsed,
			"error", err,
		)
	}
	return env
}

// lookup resolves a key against a fresh discovery. The online key does not
// depend on the local host, so it skips the probe.
func (r *Router) lookup(ctx context.Context, key, localHost string) (Descriptor, bool) {
	if key == OnlineKey {
		if r.cloud == nil {
			return Descriptor{}, false
		}
		return r.cloudDescriptor(), true
	}
	if !strings.HasPrefix(key, localKeyPrefix) {
		return Descriptor{}, false
	}
	for _, d := range r.Discover(ctx, localHost) {
		if d.Key == key {
			return d, true
		}
	}
	return Descriptor{}, false
}

type callResult struct {
	text string
	err  error
}

// dispatch runs the backend call on its own goroutine so the deadline holds
// even against a backend that ignores its context.
func (r *Router) dispatch(ctx context.Context, target Target, req Request) (string, error) {
	var (
		timeout time.Duration
		call    func(context.Context) (string, error)
	)

	switch target.kind {
	case KindOnline:
		timeout = r.opts.CloudTimeout
		prompt := cloudPrompt(req.Message, req.Context)
		call = func(ctx context.Context) (string, error) {
			return r.cloud.Complete(ctx, prompt)
		}
	case KindLocal:
		timeout = r.opts.LocalTimeout
		gen := ollama.GenerateRequest{
			Model:   target.model,
			Prompt:  localPrompt(req.Message, req.Context),
			System:  preamble,
			Options: r.opts.Sampling,
		}
		call = func(ctx context.Context) (string, error) {
			return r.local.Generate(ctx, target.host, gen)
		}
	default:
		return "", fmt.Errorf("unknown backend kind %q", target.kind)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- callResult{err: fmt.Errorf("backend panic: %v", p)}
			}
		}()
		text, err := call(ctx)
		done <- callResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
