package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/studenthub/internal/hermes"
	"github.com/MikeSquared-Agency/studenthub/internal/history"
	"github.com/MikeSquared-Agency/studenthub/internal/metrics"
	"github.com/MikeSquared-Agency/studenthub/internal/router"
	"github.com/MikeSquared-Agency/studenthub/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFAQ struct {
	questions []store.Question
	err       error
}

func (f *fakeFAQ) SearchQuestions(ctx context.Context, term string) ([]store.Question, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Question
	for _, q := range f.questions {
		if strings.Contains(strings.ToLower(q.Text), strings.ToLower(term)) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeFAQ) ListQuestions(ctx context.Context) ([]store.Question, error) {
	return f.questions, f.err
}

type fakeGenerator struct {
	requests []router.Request
	env      router.Envelope
}

func (f *fakeGenerator) Generate(ctx context.Context, req router.Request) router.Envelope {
	f.requests = append(f.requests, req)
	return f.env
}

type fakeHistory struct {
	turns []history.Turn
	saved []history.Exchange
}

func (f *fakeHistory) Recent(ctx context.Context, userID int64, within time.Duration, limit int) ([]history.Turn, error) {
	return f.turns, nil
}

func (f *fakeHistory) Save(ctx context.Context, ex history.Exchange) (*store.ChatRecord, error) {
	f.saved = append(f.saved, ex)
	return &store.ChatRecord{ID: int64(len(f.saved))}, nil
}

type fakePublisher struct {
	events []hermes.ChatAnswered
}

func (f *fakePublisher) PublishChatAnswered(ev hermes.ChatAnswered) error {
	f.events = append(f.events, ev)
	return nil
}

type fixture struct {
	faq  *fakeFAQ
	gen  *fakeGenerator
	hist *fakeHistory
	pub  *fakePublisher
	svc  *Service
}

func newFixture() *fixture {
	f := &fixture{
		faq: &fakeFAQ{questions: []store.Question{
			{ID: 1, Text: "Qual é a capital de Portugal?", Answer: "**Lisboa**"},
		}},
		gen:  &fakeGenerator{env: router.Envelope{Success: true, Text: "A resposta é **4**.", BackendName: "Gemini 2.0 Flash", BackendKind: router.KindOnline}},
		hist: &fakeHistory{},
		pub:  &fakePublisher{},
	}
	f.svc = NewService(f.faq, f.gen, f.hist, f.pub, metrics.New(), Options{
		DefaultBackend:   router.OnlineKey,
		DefaultLocalHost: "http://ollama.local:11434",
		HistoryWindow:    24 * time.Hour,
		HistoryLimit:     20,
		FallbackMessage:  "Desculpe, ocorreu um erro ao processar sua solicitação.",
	}, discardLogger())
	return f
}

func TestAsk_EmptyMessage(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Ask(context.Background(), Question{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.gen.requests)
}

func TestAsk_FAQMatch(t *testing.T) {
	f := newFixture()

	ans, err := f.svc.Ask(context.Background(), Question{UserID: 3, Message: "capital de portugal", Channel: ChannelWeb})
	require.NoError(t, err)

	assert.Equal(t, SourceFAQ, ans.Source)
	assert.Equal(t, "<p><strong>Lisboa</strong></p>", ans.Text)
	assert.True(t, ans.Success)
	assert.NotEmpty(t, ans.SessionID)
	assert.Empty(t, f.gen.requests)

	require.Len(t, f.hist.saved, 1)
	assert.Equal(t, "**Lisboa**", f.hist.saved[0].Response)
	assert.Equal(t, "faq", f.hist.saved[0].BackendKind)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, "faq", f.pub.events[0].Source)
	assert.Equal(t, "web", f.pub.events[0].Channel)
}

func TestAsk_LLMWithContext(t *testing.T) {
	f := newFixture()
	f.hist.turns = []history.Turn{{Message: "Quanto é 1+1?", Response: "2"}}

	ans, err := f.svc.Ask(context.Background(), Question{UserID: 3, Message: "Quanto é 2+2?", SessionID: "s-1"})
	require.NoError(t, err)

	assert.Equal(t, SourceLLM, ans.Source)
	assert.Equal(t, "<p>A resposta é <strong>4</strong>.</p>", ans.Text)
	assert.Equal(t, "Gemini 2.0 Flash", ans.BackendName)
	assert.Equal(t, "online", ans.BackendKind)
	assert.Equal(t, "s-1", ans.SessionID)

	require.Len(t, f.gen.requests, 1)
	req := f.gen.requests[0]
	assert.Equal(t, router.OnlineKey, req.BackendKey)
	assert.Equal(t, "http://ollama.local:11434", req.LocalHost)
	assert.Contains(t, req.Context, "Pergunta: Qual é a capital de Portugal?\n Resposta: **Lisboa**")
	assert.Contains(t, req.Context, "Histórico recente:\nPergunta: Quanto é 1+1?\nResposta: 2")

	require.Len(t, f.hist.saved, 1)
	assert.Equal(t, "A resposta é **4**.", f.hist.saved[0].Response)
	assert.Equal(t, "s-1", f.hist.saved[0].SessionID)
}

func TestAsk_WhatsAppRendersPlain(t *testing.T) {
	f := newFixture()

	ans, err := f.svc.Ask(context.Background(), Question{Message: "Quanto é 2+2?", Channel: ChannelWhatsApp})
	require.NoError(t, err)
	assert.Equal(t, "A resposta é *4*.", ans.Text)
	assert.Empty(t, f.hist.saved, "anonymous exchanges are not stored")
	assert.Equal(t, "whatsapp", f.pub.events[0].Channel)
}

func TestAsk_BackendFailureUsesFallback(t *testing.T) {
	f := newFixture()
	f.gen.env = router.Envelope{Error: "backend Gemma2 (2b) timed out", BackendName: "Gemma2 (2b)", BackendKind: router.KindLocal}

	ans, err := f.svc.Ask(context.Background(), Question{UserID: 3, Message: "oi", BackendKey: "ollama_gemma2_2b"})
	require.NoError(t, err)

	assert.False(t, ans.Success)
	assert.Equal(t, SourceFallback, ans.Source)
	assert.Equal(t, "<p>Desculpe, ocorreu um erro ao processar sua solicitação.</p>", ans.Text)
	assert.Equal(t, "backend Gemma2 (2b) timed out", ans.Error)
	assert.Equal(t, "ollama_gemma2_2b", f.gen.requests[0].BackendKey)
	assert.False(t, f.pub.events[0].Success)
}

func TestAsk_UnknownBackendIsAnError(t *testing.T) {
	f := newFixture()
	f.gen.env = router.Envelope{Error: `backend "x" not found`, Cause: router.ErrBackendNotFound}

	_, err := f.svc.Ask(context.Background(), Question{Message: "oi", BackendKey: "x"})
	assert.ErrorIs(t, err, router.ErrBackendNotFound)
	assert.Empty(t, f.pub.events)
}

func TestAsk_FAQErrorFallsThroughToBackend(t *testing.T) {
	f := newFixture()
	f.faq.err = errors.New("db down")

	ans, err := f.svc.Ask(context.Background(), Question{Message: "capital de portugal"})
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, ans.Source)
	assert.Empty(t, f.gen.requests[0].Context)
}

func TestAsk_OptionalCollaborators(t *testing.T) {
	gen := &fakeGenerator{env: router.Envelope{Success: true, Text: "ok", BackendKind: router.KindOnline}}
	svc := NewService(&fakeFAQ{}, gen, nil, nil, nil, Options{FallbackMessage: "x"}, discardLogger())

	ans, err := svc.Ask(context.Background(), Question{UserID: 1, Message: "oi"})
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", ans.Text)
}

func TestFormatKnowledge(t *testing.T) {
	assert.Equal(t, "", FormatKnowledge(nil))
	got := FormatKnowledge([]store.Question{{Text: "a?", Answer: "b"}, {Text: "c?", Answer: "d"}})
	assert.Equal(t, "Pergunta: a?\n Resposta: b\nPergunta: c?\n Resposta: d", got)
}
