package api

import (
	"context"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/studenthub/internal/chat"
	"github.com/MikeSquared-Agency/studenthub/internal/markup"
	"github.com/MikeSquared-Agency/studenthub/internal/whatsapp"
)

const (
	ackPrefix            = "Recebemos sua mensagem: "
	webhookAnswerTimeout = 2 * time.Minute
)

// whatsappWebhook acknowledges an inbound message at once and delivers the
// answer through the gateway in the background. Without a gateway the answer
// goes back inline in the TwiML response.
func (s *Server) whatsappWebhook(w http.ResponseWriter, r *http.Request) {
	in, err := whatsapp.ParseInbound(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	if s.cfg.ValidateSignature {
		sig := r.Header.Get(whatsapp.SignatureHeader)
		if s.cfg.TwilioAuthToken == "" || !whatsapp.ValidSignature(s.cfg.TwilioAuthToken, s.webhookURL(r), r.PostForm, sig) {
			s.logger.Warn("rejected whatsapp webhook with bad signature", "from", in.From)
			writeError(w, http.StatusForbidden, "invalid signature")
			return
		}
	}

	if in.Body == "" {
		writeTwiML(w, "")
		return
	}

	q := chat.Question{
		Message:   in.Body,
		SessionID: in.From,
		Channel:   chat.ChannelWhatsApp,
	}

	if s.deps.Sender == nil {
		ans, err := s.deps.Chat.Ask(r.Context(), q)
		if err != nil {
			s.logger.Error("whatsapp answer failed", "from", in.From, "error", err)
			writeTwiML(w, ackPrefix+in.Body)
			return
		}
		writeTwiML(w, markup.Truncate(ans.Text, markup.DefaultPlainLimit))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), webhookAnswerTimeout)
		defer cancel()
		s.answerWhatsApp(ctx, q, in)
	}()

	writeTwiML(w, ackPrefix+in.Body)
}

func (s *Server) answerWhatsApp(ctx context.Context, q chat.Question, in whatsapp.Inbound) {
	ans, err := s.deps.Chat.Ask(ctx, q)
	if err != nil {
		s.logger.Error("whatsapp answer failed", "from", in.From, "error", err)
		return
	}
	if _, err := s.deps.Sender.Send(ctx, ans.Text, in.From, in.To); err != nil {
		s.logger.Error("whatsapp delivery failed", "from", in.From, "error", err)
	}
}

// webhookURL is the URL Twilio signed: the configured public base when set,
// otherwise reconstructed from the request.
func (s *Server) webhookURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(whatsapp.TwiML(message)))
}
