package whatsapp

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SignatureHeader carries Twilio's request signature.
const SignatureHeader = "X-Twilio-Signature"

// Inbound is the subset of Twilio's webhook form StudentHub reads.
type Inbound struct {
	Body        string
	From        string
	To          string
	ProfileName string
	MessageSID  string
	NumMedia    int
}

// Number is the sender without the whatsapp: scheme.
func (in Inbound) Number() string {
	return strings.TrimPrefix(in.From, addressPrefix)
}

func ParseInbound(r *http.Request) (Inbound, error) {
	if err := r.ParseForm(); err != nil {
		return Inbound{}, fmt.Errorf("parse webhook form: %w", err)
	}
	in := Inbound{
		Body:        strings.TrimSpace(r.PostForm.Get("Body")),
		From:        r.PostForm.Get("From"),
		To:          r.PostForm.Get("To"),
		ProfileName: r.PostForm.Get("ProfileName"),
		MessageSID:  r.PostForm.Get("MessageSid"),
	}
	if n := r.PostForm.Get("NumMedia"); n != "" {
		in.NumMedia, _ = strconv.Atoi(n)
	}
	if in.From == "" {
		return in, fmt.Errorf("webhook form missing From")
	}
	return in, nil
}

// Signature computes Twilio's signature for a POST to fullURL: the URL
// followed by every form key and value in key order, HMAC-SHA1 with the auth
// token, base64 encoded.
func Signature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func ValidSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Signature(authToken, fullURL, form)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// TwiML renders a messaging response. An empty message yields an empty
// response, which tells Twilio not to reply.
func TwiML(message string) string {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<Response>")
	if message != "" {
		b.WriteString("<Message>")
		xml.EscapeText(&b, []byte(message))
		b.WriteString("</Message>")
	}
	b.WriteString("</Response>")
	return b.String()
}
