package mail

import (
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/pathwise/epistle/internal/model"
)

// Header does a case-insensitive lookup in a Gmail header list.
func Header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ParseSender extracts the bare address from a From header value like
// "Ana Lopez <ana@example.com>" and normalizes it.
func ParseSender(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return model.NormalizeEmail(addr.Address)
	}
	// Malformed display name; salvage what is between the brackets.
	if open := strings.Index(from, "<"); open >= 0 {
		if close := strings.Index(from[open:], ">"); close > 0 {
			return model.NormalizeEmail(from[open+1 : open+close])
		}
	}
	return model.NormalizeEmail(from)
}

// ExtractBody pulls the text/plain content out of a Gmail message payload,
// walking nested multipart structures (multipart/mixed containing
// multipart/alternative and so on).
func ExtractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if len(payload.Parts) == 0 {
		if payload.Body != nil && payload.Body.Data != "" {
			return decodeBody(payload.Body.Data)
		}
		return ""
	}
	return walkParts(payload.Parts)
}

func walkParts(parts []*gmail.MessagePart) string {
	for _, part := range parts {
		if strings.HasPrefix(part.MimeType, "multipart/") && len(part.Parts) > 0 {
			if body := walkParts(part.Parts); body != "" {
				return body
			}
		}
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			return decodeBody(part.Body.Data)
		}
	}
	return ""
}

// decodeBody handles Gmail's URL-safe base64, with or without padding.
func decodeBody(data string) string {
	if decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}

// FromMessage converts a fetched Gmail message into an Inbound.
func FromMessage(m *gmail.Message) *Inbound {
	var headers []*gmail.MessagePartHeader
	if m.Payload != nil {
		headers = m.Payload.Headers
	}
	from := Header(headers, "From")
	return &Inbound{
		ID:              m.Id,
		ThreadID:        m.ThreadId,
		From:            from,
		Sender:          ParseSender(from),
		Subject:         Header(headers, "Subject"),
		MessageIDHeader: Header(headers, "Message-ID"),
		Body:            ExtractBody(m.Payload),
	}
}

// ReplySubject prefixes "Re: " unless the subject already carries it.
func ReplySubject(subject string) string {
	if strings.HasPrefix(subject, "Re:") {
		return subject
	}
	return "Re: " + subject
}

// BuildRaw assembles an RFC 2822 message and encodes it the way the Gmail
// API expects raw payloads (URL-safe base64). When html is non-empty the
// message is multipart/alternative with both representations.
func BuildRaw(fromName, fromAddr, to, subject, body, html, inReplyTo string) (string, error) {
	var buf strings.Builder

	writeHeader := func(name, value string) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}

	writeHeader("From", fmt.Sprintf("%s <%s>", fromName, fromAddr))
	writeHeader("To", to)
	writeHeader("Subject", subject)
	writeHeader("MIME-Version", "1.0")
	if inReplyTo != "" {
		writeHeader("In-Reply-To", inReplyTo)
		writeHeader("References", inReplyTo)
	}

	if html == "" {
		writeHeader("Content-Type", `text/plain; charset="UTF-8"`)
		buf.WriteString("\r\n")
		buf.WriteString(body)
	} else {
		var parts strings.Builder
		w := multipart.NewWriter(&parts)
		plain, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {`text/plain; charset="UTF-8"`}})
		if err != nil {
			return "", err
		}
		if _, err := plain.Write([]byte(body)); err != nil {
			return "", err
		}
		alt, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {`text/html; charset="UTF-8"`}})
		if err != nil {
			return "", err
		}
		if _, err := alt.Write([]byte(html)); err != nil {
			return "", err
		}
		if err := w.Close(); err != nil {
			return "", err
		}
		writeHeader("Content-Type", fmt.Sprintf(`multipart/alternative; boundary=%q`, w.Boundary()))
		buf.WriteString("\r\n")
		buf.WriteString(parts.String())
	}

	return base64.RawURLEncoding.EncodeToString([]byte(buf.String())), nil
}
