package gmail

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	gmail "google.golang.org/api/gmail/v1"
)

// RecordSeparator terminates each email in a corpus.
var RecordSeparator = strings.Repeat("=", 80)

// SentEmail is one sent message reduced to the user's own words.
type SentEmail struct {
	ID      string
	Date    string
	To      string
	Subject string
	Content string
}

// Format renders e as a corpus record.
func (e SentEmail) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Email ID: %s\n", e.ID)
	fmt.Fprintf(&b, "Date: %s\n", e.Date)
	fmt.Fprintf(&b, "To: %s\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
	b.WriteString("Your Content:\n")
	b.WriteString(e.Content)
	b.WriteString("\n" + RecordSeparator + "\n\n")
	return b.String()
}

// SplitCorpus returns the records of a corpus, each ending with the
// separator line.
func SplitCorpus(corpus string) []string {
	var records []string
	for _, part := range strings.SplitAfter(corpus, RecordSeparator) {
		if !strings.HasSuffix(part, RecordSeparator) {
			continue
		}
		rec := strings.TrimLeft(part, "\n")
		if strings.HasPrefix(rec, "Email ID:") {
			records = append(records, rec)
		}
	}
	return records
}

// SentQuery builds the Gmail search for sent mail in [after, before).
// Dates use the YYYY/MM/DD form.
func SentQuery(after, before string) string {
	q := "in:sent"
	if after != "" {
		q += " after:" + after
	}
	if before != "" {
		q += " before:" + before
	}
	return q
}

// FromMessage extracts the headers and own content of msg.
func FromMessage(msg *gmail.Message) SentEmail {
	subject := HeaderValue(msg, "Subject")
	if subject == "" {
		subject = "No Subject"
	}
	to := HeaderValue(msg, "To")
	if to == "" {
		to = "Unknown"
	}
	date := HeaderValue(msg, "Date")
	if date == "" {
		date = "Unknown"
	}
	return SentEmail{
		ID:      msg.Id,
		Date:    date,
		To:      to,
		Subject: subject,
		Content: ExtractOwnContent(MessageBody(msg)),
	}
}

// HeaderValue returns the first header named header, case-insensitively.
func HeaderValue(m *gmail.Message, header string) string {
	if m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, header) {
			return h.Value
		}
	}
	return ""
}

// MessageBody returns the text of msg, preferring text/plain and falling
// back to text/html reduced to text.
func MessageBody(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}

	var plain, htmlBody string
	walkParts(msg.Payload, func(part *gmail.MessagePart) {
		if part.Body == nil || part.Body.Data == "" {
			return
		}
		switch part.MimeType {
		case "text/plain":
			if plain == "" {
				plain = part.Body.Data
			}
		case "text/html":
			if htmlBody == "" {
				htmlBody = part.Body.Data
			}
		}
	})

	if plain != "" {
		if text, err := decodeBody(plain); err == nil {
			return text
		}
	}
	if htmlBody != "" {
		if text, err := decodeBody(htmlBody); err == nil {
			return CleanHTML(text)
		}
	}
	return ""
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, sub := range part.Parts {
		walkParts(sub, fn)
	}
}

// decodeBody decodes base64url body data, padded or not.
func decodeBody(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode message body: %w", err)
		}
	}
	return string(decoded), nil
}

var whitespace = regexp.MustCompile(`\s+`)

// CleanHTML returns the visible text of an HTML fragment with whitespace
// collapsed.
func CleanHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way keep what was read.
			text := strings.ReplaceAll(b.String(), "\u00a0", " ")
			return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHidden(tag []byte) bool {
	switch string(tag) {
	case "script", "style", "head":
		return true
	}
	return false
}

// quoteStart matches lines that begin quoted or non-authored material.
var quoteStart = regexp.MustCompile(
	`^(On .+ wrote:$|>|From: |Date: |Subject: |To: |Sent from |-+ ?Original Message ?-+|-+ ?Forwarded message ?-+|_+$|--\s*$)`)

// ExtractOwnContent keeps the lines the user wrote: everything before the
// first quote, forwarded header or signature marker, without leading blank
// lines. A body where nothing survives is returned unchanged.
func ExtractOwnContent(body string) string {
	if body == "" {
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	var own []string
	for _, line := range lines {
		if quoteStart.MatchString(strings.TrimSpace(line)) {
			break
		}
		if len(own) == 0 && strings.TrimSpace(line) == "" {
			continue
		}
		own = append(own, line)
	}

	if len(own) == 0 {
		return body
	}
	return strings.TrimRight(strings.Join(own, "\n"), "\n ")
}
