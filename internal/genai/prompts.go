package genai

import (
	"fmt"
	"strings"

	"github.com/teemow/mailsense/internal/session"
)

const filterSystemPrompt = `You curate a corpus of sent emails for a writing-style model.`

const filterPrompt = `Below is a chunk of sent emails, each ending with a line of "=" characters.

Remove:
- empty or near-empty emails, and one-line acknowledgements
- lists of links or attachments without personal commentary
- notes to self, fragments and near-duplicates
- purely transactional replies such as addresses or form data

Keep emails with natural conversational flow, explanations, opinions, advice,
humour or distinctive phrasing.

Output the kept emails verbatim, headers and separators included, and nothing
else.

INPUT CHUNK:
%s`

const styleSystemPrompt = `You write text that is indistinguishable from the author of the example emails.
Use only the vocabulary, sentence structure, punctuation habits, greetings and
sign-offs present in the examples. Do not apply generic writing conventions the
author does not use. Match the author's typical length and structure for
similar messages.`

// writerDetails renders the profile as prompt context.
func writerDetails(p session.Profile) string {
	var b strings.Builder
	add := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	add("Name", p.Name)
	add("Job role", p.Role)
	add("Organization", p.Organization)
	add("Domain", p.Domain)
	add("Additional context", p.Context)
	if b.Len() == 0 {
		return ""
	}
	return "\nWriter details:\n" + b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func withArticle(noun string) string {
	if strings.ContainsRune("aeiouAEIOU", rune(noun[0])) {
		return "an " + noun
	}
	return "a " + noun
}

// GeneratePrompt builds the user prompt for a generation request.
func GeneratePrompt(examples string, req GenerateRequest, p session.Profile) string {
	length := req.Length
	if length <= 0 {
		length = DefaultLength
	}

	task := strings.TrimSpace(req.Prompt)
	if task == "" {
		task = fmt.Sprintf("%s about %s, %s in tone, addressed to %s",
			withArticle(orDefault(req.Genre, "email")),
			orDefault(req.Topic, "a response"),
			orDefault(req.Tone, "professional"),
			orDefault(req.Recipient, "a colleague"))
	}

	return fmt.Sprintf(`Here are examples of my writing:

%s

Now write, in my exact style, approximately %d words: %s
%s
Match my style, tone, vocabulary and quirks exactly.`, examples, length, task, writerDetails(p))
}

// RefinePrompt builds the user prompt for a refinement request.
func RefinePrompt(examples string, req RefineRequest, p session.Profile) string {
	return fmt.Sprintf(`Here are examples of my writing:

%s

Here is a text written in my style:

%s

Adjust it as follows, changing nothing else and keeping my exact style: %s
%s`, examples, req.Text, req.Instruction, writerDetails(p))
}
