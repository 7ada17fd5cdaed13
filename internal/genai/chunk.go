package genai

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultChunkTokens is the size of one corpus chunk sent for filtering.
	DefaultChunkTokens = 8192

	// DefaultExampleTokens bounds the examples sent with a generation
	// request.
	DefaultExampleTokens = 80000

	fallbackEncoding = tiktoken.MODEL_CL100K_BASE
)

// Tokenizer measures and cuts text in model tokens.
type Tokenizer interface {
	Count(text string) int
	// Truncate returns the longest prefix of text of at most max tokens. The
	// result is always valid UTF-8.
	Truncate(text string, max int) string
}

// tiktokenTokenizer counts with the BPE encoding of an OpenAI model.
type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer returns the tokenizer of model, or of cl100k_base when the
// model is unknown. Loading an encoding for the first time downloads its
// ranks; they are cached under TIKTOKEN_CACHE_DIR.
func NewTokenizer(model string) (Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer for %s: %w", model, err)
		}
	}
	return tiktokenTokenizer{enc: enc}, nil
}

func (t tiktokenTokenizer) encode(text string) []int {
	// Special token text in mail bodies is counted as ordinary text would be.
	return t.enc.Encode(text, []string{"all"}, nil)
}

func (t tiktokenTokenizer) Count(text string) int {
	return len(t.encode(text))
}

func (t tiktokenTokenizer) Truncate(text string, max int) string {
	tokens := t.encode(text)
	if len(tokens) <= max {
		return text
	}
	// Byte-level tokens can end inside a rune.
	return trimPartialRune(t.enc.Decode(tokens[:max]))
}

// LazyTokenizer loads the model's encoding on first use and falls back to
// RuneTokenizer when it cannot be loaded.
type LazyTokenizer struct {
	model  string
	logger *slog.Logger
	once   sync.Once
	tok    Tokenizer
}

// NewLazyTokenizer returns a LazyTokenizer for model. logger may be nil.
func NewLazyTokenizer(model string, logger *slog.Logger) *LazyTokenizer {
	if model == "" {
		model = string(DefaultModel)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LazyTokenizer{model: model, logger: logger}
}

func (l *LazyTokenizer) get() Tokenizer {
	l.once.Do(func() {
		tok, err := NewTokenizer(l.model)
		if err != nil {
			l.logger.Warn("Tokenizer unavailable, counting runes instead",
				slog.String("model", l.model), slog.Any("error", err))
			tok = RuneTokenizer{}
		}
		l.tok = tok
	})
	return l.tok
}

// Count implements Tokenizer.
func (l *LazyTokenizer) Count(text string) int { return l.get().Count(text) }

// Truncate implements Tokenizer.
func (l *LazyTokenizer) Truncate(text string, max int) string { return l.get().Truncate(text, max) }

// RuneTokenizer counts one token per rune. It serves when no encoding can
// be loaded.
type RuneTokenizer struct{}

// Count implements Tokenizer.
func (RuneTokenizer) Count(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate implements Tokenizer.
func (RuneTokenizer) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}

func trimPartialRune(s string) string {
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// ChunkRecords packs whole records into chunks of at most maxTokens. A
// record longer than maxTokens becomes its own chunk, truncated.
func ChunkRecords(tok Tokenizer, records []string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	sepTokens := tok.Count("\n")

	var chunks []string
	var cur strings.Builder
	curTokens := 0
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curTokens = 0
		}
	}

	for _, rec := range records {
		n := tok.Count(rec)
		if n > maxTokens {
			flush()
			chunks = append(chunks, tok.Truncate(rec, maxTokens))
			continue
		}
		sep := 0
		if cur.Len() > 0 {
			sep = sepTokens
		}
		if curTokens+sep+n > maxTokens {
			flush()
			sep = 0
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(rec)
		curTokens += sep + n
	}
	flush()
	return chunks
}

// TruncateExamples cuts text to at most maxTokens, at a line boundary when
// one is available.
func TruncateExamples(tok Tokenizer, text string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultExampleTokens
	}
	cut := tok.Truncate(text, maxTokens)
	if len(cut) == len(text) {
		return text
	}
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut
}
