package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailsense/internal/session"
)

type mockChat struct {
	content string
	err     error
	calls   []openai.ChatCompletionNewParams
	empty   bool
}

func (m *mockChat) Create(_ context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return openai.ChatCompletion{}, m.err
	}
	if m.empty {
		return openai.ChatCompletion{}, nil
	}
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: m.content}}},
	}, nil
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)

	c, err := NewClient(Config{APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.model)
	assert.Equal(t, int64(DefaultMaxTokens), c.maxTokens)
}

func TestFilterVoice(t *testing.T) {
	mock := &mockChat{content: "  kept email  \n"}
	c := newClient(mock, Config{Model: "test-model"}, nil)

	out, err := c.FilterVoice(context.Background(), "chunk body")
	require.NoError(t, err)
	assert.Equal(t, "kept email", out)

	require.Len(t, mock.calls, 1)
	p := mock.calls[0]
	assert.Equal(t, openai.ChatModel("test-model"), p.Model)
	assert.Len(t, p.Messages, 2)
	assert.Equal(t, 0.0, p.Temperature.Value)
}

func TestGenerate_Errors(t *testing.T) {
	c := newClient(&mockChat{err: errors.New("quota")}, Config{}, nil)
	_, err := c.Generate(context.Background(), "examples", GenerateRequest{}, session.Profile{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate")
	assert.Contains(t, err.Error(), "quota")

	c = newClient(&mockChat{empty: true}, Config{}, nil)
	_, err = c.Generate(context.Background(), "examples", GenerateRequest{}, session.Profile{})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestGenerate_Temperature(t *testing.T) {
	mock := &mockChat{content: "Hi"}
	c := newClient(mock, Config{}, nil)

	out, err := c.Generate(context.Background(), "examples", GenerateRequest{Prompt: "a thank you note"}, session.Profile{})
	require.NoError(t, err)
	assert.Equal(t, "Hi", out)
	assert.Equal(t, generateTemperature, mock.calls[0].Temperature.Value)

	_, err = c.Refine(context.Background(), "examples", RefineRequest{Text: "Hi", Instruction: "shorter"}, session.Profile{})
	require.NoError(t, err)
	assert.Equal(t, refineTemperature, mock.calls[1].Temperature.Value)
}

func TestGeneratePrompt(t *testing.T) {
	t.Run("structured defaults", func(t *testing.T) {
		p := GeneratePrompt("EX", GenerateRequest{}, session.Profile{})
		assert.Contains(t, p, "EX")
		assert.Contains(t, p, "approximately 200 words")
		assert.Contains(t, p, "an email about a response, professional in tone, addressed to a colleague")
		assert.NotContains(t, p, "Writer details")
	})

	t.Run("free form wins", func(t *testing.T) {
		p := GeneratePrompt("EX", GenerateRequest{Prompt: "decline the meeting", Genre: "memo", Length: 50}, session.Profile{})
		assert.Contains(t, p, "approximately 50 words: decline the meeting")
		assert.NotContains(t, p, "memo")
	})

	t.Run("writer details", func(t *testing.T) {
		p := GeneratePrompt("EX", GenerateRequest{}, session.Profile{Name: "Ada", Organization: "Analytical"})
		assert.Contains(t, p, "- Name: Ada\n")
		assert.Contains(t, p, "- Organization: Analytical\n")
		assert.NotContains(t, p, "Job role")
	})
}

func TestRefinePrompt(t *testing.T) {
	p := RefinePrompt("EX", RefineRequest{Text: "draft", Instruction: "more formal"}, session.Profile{})
	assert.Contains(t, p, "draft")
	assert.Contains(t, p, "more formal")
}

func TestChunkRecords(t *testing.T) {
	tok := RuneTokenizer{}
	records := []string{"aaaa", "bbbb", "cccc"}

	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, ChunkRecords(tok, records, 9))
	assert.Equal(t, []string{"aaaa", "bbbb", "cccc"}, ChunkRecords(tok, records, 5))
	assert.Equal(t, []string{"aaaa", "bb"}, ChunkRecords(tok, []string{"aaaa", "bb"}, 4))
	assert.Equal(t, []string{"aaaa", "xxxx"}, ChunkRecords(tok, []string{"aaaa", "xxxxxx"}, 4))
	assert.Empty(t, ChunkRecords(tok, nil, 10))
}

func TestChunkRecords_CountsTokensNotBytes(t *testing.T) {
	// Four runes, twelve bytes.
	records := []string{"äöüß", "ñ"}
	assert.Equal(t, []string{"äöüß\nñ"}, ChunkRecords(RuneTokenizer{}, records, 6))
}

func TestChunkRecords_TruncatesOnRuneBoundary(t *testing.T) {
	chunks := ChunkRecords(RuneTokenizer{}, []string{"héllo wörld"}, 5)
	require.Len(t, chunks, 1)
	assert.Equal(t, "héllo", chunks[0])
	assert.True(t, utf8.ValidString(chunks[0]))
}

func TestTruncateExamples(t *testing.T) {
	tok := RuneTokenizer{}
	assert.Equal(t, "short", TruncateExamples(tok, "short", 10))

	text := strings.Repeat("line\n", 10)
	out := TruncateExamples(tok, text, 12)
	assert.Equal(t, "line\nline", out)

	multi := strings.Repeat("€", 20)
	out = TruncateExamples(tok, multi, 7)
	assert.Equal(t, strings.Repeat("€", 7), out)
	assert.True(t, utf8.ValidString(out))
}

func TestRuneTokenizer(t *testing.T) {
	tok := RuneTokenizer{}
	assert.Equal(t, 3, tok.Count("日本語"))
	assert.Equal(t, "日本", tok.Truncate("日本語", 2))
	assert.Equal(t, "日本語", tok.Truncate("日本語", 5))
	assert.Empty(t, tok.Truncate("日本語", 0))
}

func TestTrimPartialRune(t *testing.T) {
	euro := "€" // three bytes
	assert.Equal(t, "a", trimPartialRune("a"+euro[:2]))
	assert.Equal(t, "a"+euro, trimPartialRune("a"+euro))
	assert.Empty(t, trimPartialRune(euro[:1]))
}
