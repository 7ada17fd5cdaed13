package common

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestUserIDFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{
			name: "with user specified",
			args: map[string]interface{}{"userId": "user-1"},
			want: "user-1",
		},
		{
			name: "without user specified",
			args: map[string]interface{}{},
			want: "local",
		},
		{
			name: "with empty user string",
			args: map[string]interface{}{"userId": ""},
			want: "local",
		},
		{
			name: "with non-string user",
			args: map[string]interface{}{"userId": 123},
			want: "local",
		},
		{
			name: "nil args",
			args: nil,
			want: "local",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserIDFromArgs(tt.args, "local")
			if got != tt.want {
				t.Errorf("UserIDFromArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJSONResult(t *testing.T) {
	result, err := JSONResult(map[string]int{"count": 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("expected a text result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	if text.Text != "{\n  \"count\": 2\n}" {
		t.Errorf("JSONResult() = %q", text.Text)
	}
}

func TestJSONResultUnencodable(t *testing.T) {
	result, err := JSONResult(make(chan int))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected an error result")
	}
}
