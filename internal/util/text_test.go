package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "clean text passes through",
			input: "a summary of the document",
			want:  "a summary of the document",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "nul bytes removed",
			input: "sum\x00mary\x00",
			want:  "summary",
		},
		{
			name:  "invalid utf8 removed",
			input: string([]byte{'o', 'k', 0xfe, 0xff, '!'}),
			want:  "ok!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePostgresText(tt.input)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
