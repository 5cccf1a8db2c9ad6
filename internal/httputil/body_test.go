package httputil

import (
	"errors"
	"strings"
	"testing"
)

func TestReadLimitedBody(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int64
		want    string
		wantErr error
	}{
		{name: "within limit", input: "hello", limit: 10, want: "hello"},
		{name: "exactly at limit", input: "hello", limit: 5, want: "hello"},
		{name: "over limit", input: "helloworld", limit: 5, want: "hello", wantErr: ErrBodyTooLarge},
		{name: "no limit", input: "helloworld", limit: 0, want: "helloworld"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := ReadLimitedBody(strings.NewReader(tt.input), tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if string(body) != tt.want {
				t.Fatalf("body = %q, want %q", body, tt.want)
			}
		})
	}
}
