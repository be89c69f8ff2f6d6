//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWith_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := WithOrderID(WithTraceID(context.Background(), "trace-1"), "01HX0000000000000000000000")

	With(ctx, &base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid log line %q: %v", buf.String(), err)
	}
	if line["trace_id"] != "trace-1" || line["order_id"] != "01HX0000000000000000000000" {
		t.Errorf("missing context fields: %v", line)
	}
	if _, ok := line["user_id"]; ok {
		t.Error("unset fields must not be logged")
	}
	if TraceID(ctx) != "trace-1" {
		t.Errorf("TraceID = %q", TraceID(ctx))
	}
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"rahim@example.com": "r***@example.com",
		"01712345678":       "017...78",
		"short":             "***",
	}
	for in, want := range cases {
		if got := Redact(in, false); got != want {
			t.Errorf("Redact(%q) = %q, want %q", in, got, want)
		}
	}
	if Redact("rahim@example.com", true) != "rahim@example.com" {
		t.Error("dev mode must not redact")
	}
}
