package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	member := uuid.MustParse("7b0c4ad4-9d8e-4d8b-b3b6-2a3c1f3f0a11")
	group := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	ctx = log.WithMemberID(ctx, member)
	ctx = log.WithLoanGroupID(ctx, group)

	log.Error(ctx, "boom", errors.New("boom"))

	for _, field := range []string{`"request_id":"req-123"`, `"member_id":"` + member.String() + `"`, `"loan_group_id":"` + group.String() + `"`, `"stack"`} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled; entry=%s", buf.String())
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("did not expect stack; entry=%s", buf.String())
	}
}

func TestLoggerLevelFiltersInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.WarnLevel, Output: buf})
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" DEBUG "); lvl != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %v", lvl)
	}
}

func TestLoggerSkipsNilIdentifiers(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: FormatJSON})

	ctx := log.WithMemberID(context.Background(), uuid.Nil)
	log.Info(ctx, "anonymous")
	if bytes.Contains(buf.Bytes(), []byte("member_id")) {
		t.Fatalf("nil member should not be logged; entry=%s", buf.String())
	}
}

func TestLoggerWithFieldsRendersInKeyOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: buf, Format: FormatJSON})

	ctx := log.WithFields(context.Background(), map[string]any{"zeta": 1, "alpha": 2, "mid": 3})
	log.Debug(ctx, "ordered")

	entry := buf.String()
	alpha := bytes.Index(buf.Bytes(), []byte(`"alpha"`))
	mid := bytes.Index(buf.Bytes(), []byte(`"mid"`))
	zeta := bytes.Index(buf.Bytes(), []byte(`"zeta"`))
	if alpha < 0 || !(alpha < mid && mid < zeta) {
		t.Fatalf("expected sorted fields; entry=%s", entry)
	}
}
