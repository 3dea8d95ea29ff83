package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseRaw(t *testing.T) {
	for _, in := range [][]string{{"90", "3C", "7F"}, {"903c7f"}, {"0x90", "0x3c", "0x7f"}} {
		raw, err := parseRaw(in)
		if err != nil {
			t.Fatalf("parseRaw(%v): %v", in, err)
		}
		if raw.String() != "90 3C 7F" {
			t.Errorf("parseRaw(%v) = %s", in, raw)
		}
	}

	if _, err := parseRaw([]string{"9"}); err == nil {
		t.Error("Expected error for odd-length hex")
	}
	if _, err := parseRaw(nil); err == nil {
		t.Error("Expected error for no bytes")
	}
}

func TestHashNames(t *testing.T) {
	var buf bytes.Buffer
	hashNames(&buf, []string{"__hv_notein"})
	if got := buf.String(); got != "0x67E37CA3  __hv_notein\n" {
		t.Errorf("Unexpected output %q", got)
	}
}

func TestTranslateIn(t *testing.T) {
	var buf bytes.Buffer
	if err := translateIn(&buf, []string{"93", "3C", "64"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header and 3 messages, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "__hv_midiin") || !strings.Contains(lines[1], "[60 3]") {
		t.Errorf("Unexpected first midiin line %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "__hv_midiin") || !strings.Contains(lines[2], "[100 3]") {
		t.Errorf("Unexpected second midiin line %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "__hv_notein") || !strings.Contains(lines[3], "[60 100 3]") {
		t.Errorf("Unexpected notein line %q", lines[3])
	}
}

func TestTranslateOut(t *testing.T) {
	var buf bytes.Buffer
	if err := translateOut(&buf, []string{"__hv_noteout", "60", "100", "17"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "91 3C 64") {
		t.Errorf("Unexpected output %q", buf.String())
	}

	if err := translateOut(&buf, []string{"gain", "1"}); err == nil {
		t.Error("Expected error for non-MIDI send")
	}
	if err := translateOut(&buf, []string{"__hv_noteout", "x"}); err == nil {
		t.Error("Expected error for bad argument")
	}
}
