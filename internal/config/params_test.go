package config

import (
	"reflect"
	"testing"
)

func TestParamTypeCoerce(t *testing.T) {
	cases := []struct {
		typ     string
		in      any
		want    any
		wantErr bool
	}{
		{typ: "string", in: "x", want: "x"},
		{typ: "string", in: 7, wantErr: true},
		{typ: "bool", in: "yes", want: true},
		{typ: "bool", in: false, want: false},
		{typ: "bool", in: "maybe", wantErr: true},
		{typ: "int", in: "42", want: 42},
		{typ: "int", in: float64(3), want: 3},
		{typ: "int", in: 3.5, wantErr: true},
		{typ: "array", in: []any{"a", "b"}, want: []string{"a", "b"}},
		{typ: "array", in: "a", want: []string{"a"}},
		{typ: "array", in: []any{"a", 1}, wantErr: true},
		{typ: "enum[latest,present]", in: "latest", want: "latest"},
		{typ: "enum[latest,present]", in: "absent", wantErr: true},
	}
	for _, tc := range cases {
		typ, err := ParseParamType(tc.typ)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.typ, err)
		}
		got, err := typ.Coerce(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s coerce %v: expected error, got %v", tc.typ, tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s coerce %v: %v", tc.typ, tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s coerce %v: got %#v want %#v", tc.typ, tc.in, got, tc.want)
		}
	}
}

func TestParseParamTypeRejectsUnknown(t *testing.T) {
	for _, typ := range []string{"hash", "enum[]", "enum[ , ]"} {
		if _, err := ParseParamType(typ); err == nil {
			t.Fatalf("expected %q to be rejected", typ)
		}
	}
}

func TestFormatValue(t *testing.T) {
	if got := FormatValue([]string{"kernel", "glibc"}); got != "kernel,glibc" {
		t.Fatalf("unexpected array format %q", got)
	}
	if got := FormatValue(true); got != "true" {
		t.Fatalf("unexpected bool format %q", got)
	}
	if got := FormatValue(nil); got != "" {
		t.Fatalf("unexpected nil format %q", got)
	}
}
