package jsonutil

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"hello"`, "hello"},
		{"integer", `42`, "42"},
		{"float", `3.5`, "3.5"},
		{"boolean", `true`, "true"},
		{"null", `null`, ""},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringValue(json.RawMessage(tt.raw))
			if got != tt.want {
				t.Errorf("FlexibleStringValue(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFlexibleFloatValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"number", `0.7`, 0.7},
		{"integer", `1`, 1},
		{"string number", `"0.45"`, 0.45},
		{"percent string", `"70%"`, 0.7},
		{"padded percent", `" 35 % "`, 0.35},
		{"garbage", `"high"`, 0},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleFloatValue(json.RawMessage(tt.raw))
			if got != tt.want {
				t.Errorf("FlexibleFloatValue(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFlexibleBoolValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"true", `true`, true},
		{"false", `false`, false},
		{"yes string", `"yes"`, true},
		{"true string", `"True"`, true},
		{"no string", `"no"`, false},
		{"one", `1`, true},
		{"zero", `0`, false},
		{"null", `null`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleBoolValue(json.RawMessage(tt.raw))
			if got != tt.want {
				t.Errorf("FlexibleBoolValue(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFlexibleStringSlice(t *testing.T) {
	got := FlexibleStringSlice(json.RawMessage(`["a", 2, "c"]`))
	want := []string{"a", "2", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	got = FlexibleStringSlice(json.RawMessage(`"single"`))
	if !reflect.DeepEqual(got, []string{"single"}) {
		t.Errorf("expected bare string to become a one-element slice, got %v", got)
	}

	if got := FlexibleStringSlice(json.RawMessage(`null`)); got != nil {
		t.Errorf("expected nil for null, got %v", got)
	}
}
