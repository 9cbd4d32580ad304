package scimproto

import (
	"testing"
)

func TestFilterParser(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr bool
	}{
		{"simple eq", `userName eq "john"`, false},
		{"simple ne", `userName ne "john"`, false},
		{"contains", `userName co "john"`, false},
		{"starts with", `userName sw "j"`, false},
		{"ends with", `userName ew "n"`, false},
		{"present", `emails pr`, false},
		{"greater than", `age gt 18`, false},
		{"greater or equal", `age ge 18`, false},
		{"less than", `age lt 65`, false},
		{"less or equal", `age le 65`, false},
		{"and operator", `userName eq "john" and active eq true`, false},
		{"or operator", `userName eq "john" or userName eq "jane"`, false},
		{"not operator", `not (active eq false)`, false},
		{"grouped", `(userName eq "john") and (active eq true)`, false},
		{"complex", `userName sw "j" and (active eq true or emails pr)`, false},
		{"complex path", `emails[type eq "work"].value co "example"`, false},
		{"invalid", `userName`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewFilterParser(tt.filter)
			_, err := parser.Parse()
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFilterMatching(t *testing.T) {
	user := &Resource{
		ID:      "1",
		Schemas: []string{SchemaUser},
		Attributes: map[string]any{
			"userName":    "john.doe",
			"displayName": "John Doe",
			"active":      true,
			"emails": []any{
				map[string]any{"value": "john@example.com", "type": "work", "primary": true},
				map[string]any{"value": "john@personal.com", "type": "home"},
			},
		},
	}

	tests := []struct {
		name    string
		filter  string
		want    bool
		wantErr bool
	}{
		{"eq match", `userName eq "john.doe"`, true, false},
		{"eq no match", `userName eq "jane"`, false, false},
		{"ne match", `userName ne "jane"`, true, false},
		{"co match", `userName co "john"`, true, false},
		{"co no match", `userName co "jane"`, false, false},
		{"sw match", `userName sw "john"`, true, false},
		{"ew match", `userName ew "doe"`, true, false},
		{"pr match", `emails pr`, true, false},
		{"pr no match", `phoneNumbers pr`, false, false},
		{"boolean eq", `active eq true`, true, false},
		{"and true", `userName eq "john.doe" and active eq true`, true, false},
		{"and false", `userName eq "john.doe" and active eq false`, false, false},
		{"or true", `userName eq "jane" or active eq true`, true, false},
		{"or false", `userName eq "jane" or active eq false`, false, false},
		{"not true", `not (active eq false)`, true, false},
		{"complex true", `userName sw "john" and (active eq true or emails pr)`, true, false},
		{"nested email", `emails[primary eq true].value co "example"`, true, false},
		{"primary eq true match", `emails[primary eq true].value pr`, true, false},
		{"primary eq false no match (absent primary)", `emails[primary eq false].value pr`, false, false},
		{"primary ne false match", `emails[primary ne false].value pr`, true, false},
		{"type eq work and primary eq true", `emails[type eq "work" and primary eq true].value pr`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewFilterParser(tt.filter)
			filter, err := parser.Parse()
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}

			got := filter.Matches(user)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterWithComplexPaths(t *testing.T) {
	user := &Resource{
		ID:      "1",
		Schemas: []string{SchemaUser},
		Attributes: map[string]any{
			"userName": "john.doe",
			"emails": []any{
				map[string]any{"value": "john@work.com", "type": "work", "primary": true},
				map[string]any{"value": "john@home.com", "type": "home"},
			},
		},
	}

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"filter array element", `emails[type eq "work"].value co "work"`, true},
		{"filter array no match", `emails[type eq "mobile"].value pr`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewFilterParser(tt.filter)
			filter, err := parser.Parse()
			if err != nil {
				t.Errorf("Parse() error = %v", err)
				return
			}

			got := filter.Matches(user)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareEqual_Basic(t *testing.T) {
	tests := []struct {
		name string
		a    any
		b    any
		want bool
	}{
		{"bool(true) == bool(true)", true, true, true},
		{"bool(false) == bool(false)", false, false, true},
		{"bool(true) != bool(false)", true, false, false},
		{"bool(true) == string \"true\"", true, "true", true},
		{"string eq", "john", "john", true},
		{"string ne", "john", "jane", false},
		{"int64 eq int64", int64(5), int64(5), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareEqual(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("compareEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
