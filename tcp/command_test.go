package tcp

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		exp  *command
	}{
		{"put truck-1 37.5 126.9", &command{op: put, id: "truck-1", lat: 37.5, lon: 126.9}},
		{"PUT a -10 -20.25", &command{op: put, id: "a", lat: -10, lon: -20.25}},
		{"get a", &command{op: get, id: "a"}},
		{"history a 100 200", &command{op: history, id: "a", start: 100, end: 200}},
		{"  search   0   0   50  ", &command{op: search, lat: 0, lon: 0, radius: 50}},
		{"quit", &command{op: quit}},
	}

	for _, test := range tests {
		got, err := parseCommand(test.line)
		if err != nil {
			t.Errorf("could not parse %q: %v", test.line, err)
			continue
		}

		if *got != *test.exp {
			t.Errorf("failure - %q expected: %+v, but got: %+v", test.line, *test.exp, *got)
		}

		t.Logf("success - parsed: %s", got)
	}
}

func TestParseCommandErrors(t *testing.T) {
	lines := []string{
		"",
		"fly a",
		"put a 1",
		"put a north 1",
		"put a 91 0",
		"put a 0 181",
		"put a NaN 0",
		"put a 0 nan",
		"search NaN 0 10",
		"search 0 0 NaN",
		"get",
		"get a b",
		"history a 1",
		"history a one 2",
		"history a 1 2.5",
		"search 0 0",
		"search 0 0 far",
		"quit now",
	}

	for _, line := range lines {
		_, err := parseCommand(line)
		if err == nil {
			t.Errorf("expected an error parsing %q", line)
		}
	}
}
