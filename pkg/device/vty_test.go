package device

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"line1\r\nline2\r\n", "line1\nline2\n"},
		{"\x1b[2Kprompt#", "prompt#"},
		{"a\rb", "ab"},
		{"\x1b[?25lR1>\x1b[0m", "R1>"},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitResponse(t *testing.T) {
	tests := []struct {
		name       string
		raw, cmd   string
		wantBody   string
		wantPrompt string
	}{
		{
			name:       "echo and output",
			raw:        "show clock\r\n*10:00:00.000 UTC Mon Jan 1 2024\r\nR1#",
			cmd:        "show clock",
			wantBody:   "*10:00:00.000 UTC Mon Jan 1 2024",
			wantPrompt: "R1#",
		},
		{
			name:       "no output",
			raw:        "terminal length 0\r\nR1>",
			cmd:        "terminal length 0",
			wantBody:   "",
			wantPrompt: "R1>",
		},
		{
			name:       "stale prompt before echo",
			raw:        "\r\nR1>show version\r\nVersion 15\r\nR1>",
			cmd:        "show version",
			wantBody:   "Version 15",
			wantPrompt: "R1>",
		},
		{
			name:       "indented config line",
			raw:        " description uplink\r\nR1(config-if)#",
			cmd:        " description uplink",
			wantBody:   "",
			wantPrompt: "R1(config-if)#",
		},
		{
			name:       "prompt only",
			raw:        "R1# ",
			cmd:        "",
			wantBody:   "",
			wantPrompt: "R1#",
		},
		{
			name:       "banner before login prompt",
			raw:        "\r\nAuthorized users only\r\n\r\nR1>",
			cmd:        "",
			wantBody:   "Authorized users only",
			wantPrompt: "R1>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, prompt := splitResponse(tt.raw, tt.cmd)
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if prompt != tt.wantPrompt {
				t.Errorf("prompt = %q, want %q", prompt, tt.wantPrompt)
			}
		})
	}
}

func TestAfterEcho(t *testing.T) {
	if _, ok := afterEcho("\nR1>", "show version"); ok {
		t.Error("afterEcho matched without the echo")
	}
	tail, ok := afterEcho("\nR1>show version\nout\nR1>", "show version")
	if !ok || tail != "\nout\nR1>" {
		t.Errorf("afterEcho() = %q, %v", tail, ok)
	}
	if tail, ok := afterEcho("R1>", ""); !ok || tail != "R1>" {
		t.Errorf("afterEcho(empty cmd) = %q, %v", tail, ok)
	}
}
