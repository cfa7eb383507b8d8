package logging

import "testing"

func TestNew(t *testing.T) {
	cases := []struct {
		level, format string
		wantErr       bool
	}{
		{level: "info", format: "json"},
		{level: "debug", format: "console"},
		{level: "warn", format: ""},
		{level: "loud", format: "json", wantErr: true},
		{level: "info", format: "xml", wantErr: true},
	}

	for _, tc := range cases {
		logger, err := New(tc.level, tc.format)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("New(%q, %q): expected error", tc.level, tc.format)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tc.level, tc.format, err)
		}
		_ = logger.Sync()
	}
}
