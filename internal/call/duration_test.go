package call

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, "00:00"},
		{900 * time.Millisecond, "00:00"},
		{time.Second, "00:01"},
		{59 * time.Second, "00:59"},
		{60 * time.Second, "01:00"},
		{61*time.Second + 400*time.Millisecond, "01:01"},
		{10*time.Minute + 5*time.Second, "10:05"},
		// Minutes keep counting past an hour; there is no hour field.
		{75*time.Minute + 30*time.Second, "75:30"},
		{100 * time.Minute, "100:00"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.elapsed); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.elapsed, got, tc.want)
		}
	}
}
