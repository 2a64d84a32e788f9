package timeline

import (
	"strings"
	"testing"
)

func TestWriteEDL_ShotsLaidEndToEnd(t *testing.T) {
	events := []Event{
		{ClipName: "ferry v1", MediaPath: "/outputs/clips/a.mp4", StartMs: 0, EndMs: 5000},
		{ClipName: "harbour v3", MediaPath: "/outputs/clips/b.mp4", StartMs: 0, EndMs: 2500, Transition: "dissolve"},
		{ClipName: "gull v1", MediaPath: "/outputs/clips/c.mp4", StartMs: 0, EndMs: 2000, Transition: "cut"},
	}

	edl := WriteEDL(events, "Pilot", 24)

	for _, want := range []string{
		"TITLE: Pilot",
		"FCM: NON-DROP FRAME",
		"001  AX       V     C        00:00:00:00 00:00:05:00 00:00:00:00 00:00:05:00",
		"002  AX       V     C        00:00:00:00 00:00:02:12 00:00:05:00 00:00:07:12",
		"003  AX       V     C        00:00:00:00 00:00:02:00 00:00:07:12 00:00:09:12",
		"* FROM CLIP NAME:  harbour v3",
		"* MEDIA PATH:  /outputs/clips/c.mp4",
		"* TRANSITION:  dissolve",
	} {
		if !strings.Contains(edl, want) {
			t.Errorf("EDL missing %q:\n%s", want, edl)
		}
	}
	if strings.Count(edl, "* TRANSITION:") != 1 {
		t.Errorf("cut transitions should not be annotated:\n%s", edl)
	}
}

func TestWriteEDL_FrameRates(t *testing.T) {
	one := []Event{{ClipName: "x", MediaPath: "/x.mp4", EndMs: 1000}}

	if edl := WriteEDL(one, "Drop", 29.97); !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Errorf("29.97 should be drop frame: %q", edl)
	}
	if edl := WriteEDL(one, "Default", 0); !strings.Contains(edl, "00:00:01:00") {
		t.Errorf("zero rate should fall back to the default: %q", edl)
	}
}

func TestMsToTimecode(t *testing.T) {
	tests := []struct {
		name string
		ms   int
		fps  int
		want string
	}{
		{name: "zero", ms: 0, fps: 24, want: "00:00:00:00"},
		{name: "one second", ms: 1000, fps: 24, want: "00:00:01:00"},
		{name: "half second", ms: 500, fps: 24, want: "00:00:00:12"},
		{name: "last frame offset", ms: 4900, fps: 24, want: "00:00:04:22"},
		{name: "one minute", ms: 60000, fps: 30, want: "00:01:00:00"},
		{name: "one hour", ms: 3600000, fps: 8, want: "01:00:00:00"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := msToTimecode(tc.ms, tc.fps); got != tc.want {
				t.Fatalf("msToTimecode(%d, %d) = %q, want %q", tc.ms, tc.fps, got, tc.want)
			}
		})
	}
}
