package ffmpeg

import "testing"

func TestParseDurationBanner(t *testing.T) {
	out := `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'lecture.mp4':
  Duration: 00:41:35.56, start: 0.000000, bitrate: 1205 kb/s
    Stream #0:0(und): Video: h264`
	d, ok := parseDurationBanner(out)
	if !ok {
		t.Fatal("banner should parse")
	}
	want := 41*60 + 35.56
	if d != want {
		t.Fatalf("duration = %v, want %v", d, want)
	}
}

func TestParseDurationBannerMissing(t *testing.T) {
	for _, out := range []string{
		"",
		"no timing information here",
		"Duration: garbage, bitrate",
		"Duration: 12:34, start",
	} {
		if _, ok := parseDurationBanner(out); ok {
			t.Fatalf("%q should not parse", out)
		}
	}
}

func TestParseSceneOutput(t *testing.T) {
	out := `[Parsed_metadata_1 @ 0x5642] frame:12  pts:3003  pts_time:12.512
[Parsed_metadata_1 @ 0x5642] lavfi.scene_score=0.481203
[Parsed_metadata_1 @ 0x5642] frame:40  pts:10010 pts_time:41.708
[Parsed_metadata_1 @ 0x5642] lavfi.scene_score=0.912000
frame=  100 fps=0.0 q=-0.0 size=N/A`
	cands := parseSceneOutput(out)
	if len(cands) != 2 {
		t.Fatalf("got %d candidates: %+v", len(cands), cands)
	}
	if cands[0].Time != 12.512 || cands[0].Score != 0.481203 {
		t.Fatalf("first candidate: %+v", cands[0])
	}
	if cands[1].Time != 41.708 || cands[1].Score != 0.912 {
		t.Fatalf("second candidate: %+v", cands[1])
	}
}

func TestParseSceneOutputOrphanScore(t *testing.T) {
	// A score with no preceding pts_time is dropped, and a pts_time is
	// consumed by at most one score.
	out := `lavfi.scene_score=0.5
pts_time:3.0
lavfi.scene_score=0.6
lavfi.scene_score=0.7`
	cands := parseSceneOutput(out)
	if len(cands) != 1 {
		t.Fatalf("got %d candidates: %+v", len(cands), cands)
	}
	if cands[0].Time != 3.0 || cands[0].Score != 0.6 {
		t.Fatalf("candidate: %+v", cands[0])
	}
}

func TestParseSceneOutputEmpty(t *testing.T) {
	if cands := parseSceneOutput(""); len(cands) != 0 {
		t.Fatalf("expected none, got %+v", cands)
	}
}
