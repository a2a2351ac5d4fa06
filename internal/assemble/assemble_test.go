package assemble

import (
	"math"
	"testing"

	"github.com/newsreel/newsreel/internal/imagegen"
	"github.com/newsreel/newsreel/internal/narrate"
)

func seg(t narrate.SegmentType, story int, dur float64) narrate.Segment {
	return narrate.Segment{Text: "x", Type: t, StoryIndex: story, Duration: dur}
}

func fourSegments() []narrate.Segment {
	return []narrate.Segment{
		seg(narrate.SegmentIntro, -1, 3.0),
		seg(narrate.SegmentStory, 0, 5.0),
		seg(narrate.SegmentStory, 1, 5.0),
		seg(narrate.SegmentOutro, -1, 2.0),
	}
}

func TestEditScriptTotalMatchesAudioPlusEnding(t *testing.T) {
	pool := imagegen.NewPool()
	pool.Add(0, "s0_1.png")
	pool.Add(0, "s0_2.png")
	pool.Add(1, "s1_1.png")
	pool.Add(1, "s1_2.png")
	pool.Add(1, "s1_3.png")
	pool.Add(1, "s1_4.png")

	script := BuildEditScript(fourSegments(), pool, "audio.mp3", "ending.png", 2.0)

	if math.Abs(script.Total-17.0) > 1e-6 {
		t.Errorf("total = %v, want 17.0", script.Total)
	}
	if math.Abs(script.EntrySum()-17.0) > 1e-6 {
		t.Errorf("entry sum = %v, want 17.0", script.EntrySum())
	}
	// intro + 2 story0 + 4 story1 + outro + ending
	if len(script.Entries) != 9 {
		t.Fatalf("entries = %d, want 9", len(script.Entries))
	}

	if script.Entries[0].Image != "s0_1.png" || script.Entries[0].Duration != 3.0 {
		t.Errorf("intro entry = %+v", script.Entries[0])
	}
	for _, e := range script.Entries[1:3] {
		if math.Abs(e.Duration-2.5) > 1e-6 {
			t.Errorf("story0 entry duration = %v, want 2.5", e.Duration)
		}
	}
	for _, e := range script.Entries[3:7] {
		if math.Abs(e.Duration-1.25) > 1e-6 {
			t.Errorf("story1 entry duration = %v, want 1.25", e.Duration)
		}
	}
	outro := script.Entries[7]
	if outro.Image != "s1_4.png" || outro.Duration != 2.0 {
		t.Errorf("outro entry = %+v, want last image of last story", outro)
	}
	ending := script.Entries[8]
	if ending.Image != "ending.png" || ending.Duration != 2.0 {
		t.Errorf("ending entry = %+v", ending)
	}
}

func TestEmptyStoryPoolDropsSegment(t *testing.T) {
	pool := imagegen.NewPool()
	pool.Add(0, "s0_1.png")
	pool.Add(0, "s0_2.png")

	script := BuildEditScript(fourSegments(), pool, "audio.mp3", "ending.png", 2.0)

	// story1 contributes neither entries nor time
	if math.Abs(script.Total-12.0) > 1e-6 {
		t.Errorf("total = %v, want 12.0 with story1 dropped", script.Total)
	}
	for _, e := range script.Entries {
		if e.Image == "s1_1.png" {
			t.Error("dropped story still present in entries")
		}
	}
	// outro falls back to the highest story present, which is story0
	outro := script.Entries[len(script.Entries)-2]
	if outro.Image != "s0_2.png" {
		t.Errorf("outro image = %q, want last image of story0", outro.Image)
	}
}

func TestMissingIntroOutroImagesSkipEntriesNotTime(t *testing.T) {
	segments := []narrate.Segment{
		seg(narrate.SegmentIntro, -1, 3.0),
		seg(narrate.SegmentStory, 0, 4.0),
		seg(narrate.SegmentOutro, -1, 2.0),
	}
	script := BuildEditScript(segments, imagegen.NewPool(), "audio.mp3", "", 0)

	if len(script.Entries) != 0 {
		t.Fatalf("entries = %d, want 0 with an empty pool", len(script.Entries))
	}
	// intro and outro keep their time so the trim matches the audio; the
	// story is dropped entirely
	if math.Abs(script.Total-5.0) > 1e-6 {
		t.Errorf("total = %v, want 5.0", script.Total)
	}
}

func TestNoEndingEntryWithoutAsset(t *testing.T) {
	pool := imagegen.NewPool()
	pool.Add(0, "a.png")
	segments := []narrate.Segment{seg(narrate.SegmentStory, 0, 6.0)}

	script := BuildEditScript(segments, pool, "audio.mp3", "", 2.0)
	if len(script.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(script.Entries))
	}
	if math.Abs(script.Total-6.0) > 1e-6 {
		t.Errorf("total = %v, want 6.0", script.Total)
	}
}

func TestDeepDiveSegmentsShareStoryZero(t *testing.T) {
	pool := imagegen.NewPool()
	pool.Add(0, "b1.png")
	pool.Add(0, "b2.png")

	segments := []narrate.Segment{
		seg(narrate.SegmentIntro, -1, 2.0),
		seg(narrate.SegmentStory, 0, 6.0),
		seg(narrate.SegmentStory, 0, 8.0),
		seg(narrate.SegmentStory, 0, 4.0),
		seg(narrate.SegmentOutro, -1, 2.0),
	}
	script := BuildEditScript(segments, pool, "audio.mp3", "", 0)

	// intro + 3 aspect segments at 2 images each + outro
	if len(script.Entries) != 8 {
		t.Fatalf("entries = %d, want 8", len(script.Entries))
	}
	if math.Abs(script.Total-22.0) > 1e-6 {
		t.Errorf("total = %v, want 22.0", script.Total)
	}
	if math.Abs(script.Entries[1].Duration-3.0) > 1e-6 {
		t.Errorf("first aspect per-image duration = %v, want 3.0", script.Entries[1].Duration)
	}
}

func TestEndingDurationPerOrientation(t *testing.T) {
	if EndingDuration(imagegen.Vertical) != 2.0 {
		t.Errorf("vertical ending = %v", EndingDuration(imagegen.Vertical))
	}
	if EndingDuration(imagegen.Horizontal) != 3.0 {
		t.Errorf("horizontal ending = %v", EndingDuration(imagegen.Horizontal))
	}
}
