package assemble

import (
	"log"

	"github.com/newsreel/newsreel/internal/imagegen"
	"github.com/newsreel/newsreel/internal/narrate"
)

const (
	endingSecondsVertical   = 2.0
	endingSecondsHorizontal = 3.0
)

// EndingDuration returns how long the ending card holds. The vertical cut
// is paced faster than the horizontal one.
func EndingDuration(o imagegen.Orientation) float64 {
	if o == imagegen.Horizontal {
		return endingSecondsHorizontal
	}
	return endingSecondsVertical
}

// Entry shows one image for a fixed number of seconds.
type Entry struct {
	Image    string
	Duration float64
}

// EditScript is the timed image sequence for one video, paired with its
// audio track. Total is the renderer's hard trim length: the sum of the
// spoken durations of every represented segment plus the ending card.
type EditScript struct {
	Entries []Entry
	Audio   string
	Total   float64
}

// EntrySum adds up the emitted entry durations. It stays below Total when
// an intro or outro had no image to show; the neighboring frame holds over
// that gap.
func (s *EditScript) EntrySum() float64 {
	var sum float64
	for _, e := range s.Entries {
		sum += e.Duration
	}
	return sum
}

// BuildEditScript maps narration segments onto the image pool.
//
// A story segment's spoken time is split evenly across its story's images.
// The intro shows the first image of story 0 and the outro the last image
// of the highest story, each held for the segment's full spoken time; when
// that image is missing the entry is skipped but the time still counts, so
// the cut stays in sync with the audio. A story with no images at all is
// dropped from both the entries and the total, never redistributed. The
// ending card is appended only when an asset is configured.
func BuildEditScript(segments []narrate.Segment, pool *imagegen.Pool, audioPath, endingImage string, endingDuration float64) *EditScript {
	script := &EditScript{Audio: audioPath}

	for _, seg := range segments {
		switch seg.Type {
		case narrate.SegmentIntro:
			script.Total += seg.Duration
			if imgs := pool.Images(0); len(imgs) > 0 {
				script.Entries = append(script.Entries, Entry{Image: imgs[0], Duration: seg.Duration})
			}

		case narrate.SegmentOutro:
			script.Total += seg.Duration
			if last := pool.MaxStory(); last >= 0 {
				imgs := pool.Images(last)
				script.Entries = append(script.Entries, Entry{Image: imgs[len(imgs)-1], Duration: seg.Duration})
			}

		case narrate.SegmentStory:
			imgs := pool.Images(seg.StoryIndex)
			if len(imgs) == 0 {
				log.Printf("Story %d has no images, dropping its segment from the cut", seg.StoryIndex)
				continue
			}
			script.Total += seg.Duration
			per := seg.Duration / float64(len(imgs))
			for _, img := range imgs {
				script.Entries = append(script.Entries, Entry{Image: img, Duration: per})
			}
		}
	}

	if endingImage != "" {
		script.Entries = append(script.Entries, Entry{Image: endingImage, Duration: endingDuration})
		script.Total += endingDuration
	}

	return script
}
