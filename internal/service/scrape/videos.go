package scrape

import "github.com/kapu/outreach-pipeline-go/internal/domain"

// VideoMode selects how incoming videos combine with stored ones.
type VideoMode int

const (
	// VideoModeReplace drops stored videos and keeps up to limit incoming ones.
	VideoModeReplace VideoMode = iota
	// VideoModeAppend keeps stored videos and only fills free slots.
	VideoModeAppend
)

func (m VideoMode) String() string {
	if m == VideoModeAppend {
		return "append"
	}
	return "replace"
}

// ThumbnailUpdate refreshes the cover URL of an already stored video.
type ThumbnailUpdate struct {
	VideoID      string
	ThumbnailURL string
}

// VideoMerge is the outcome of combining stored and incoming videos.
type VideoMerge struct {
	Insert     []*domain.Video
	Thumbnails []ThumbnailUpdate
}

// MergeVideos computes the rescrape delta. Incoming videos are deduped on
// (title, uploadedAt) against stored ones and among themselves; only
// max(0, limit-len(existing)) new videos are inserted. Stored videos seen again
// get their thumbnail refreshed when the URL changed, even with no free slot.
// Nothing stored is ever deleted.
func MergeVideos(existing, incoming []*domain.Video, limit int) VideoMerge {
	stored := make(map[string]*domain.Video, len(existing))
	for _, v := range existing {
		stored[v.DedupKey()] = v
	}

	slots := limit - len(existing)
	if slots < 0 {
		slots = 0
	}

	var out VideoMerge
	seen := make(map[string]struct{}, len(incoming))
	for _, v := range incoming {
		key := v.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if old, ok := stored[key]; ok {
			if v.ThumbnailURL != nil && *v.ThumbnailURL != "" &&
				(old.ThumbnailURL == nil || *old.ThumbnailURL != *v.ThumbnailURL) {
				out.Thumbnails = append(out.Thumbnails, ThumbnailUpdate{VideoID: old.ID, ThumbnailURL: *v.ThumbnailURL})
			}
			continue
		}
		if len(out.Insert) < slots {
			out.Insert = append(out.Insert, v)
		}
	}
	return out
}

// CapVideos keeps at most limit videos, deduped, for a fresh scrape.
func CapVideos(videos []*domain.Video, limit int) []*domain.Video {
	return MergeVideos(nil, videos, limit).Insert
}
