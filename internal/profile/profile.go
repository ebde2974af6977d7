// Package profile computes the subtitle tracks a media item needs under
// a language profile.
package profile

import "github.com/sublarr/sublarr/internal/store"

// Track is one required (language, subtitle type) pair.
type Track struct {
	Language     string
	SubtitleType store.SubtitleType
}

// MediaInfo carries the stream facts the policy consults. HasForeignAudio
// is true when embedded stream metadata indicates foreign-language
// content, which makes a forced track worthwhile under the auto setting.
type MediaInfo struct {
	HasForeignAudio bool
}

// RequiredTracks expands a profile into the concrete track set for one
// media item. Disabled languages contribute nothing. The forced
// preference controls whether a separate forced track is emitted:
// "separate" always adds one, "auto" adds one only when the media shows
// foreign-language content, "disabled" never does.
func RequiredTracks(media MediaInfo, p *store.LanguageProfile) []Track {
	var tracks []Track
	seen := make(map[Track]bool)

	add := func(t Track) {
		if !seen[t] {
			seen[t] = true
			tracks = append(tracks, t)
		}
	}

	for _, item := range p.Languages {
		if !item.Enabled {
			continue
		}
		add(Track{Language: item.Language, SubtitleType: store.SubtitleFull})

		switch item.ForcedPreference {
		case store.ForcedSeparate:
			add(Track{Language: item.Language, SubtitleType: store.SubtitleForced})
		case store.ForcedAuto:
			if media.HasForeignAudio {
				add(Track{Language: item.Language, SubtitleType: store.SubtitleForced})
			}
		}
	}
	return tracks
}
