package conflict

// Merge strategies registered per entity type. All operate on copies
// handed to them by the Resolver and are free of side effects.

// MergeReadingProgress reconciles reading positions: progress percentage
// is the furthest of the two sides, reading time is additive because
// sessions on different devices are assumed disjoint, and page/position
// follow the side that read further.
func MergeReadingProgress(local, remote map[string]any, c *SyncConflict) map[string]any {
	out := local

	lp := numberOf(local, "progressPercentage")
	rp := numberOf(remote, "progressPercentage")
	if rp > lp {
		out["progressPercentage"] = rp
		// Remote read further; its page and position are the truth.
		for _, key := range []string{"currentPage", "page", "position"} {
			if v, ok := remote[key]; ok {
				out[key] = v
			}
		}
	} else {
		out["progressPercentage"] = lp
	}

	out["readingTimeMinutes"] = numberOf(local, "readingTimeMinutes") + numberOf(remote, "readingTimeMinutes")

	adoptLaterUpdatedAt(out, local, remote, c)
	return out
}

// MergeLatestWins replaces the record wholesale with whichever side has
// the later updatedAt, falling back to local when timestamps are absent.
// This is the bookmark strategy and the registry default.
func MergeLatestWins(local, remote map[string]any, c *SyncConflict) map[string]any {
	localTS, lok := ExtractUpdatedAt(local)
	remoteTS, rok := ExtractUpdatedAt(remote)
	switch {
	case lok && rok:
		if remoteTS.After(localTS) {
			return remote
		}
		return local
	case rok:
		return remote
	default:
		return local
	}
}

// MergeLongerContent replaces the note wholesale with whichever side has
// the longer content string; length is a content-richness proxy.
func MergeLongerContent(local, remote map[string]any, c *SyncConflict) map[string]any {
	localContent, _ := local["content"].(string)
	remoteContent, _ := remote["content"].(string)
	if len(remoteContent) > len(localContent) {
		return remote
	}
	return local
}

// MergeCollection keeps the local record as the base, adopts a non-empty
// remote description, and takes the later updatedAt. Everything else is
// user-owned organizational state and stays local.
func MergeCollection(local, remote map[string]any, c *SyncConflict) map[string]any {
	out := local
	if desc, ok := remote["description"].(string); ok && desc != "" {
		out["description"] = desc
	}
	adoptLaterUpdatedAt(out, local, remote, c)
	return out
}

// adoptLaterUpdatedAt writes the later of the two sides' last-modified
// values into out, preserving the raw encoding of the winning side.
func adoptLaterUpdatedAt(out, local, remote map[string]any, c *SyncConflict) {
	if c.RemoteUpdatedAt.After(c.LocalUpdatedAt) {
		copyUpdatedAt(out, remote)
	} else {
		copyUpdatedAt(out, local)
	}
}

func copyUpdatedAt(dst, src map[string]any) {
	for _, key := range updatedAtKeys {
		if v, ok := src[key]; ok {
			dst[key] = v
			return
		}
	}
}

// numberOf reads a numeric field tolerating the int/float encodings that
// appear after JSON round-trips.
func numberOf(m map[string]any, key string) float64 {
	if n, ok := asFloat(m[key]); ok {
		return n
	}
	return 0
}
