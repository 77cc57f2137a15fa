package domain

import "time"

// Op is a cache mutation expressed as data so ordering and idempotence can be
// tested without any transport wired in. The cache reduces ops onto entries.
type Op interface {
	op()
}

// MergeFields overlays only the fields present in a realtime payload,
// preserving everything else already cached.
type MergeFields struct {
	Status        *ProjectStatus
	ExpiresAt     *time.Time
	LatestComment *string
}

// Replace swaps in a full authoritative view, e.g. a fetch result or a
// mutation response body.
type Replace struct {
	Project Project
}

// Invalidate marks the cached view stale without touching its fields. Used
// when an event cannot be merged locally (signed URLs are not in payloads).
type Invalidate struct{}

func (MergeFields) op() {}
func (Replace) op()     {}
func (Invalidate) op()  {}

// Merge applies a MergeFields op onto a project. Applying the same op twice
// yields the same result, which is what lets replayed events be tolerated.
func (m MergeFields) Merge(p Project) Project {
	if m.Status != nil {
		p.Status = *m.Status
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		p.ExpiresAt = &t
	}
	if m.LatestComment != nil {
		c := *m.LatestComment
		p.LatestComment = &c
	}
	return p
}

// SameView reports whether two projects are equal on the fields a silent
// refetch is allowed to suppress on: status, expiry and latest comment.
func SameView(a, b Project) bool {
	if a.Status != b.Status {
		return false
	}
	if !equalTime(a.ExpiresAt, b.ExpiresAt) {
		return false
	}
	return equalString(a.LatestComment, b.LatestComment)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
