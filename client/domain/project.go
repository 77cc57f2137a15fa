package domain

import "time"

type ProjectStatus string

const (
	StatusPending          ProjectStatus = "PENDING"
	StatusApproved         ProjectStatus = "APPROVED"
	StatusChangesRequested ProjectStatus = "CHANGES_REQUESTED"
	StatusExpired          ProjectStatus = "EXPIRED"
)

type DecisionType string

const (
	DecisionApproved         DecisionType = "APPROVED"
	DecisionChangesRequested DecisionType = "CHANGES_REQUESTED"
)

// FileAsset is the server-materialized deliverable. URL is a short-lived
// signed link and must be re-derived per read, never cached long term.
type FileAsset struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	URL        string    `json:"url"`
	StorageKey string    `json:"storageKey"`
	ProjectID  string    `json:"projectId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Project is the aggregate root shared by owner and reviewer. AdminToken and
// PublicToken are two capability tokens for the same record; the public view
// carries an empty AdminToken.
type Project struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	AdminToken    string        `json:"adminToken,omitempty"`
	PublicToken   string        `json:"publicToken"`
	Status        ProjectStatus `json:"status"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	File          *FileAsset    `json:"file,omitempty"`
	LatestComment *string       `json:"latestComment,omitempty"`
}

// UploadDraft is a locally selected file that has not been confirmed uploaded.
type UploadDraft struct {
	Name     string
	MimeType string
	Content  []byte
}

// EffectiveStatus derives the EXPIRED state from ExpiresAt passing. The
// transition is computed, not persisted; an approved project never expires.
func (p Project) EffectiveStatus(now time.Time) ProjectStatus {
	if p.Status == StatusApproved {
		return p.Status
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return StatusExpired
	}
	return p.Status
}

type Countdown struct {
	Days    int
	Hours   int
	Minutes int
	Seconds int
	Expired bool
}

// Remaining breaks down the time left until expiresAt. A nil expiry counts
// as already expired, matching the dashboard's countdown widget.
func Remaining(expiresAt *time.Time, now time.Time) Countdown {
	if expiresAt == nil {
		return Countdown{Expired: true}
	}
	diff := expiresAt.Sub(now)
	if diff <= 0 {
		return Countdown{Expired: true}
	}
	total := int(diff.Seconds())
	return Countdown{
		Days:    total / 86400,
		Hours:   (total % 86400) / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
	}
}
