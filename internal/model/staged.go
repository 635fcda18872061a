package model

import "time"

// StagedItem is a classified garment awaiting human review. It lives in
// the staging store under a transient ID until the user confirms it into
// the catalog or discards it. The embedded inventory payload has no
// catalog ID; that is allocated once, at confirmation.
type StagedItem struct {
	TempID    string        `json:"temp_id"`
	Inventory InventoryItem `json:"inventory"`
	Image     StagedImage   `json:"image"`
	CreatedAt time.Time     `json:"created_at"`
	Status    string        `json:"status"`
}

// StagedImage holds the processed transparent-background PNG paired with
// a staged item, both inline (base64) and as a temp file on disk.
type StagedImage struct {
	Data      string `json:"data"`
	Format    string `json:"format"`
	MediaType string `json:"media_type"`
	Path      string `json:"path,omitempty"`
}

// Staged item status. Pending is the only persisted state: confirmation
// and discard both remove the record.
const StagedStatusPending = "pending"

// InventoryUpdate describes a partial edit to an inventory payload.
// Only non-nil fields are applied.
type InventoryUpdate struct {
	Category  *string   `json:"category"`
	Type      *string   `json:"type"`
	Subtype   *string   `json:"subtype"`
	Color     *Color    `json:"color"`
	Fit       *string   `json:"fit"`
	Formality *string   `json:"formality"`
	Season    *[]string `json:"season"`
}

// IsEmpty reports whether the update carries no fields.
func (u InventoryUpdate) IsEmpty() bool {
	return u.Category == nil && u.Type == nil && u.Subtype == nil &&
		u.Color == nil && u.Fit == nil && u.Formality == nil && u.Season == nil
}

// Apply merges the update into an inventory payload, overwriting only
// the supplied fields.
func (u InventoryUpdate) Apply(item *InventoryItem) {
	if u.Category != nil {
		item.Category = *u.Category
	}
	if u.Type != nil {
		item.Type = *u.Type
	}
	if u.Subtype != nil {
		item.Subtype = *u.Subtype
	}
	if u.Color != nil {
		item.Color = *u.Color
	}
	if u.Fit != nil {
		item.Fit = *u.Fit
	}
	if u.Formality != nil {
		item.Formality = *u.Formality
	}
	if u.Season != nil {
		item.Season = *u.Season
	}
}
