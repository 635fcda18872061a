package model

import "time"

// InventoryItem is a confirmed garment in the permanent catalog.
type InventoryItem struct {
	ID              string    `json:"id"`
	ImagePath       string    `json:"image_path"`
	ImageURL        string    `json:"image_url,omitempty"`
	Category        string    `json:"category"`
	Type            string    `json:"type"`
	Subtype         string    `json:"subtype"`
	Color           Color     `json:"color"`
	Fit             string    `json:"fit"`
	Formality       string    `json:"formality"`
	Season          []string  `json:"season"`
	TypeConfidence  *float64  `json:"type_confidence,omitempty"`
	ColorConfidence *float64  `json:"color_confidence,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Color is the representative garment color: a human-readable name, the
// averaged RGB triple and a coarse group bucket.
type Color struct {
	Name  string `json:"name"`
	RGB   RGB    `json:"rgb"`
	Group string `json:"group"`
}

// RGB is a color triple with each channel in [0, 255].
type RGB [3]int

// Garment categories.
const (
	CategoryTopwear     = "topwear"
	CategoryBottomwear  = "bottomwear"
	CategoryFootwear    = "footwear"
	CategoryAccessories = "accessories"
	CategoryUnknown     = "unknown"
)

// ValueUnknown is the default for free-form descriptive fields
// (subtype, fit, formality) until the user fills them in.
const ValueUnknown = "unknown"
