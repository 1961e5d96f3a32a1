package models

// Component is the slice of the builder document model the collaboration
// layer needs: identity plus canvas geometry for positioning overlays.
// The builder owns the full component tree; we never mutate it here.
type Component struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"` // heading, button, form, hero, ...
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
