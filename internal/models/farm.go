package models

// Farm is a farm location as served to the frontend dropdown.
// ID keeps the JSON type it had in the source file (json.Number or string).
type Farm struct {
	ID   any     `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}
