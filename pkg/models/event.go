package models

import "strconv"

// EventRecord is one flattened event. Nil fields are missing in the source
// document and are staged as empty (null) cells.
type EventRecord struct {
	ID         *string
	Name       *string
	URL        *string
	Date       *string
	Time       *string
	Timezone   *string
	Datetime   *string
	Venue      *string
	City       *string
	Country    *string
	PostalCode *string
	Latitude   *float64
	Longitude  *float64
	Address    *string
	PromotorID *string
}

// Key returns the natural key, or "" when the record has none.
func (e EventRecord) Key() string {
	if e.ID == nil {
		return ""
	}
	return *e.ID
}

// Row renders the record as staged-file cells in EventSchema order.
func (e EventRecord) Row() []string {
	return []string{
		str(e.ID),
		str(e.Name),
		str(e.URL),
		str(e.Date),
		str(e.Time),
		str(e.Timezone),
		str(e.Datetime),
		str(e.Venue),
		str(e.City),
		str(e.Country),
		str(e.PostalCode),
		float(e.Latitude),
		float(e.Longitude),
		str(e.Address),
		str(e.PromotorID),
	}
}

func str(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func float(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
