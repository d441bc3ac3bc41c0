package model

import "time"

// PriceRecord is one historical shipment price. Origin and Destination are
// raw place names as stored and must be canonicalised before use.
type PriceRecord struct {
	Origin      string
	Destination string
	Price       float64
}

// ShipmentQuery is a validated prediction request.
type ShipmentQuery struct {
	Origin        string
	Destination   string
	Weight        float64
	Volume        float64
	ObservedPrice *float64
}

// HasObservedPrice reports whether the query carries a ground truth price.
func (q ShipmentQuery) HasObservedPrice() bool { return q.ObservedPrice != nil }

// Quote is the combined answer to a shipment query.
type Quote struct {
	Price     int             `json:"price"`
	ClusterID int             `json:"cluster_id"`
	Drivers   []DriverSummary `json:"drivers"`
}

// RetrainCompleted is published after the price model has been rebuilt from
// the full price history.
type RetrainCompleted struct {
	Samples int
	At      time.Time
}
