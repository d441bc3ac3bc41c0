package prediction

import (
	"math"
	"strconv"
	"strings"

	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/translit"
)

// Request carries the raw quote parameters as received from a client.
// ActualPrice is optional; an empty string or "null" means no price was
// observed.
type Request struct {
	From        string
	To          string
	Weight      string
	Volume      string
	ActualPrice string
}

// Parse validates the request. Missing parameters are reported before
// malformed numbers. Origin and Destination of the result hold the region
// part of the place names, not yet normalized.
func (r Request) Parse() (model.ShipmentQuery, error) {
	from := translit.RegionPart(r.From)
	to := translit.RegionPart(r.To)
	weight := strings.TrimSpace(r.Weight)
	volume := strings.TrimSpace(r.Volume)
	switch {
	case from == "":
		return model.ShipmentQuery{}, invalid(ErrMissingParameter, "from")
	case to == "":
		return model.ShipmentQuery{}, invalid(ErrMissingParameter, "to")
	case weight == "":
		return model.ShipmentQuery{}, invalid(ErrMissingParameter, "weight")
	case volume == "":
		return model.ShipmentQuery{}, invalid(ErrMissingParameter, "volume")
	}

	q := model.ShipmentQuery{Origin: from, Destination: to}
	var err error
	if q.Weight, err = parsePositive("weight", weight); err != nil {
		return model.ShipmentQuery{}, err
	}
	if q.Volume, err = parsePositive("volume", volume); err != nil {
		return model.ShipmentQuery{}, err
	}
	price := strings.TrimSpace(r.ActualPrice)
	if price == "" || strings.EqualFold(price, "null") {
		return q, nil
	}
	p, err := parseFinite("actual_price", price)
	if err != nil {
		return model.ShipmentQuery{}, err
	}
	if p < 0 {
		return model.ShipmentQuery{}, invalid(ErrInvalidNumber, "actual_price must not be negative")
	}
	q.ObservedPrice = &p
	return q, nil
}

func parseFinite(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(ErrInvalidNumber, "%s=%q", name, raw)
	}
	return v, nil
}

func parsePositive(name, raw string) (float64, error) {
	v, err := parseFinite(name, raw)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, invalid(ErrInvalidNumber, "%s must be positive", name)
	}
	return v, nil
}
