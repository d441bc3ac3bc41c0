package matching

import (
	"sort"

	"github.com/kilianp07/freightmatch/core/model"
)

// Join assembles drivers from their location, vehicle and profile records.
// It is an inner join on the driver id: a driver is kept only when all three
// sets know it, and rows with a missing coordinate or capacity are dropped.
// A driver with several locations or vehicles yields one row per
// combination. Rows are ordered by driver id, then by input order.
func Join(locs []model.DriverLocation, vehicles []model.DriverVehicle, profiles []model.DriverProfile) []model.Driver {
	byVehicle := make(map[int64][]model.DriverVehicle, len(vehicles))
	for _, v := range vehicles {
		byVehicle[v.DriverID] = append(byVehicle[v.DriverID], v)
	}
	byProfile := make(map[int64][]model.DriverProfile, len(profiles))
	for _, p := range profiles {
		byProfile[p.DriverID] = append(byProfile[p.DriverID], p)
	}

	var out []model.Driver
	for _, l := range locs {
		if l.Latitude == nil || l.Longitude == nil {
			continue
		}
		for _, v := range byVehicle[l.DriverID] {
			if v.WeightCapacity == nil || v.VolumeCapacity == nil {
				continue
			}
			for _, p := range byProfile[l.DriverID] {
				out = append(out, model.Driver{
					ID:             l.DriverID,
					FullName:       p.FullName,
					Phone:          p.Phone,
					TransportModel: v.Model,
					WeightCapacity: *v.WeightCapacity,
					VolumeCapacity: *v.VolumeCapacity,
					Latitude:       *l.Latitude,
					Longitude:      *l.Longitude,
					Status:         p.Status,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
