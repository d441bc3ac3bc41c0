package model

// DriverLocation is the last reported position of a driver. Coordinates are
// nil when the stored value is missing or not numeric.
type DriverLocation struct {
	DriverID  int64
	Latitude  *float64
	Longitude *float64
}

// DriverVehicle describes the vehicle registered by a driver. Capacities are
// nil when the stored value is missing or not numeric.
type DriverVehicle struct {
	DriverID       int64
	Model          string
	WeightCapacity *float64
	VolumeCapacity *float64
}

// DriverProfile holds the contact data of a driver.
type DriverProfile struct {
	DriverID int64
	FullName string
	Phone    string
	Status   string
}

// Driver is a fully populated driver record assembled from location, vehicle
// and profile data.
type Driver struct {
	ID             int64
	FullName       string
	Phone          string
	TransportModel string
	WeightCapacity float64
	VolumeCapacity float64
	Latitude       float64
	Longitude      float64
	Status         string
}

// DriverSummary is a ranked match returned to the client.
type DriverSummary struct {
	FullName       string  `json:"fullname"`
	Phone          string  `json:"phone"`
	TransportModel string  `json:"transport_model"`
	WeightCapacity float64 `json:"transport_weight"`
	VolumeCapacity float64 `json:"transport_volume"`
	DistanceKm     float64 `json:"distance_km"`
}
