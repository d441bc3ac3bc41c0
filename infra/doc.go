// Package infra contains technical adapters such as the SQL data source,
// the geocoder, the MQTT retrain trigger and metrics exporters. These
// packages should depend only on the interfaces defined in the core packages.
package infra
