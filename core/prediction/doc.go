// Package prediction answers shipment quote requests. It validates the raw
// request, resolves the pickup location, encodes both regions and then runs
// the price model, the load classifier and the driver matcher concurrently.
package prediction
