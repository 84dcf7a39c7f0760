// Package servicedef defines the JSON messages exchanged with the Express test service.
//
// The test service is a small Node program that owns one Express instance per created app. The
// harness describes each app declaratively as a list of routes, and every handler as one
// response action, so that no JavaScript has to travel over the wire.
package servicedef
