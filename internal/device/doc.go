// Package device implements the device registry and state cache.
//
// A Device maps a 32-bit EnOcean radio address to an assigned EEP
// profile and holds the last decoded value of every profile field. The
// Registry keeps all devices in an in-memory cache for the telegram
// hot path and persists through a Repository; state writes happen
// synchronously after each decode but never block the pipeline on
// failure (the device is marked dirty and retried).
//
// Device names double as MQTT topic segments, so they are restricted
// to lowercase letters, digits, hyphens and underscores.
package device
