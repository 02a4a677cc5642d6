// Package gateway connects to an EnOcean transceiver module.
//
// The transceiver speaks ESP3 over a serial port (TCM 310 and
// compatible modules, 57600 8N1) or over TCP when the port is exposed
// by a ser2net style bridge. Received radio telegrams are delivered on
// a channel; Send transmits a telegram through the module.
//
// The client reconnects automatically with exponential backoff when
// the transport drops, and resynchronises on the next sync byte after
// stream corruption.
package gateway
