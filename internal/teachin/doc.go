// Package teachin implements the device teach-in state machine.
//
// Teach-in is the EnOcean pairing flow: a session is activated with a
// bounded listening window, an unknown transmitter announcing a known
// profile becomes the candidate, and an explicit confirmation registers
// the device. The machine is a strict FSM; only one session is active
// at a time and every terminal state requires a fresh activation.
//
// Deadlines are evaluated lazily against an injectable clock, so the
// machine needs no timers and every transition is unit-testable.
package teachin
