// Package qpsim implements a discrete-event simulator for a two-dimensional
// mesh of Q-Pix readout ASICs.
//
// Each Asic has a local oscillator, a set of analog channels that produce
// timestamped hits, four neighbor Links (N/E/S/W) carrying a bit-serial
// Endeavor protocol, and a routing finite-state machine that forwards local
// hits and remote forwarded traffic toward a designated DAQ node. An
// EventQueue orders inter-Asic byte deliveries; Asics are clocked forward
// lazily to the time at which a byte arrives at them, driven by a Driver.
//
// The package has no on-disk format, no wire protocol beyond Byte itself,
// no CLI, and no environment variables — those concerns live in the
// surrounding internal/config, internal/metrics, and cmd packages.
package qpsim
