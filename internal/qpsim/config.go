package qpsim

// Default run-parameter constants, bit-exact with the reference model.
const (
	DefaultAsicOscillatorHz = 50e6
	DefaultDaqOscillatorHz  = 30e6
	DefaultPTimeoutTicks    = 25_000_000
	DefaultRandomRate       = 20.0 // hits/s, Poisson background
	DefaultAsicTimeoutTicks = 15000
	DefaultDaqTimeoutTicks  = 1000
	DefaultChannelCount     = 16
)

// Config holds the per-Asic routing and enable configuration, set either at
// mesh construction or learned/overwritten via a REGREQ write.
//
// The reference implementation also carries an unused "something" field;
// it is omitted here per design decision — it has no observable behavior.
type Config struct {
	DirMask    Direction // egress direction toward the DAQ node
	Timeout    uint64    // oscillator ticks to remain in TransmitRemote
	PTimeout   uint64    // push-mode local-flush interval, in ticks
	ManRoute   bool      // disable dynamic learning of DirMask from ingress
	EnableSnd  bool
	EnableRcv  bool
	EnableReg  bool
	EnablePush bool
	SendRemote bool // forces drain of the remote FIFO from any state
}

// DefaultConfig returns a Config with the reference defaults: send/receive/
// register enabled, push and forced-remote-drain disabled.
func DefaultConfig(dirMask Direction) Config {
	return Config{
		DirMask:   dirMask,
		Timeout:   DefaultAsicTimeoutTicks,
		PTimeout:  DefaultPTimeoutTicks,
		EnableSnd: true,
		EnableRcv: true,
		EnableReg: true,
	}
}
