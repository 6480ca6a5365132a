package qpsim

// Command is the tag carried alongside a REGREQ byte telling the
// receiving Asic how to react once it determines the byte is addressed to
// it (or is a broadcast). It mirrors the Driver::Schedule command tags.
type Command string

const (
	CommandNone            Command = ""
	CommandInterrogate     Command = "Interrogate"
	CommandHardInterrogate Command = "HardInterrogate"
	CommandCalibrate       Command = "Calibrate"
	CommandRegWrite        Command = "RegWrite"
	CommandRegRead         Command = "RegRead"
)
