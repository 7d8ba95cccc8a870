package protocol

// Command letters of the canonical (device) profile.
// Both the firmware and the host build their tables from these, so the
// two ends cannot drift apart.
const (
	CmdHandshake   = 'H' // H1 -> H1
	CmdRPM         = 'R' // 0: report, n: set motor RPM
	CmdMove        = 'M' // 0: report moving, n: move one turn
	CmdPhoto       = 'P' // 0: report shooting, n: take picture
	CmdRotate      = 'T' // 0: report increment, 1: rotate, n: set increment and rotate
	CmdTurns       = 'C' // 0: report, n: set turns per circle
	CmdDirection   = 'K' // 0: report, 1: clockwise, 2: counter-clockwise
	CmdAutoscan    = 'A' // 0: report moves left, 1: run, 2: stop
	CmdWait        = 'W' // 0: report, n: set wait after photo (ms)
	CmdTotalSteps  = 'G' // 0: report, n: set steps per turntable rotation
	CmdPosition    = 'I' // report step position
	CmdMoveToStep  = 'S' // move to absolute step
	CmdMoveToAngle = 'D' // move to degree
	CmdQueue       = 'Q' // 0: report inbound depth, n: flush inbound
)

// Values with fixed meaning
const (
	HandshakeValue = 1

	DirectionReport = 0
	DirectionCW     = 1
	DirectionCCW    = 2

	AutoscanReport = 0
	AutoscanRun    = 1
	AutoscanStop   = 2

	RotateOnce = 1
)

// DeviceCommands lists every letter the device accepts, with its name
var DeviceCommands = []struct {
	Letter byte
	Name   string
}{
	{CmdHandshake, "handshake"},
	{CmdRPM, "rpm"},
	{CmdMove, "move"},
	{CmdPhoto, "photo"},
	{CmdRotate, "rotate"},
	{CmdTurns, "turns_per_circle"},
	{CmdDirection, "direction"},
	{CmdAutoscan, "autoscan"},
	{CmdWait, "wait_after_photo"},
	{CmdTotalSteps, "total_steps"},
	{CmdPosition, "position"},
	{CmdMoveToStep, "move_to_step"},
	{CmdMoveToAngle, "move_to_degree"},
	{CmdQueue, "queue"},
}

// CommandName returns the schema name for letter, or "" if unknown
func CommandName(letter byte) string {
	if letter == CommandError {
		return "error"
	}
	for _, c := range DeviceCommands {
		if c.Letter == letter {
			return c.Name
		}
	}
	return ""
}
