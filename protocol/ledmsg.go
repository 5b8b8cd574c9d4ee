package protocol

import "fmt"

// CommandKind is the wire tag of a Command. Only the values up to
// CmdFlatStack exist on the wire, everything else is rejected by Decode.
type CommandKind uint8

const (
	CmdNull CommandKind = iota
	CmdFlat
	CmdPulseLinear
	CmdPulseQuadratic
	CmdFlatStack
)

func (k CommandKind) valid() bool {
	return k <= CmdFlatStack
}

func (k CommandKind) String() string {
	switch k {
	case CmdNull:
		return "Null"
	case CmdFlat:
		return "Flat"
	case CmdPulseLinear:
		return "PulseLinear"
	case CmdPulseQuadratic:
		return "PulseQuadratic"
	case CmdFlatStack:
		return "FlatStack"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// Command is the effect applied to an element. Value carries the intensity
// (Flat, PulseLinear, PulseQuadratic) or the stack length (FlatStack) and
// is ignored for Null.
type Command struct {
	Kind  CommandKind
	Value uint8
}

func Null() Command                  { return Command{Kind: CmdNull} }
func Flat(intensity uint8) Command   { return Command{Kind: CmdFlat, Value: intensity} }
func PulseLinear(i uint8) Command    { return Command{Kind: CmdPulseLinear, Value: i} }
func PulseQuadratic(i uint8) Command { return Command{Kind: CmdPulseQuadratic, Value: i} }
func FlatStack(length uint8) Command { return Command{Kind: CmdFlatStack, Value: length} }

// HasPayload reports whether the command is followed by an argument byte
// on the wire.
func (c Command) HasPayload() bool {
	return c.Kind != CmdNull
}

func (c Command) String() string {
	if !c.HasPayload() {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", c.Kind, c.Value)
}

// LedMsg is a single element update. Time is a logical microsecond
// timestamp on the receiver's clock.
type LedMsg struct {
	Time    uint64
	Element uint8
	Color   uint8
	Cmd     Command
}

func (m LedMsg) String() string {
	return fmt.Sprintf("LedMsg{t=%d e=%d c=%d %s}", m.Time, m.Element, m.Color, m.Cmd)
}
