package adc

import "fmt"

// Severity is the ADC STA severity class: the hundreds digit of the
// 3-digit status code.
type Severity int

const (
	SevSuccess     Severity = 0
	SevRecoverable Severity = 1
	SevFatal       Severity = 2
)

// Each status code is a full 3-digit code whose hundreds
// digit is already the severity (e.g. 140 = severity 1, sub-code 40).
const (
	CodeSuccess             = 0
	CodeProtocolUnsupported = 124
	CodeBadState            = 127
	CodeBadPassword         = 140
	CodeCommandAccess       = 141
	CodeHBRITimeout         = 142
	CodeTLSRequired         = 150
	CodeFeatureMissing      = 151
	CodeProtocolGeneric     = 152
)

// SeverityOf extracts the severity digit from a full status code.
func SeverityOf(code int) Severity { return Severity(code / 100) }

// Status is a decoded/constructed STA command payload.
type Status struct {
	Code    int
	Message string
}

// NewSTA builds an Info-type STA Command carrying the given code/message.
func NewSTA(code int, msg string) *Command {
	return &Command{
		Type: TypeInfo,
		Cmd:  FourCC{'S', 'T', 'A'},
		Params: []string{
			fmt.Sprintf("%03d", code),
			msg,
		},
	}
}

// ParseSTA extracts the Status from a decoded STA Command.
func ParseSTA(c *Command) (Status, bool) {
	if c.Cmd.String() != "STA" || len(c.Params) == 0 {
		return Status{}, false
	}
	var code int
	fmt.Sscanf(c.Params[0], "%d", &code)
	msg := ""
	if len(c.Params) > 1 {
		msg = c.Params[1]
	}
	return Status{Code: code, Message: msg}, true
}
