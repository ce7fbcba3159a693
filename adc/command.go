// Package adc implements the ADC frame codec: ASCII
// LF-terminated lines, a type byte, a four-letter FourCC, SID-based
// routing, and the backslash escape grammar.
//
// The scanner is hand-written, matching a hand-written
// pkg/search/lexer.go rather than pulling in a parser-combinator library:
// ADC's escape grammar is four substitution rules, not a grammar that
// benefits from a generic parsing dependency.
package adc

import (
	"bytes"
	"errors"
	"strings"

	"github.com/airdcpp-web/dcppcore/identity"
)

// Type is the first byte of an ADC frame.
type Type byte

const (
	TypeBroadcast Type = 'B'
	TypeDirect    Type = 'D'
	TypeEcho      Type = 'E'
	TypeFeature   Type = 'F'
	TypeInfo      Type = 'I'
	TypeHub       Type = 'H'
	TypeUDP       Type = 'U'
	// TypeClient frames a peer-to-peer (client-client) connection
	// command: GET/SND/GFI and friends, carrying no SID since the
	// connection itself identifies the two parties.
	TypeClient Type = 'C'
)

func (t Type) Valid() bool {
	switch t {
	case TypeBroadcast, TypeDirect, TypeEcho, TypeFeature, TypeInfo, TypeHub, TypeUDP, TypeClient:
		return true
	}
	return false
}

// FourCC is the three-letter command name (SUP, SID, INF, MSG, ...) that
// follows the type byte; together they form the frame's four characters.
type FourCC [3]byte

func (f FourCC) String() string { return string(f[:]) }

// FeatureToken is one "+XYZ"/"-XYZ" entry of a FEATURE-type destination.
type FeatureToken struct {
	Require bool // true for "+", false for "-" (exclude)
	Feature string
}

// Command is a decoded ADC frame.
type Command struct {
	Type     Type
	Cmd      FourCC
	From     identity.SID // source SID (valid for B/D/E/F)
	To       identity.SID // destination SID (valid for D/E)
	FeatureF []FeatureToken
	Params   []string // ordered, unescaped
}

var (
	errTooShort   = errors.New("adc: frame too short")
	errBadType    = errors.New("adc: invalid type byte")
	errBadFourCC  = errors.New("adc: invalid FourCC")
	errBadSID     = errors.New("adc: invalid SID token")
	errBadFeature = errors.New("adc: invalid feature token")
)

// Decode parses one ADC line (without the trailing LF) into a Command.
func Decode(line []byte) (*Command, error) {
	if len(line) < 5 {
		return nil, errTooShort
	}
	typ := Type(line[0])
	if !typ.Valid() {
		return nil, errBadType
	}
	if len(line) < 5 || line[1] < 'A' || line[1] > 'Z' {
		return nil, errBadFourCC
	}
	if line[4] != ' ' {
		return nil, errBadFourCC
	}
	var fourcc FourCC
	copy(fourcc[:], line[1:4])

	rest := line[5:]
	fields := splitUnescapedSpaces(rest)

	cmd := &Command{Type: typ, Cmd: fourcc}

	idx := 0
	switch typ {
	case TypeBroadcast:
		if idx >= len(fields) {
			return nil, errBadSID
		}
		sid, err := identity.ParseSID(string(fields[idx]))
		if err != nil {
			return nil, errBadSID
		}
		cmd.From = sid
		idx++
	case TypeDirect, TypeEcho:
		if idx+1 >= len(fields) {
			return nil, errBadSID
		}
		from, err := identity.ParseSID(string(fields[idx]))
		if err != nil {
			return nil, errBadSID
		}
		to, err := identity.ParseSID(string(fields[idx+1]))
		if err != nil {
			return nil, errBadSID
		}
		cmd.From, cmd.To = from, to
		idx += 2
	case TypeFeature:
		if idx+1 >= len(fields) {
			return nil, errBadSID
		}
		from, err := identity.ParseSID(string(fields[idx]))
		if err != nil {
			return nil, errBadSID
		}
		cmd.From = from
		idx++
		toks, err := parseFeatureTokens(string(fields[idx]))
		if err != nil {
			return nil, err
		}
		cmd.FeatureF = toks
		idx++
	case TypeInfo, TypeHub, TypeUDP, TypeClient:
		// no SID field
	}

	for ; idx < len(fields); idx++ {
		cmd.Params = append(cmd.Params, unescape(string(fields[idx])))
	}
	return cmd, nil
}

func parseFeatureTokens(s string) ([]FeatureToken, error) {
	var toks []FeatureToken
	for len(s) > 0 {
		if len(s) < 5 || (s[0] != '+' && s[0] != '-') {
			return nil, errBadFeature
		}
		toks = append(toks, FeatureToken{Require: s[0] == '+', Feature: s[1:5]})
		s = s[5:]
	}
	return toks, nil
}

// splitUnescapedSpaces splits on spaces that are not themselves escaped
// (i.e. not part of a "\s" sequence produced by a preceding backslash);
// ADC spaces separate parameters, "\s" is an escaped literal space within
// one parameter.
func splitUnescapedSpaces(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i := 0; i < len(b); i++ {
		if b[i] == '\\' {
			i++ // skip escaped char, including a literal space after backslash
			continue
		}
		if b[i] == ' ' {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	if start <= len(b) {
		out = append(out, b[start:])
	}
	return out
}

// unescape reverses the three ADC escapes: \s -> space, \n -> newline,
// \\ -> backslash.
func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 's':
				buf.WriteByte(' ')
			case 'n':
				buf.WriteByte('\n')
			case '\\':
				buf.WriteByte('\\')
			default:
				buf.WriteByte('\\')
				buf.WriteByte(s[i])
			}
			continue
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}

// escape applies the ADC escape grammar to one parameter.
func escape(s string) string {
	if !strings.ContainsAny(s, " \n\\") {
		return s
	}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ':
			buf.WriteString(`\s`)
		case '\n':
			buf.WriteString(`\n`)
		case '\\':
			buf.WriteString(`\\`)
		default:
			buf.WriteByte(s[i])
		}
	}
	return buf.String()
}

// Encode renders the Command back to wire form, without a trailing LF.
func (c *Command) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(c.Type))
	buf.Write(c.Cmd[:])
	switch c.Type {
	case TypeBroadcast:
		buf.WriteByte(' ')
		buf.WriteString(c.From.String())
	case TypeDirect, TypeEcho:
		buf.WriteByte(' ')
		buf.WriteString(c.From.String())
		buf.WriteByte(' ')
		buf.WriteString(c.To.String())
	case TypeFeature:
		buf.WriteByte(' ')
		buf.WriteString(c.From.String())
		buf.WriteByte(' ')
		for _, tok := range c.FeatureF {
			if tok.Require {
				buf.WriteByte('+')
			} else {
				buf.WriteByte('-')
			}
			buf.WriteString(tok.Feature)
		}
	}
	for _, p := range c.Params {
		buf.WriteByte(' ')
		buf.WriteString(escape(p))
	}
	return buf.Bytes()
}

// NamedParam looks up a two-letter-keyed parameter like "NIfoo" among
// c.Params and returns its value with the key stripped.
func (c *Command) NamedParam(key string) (string, bool) {
	for _, p := range c.Params {
		if len(p) >= 2 && p[:2] == key {
			return p[2:], true
		}
	}
	return "", false
}

// NamedParams collects every matching short key into a map, last write
// wins (matches how repeated INF attributes are interpreted).
func (c *Command) NamedParams() map[string]string {
	out := make(map[string]string)
	for _, p := range c.Params {
		if len(p) >= 2 {
			out[p[:2]] = p[2:]
		}
	}
	return out
}
