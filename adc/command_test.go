package adc

import (
	"reflect"
	"testing"

	"github.com/airdcpp-web/dcppcore/identity"
)

func TestDecodeBroadcastINF(t *testing.T) {
	line := []byte("BINF AAAB NIAlice SS1234")
	cmd, err := Decode(line)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Type != TypeBroadcast || cmd.Cmd.String() != "INF" {
		t.Fatalf("unexpected type/cmd: %v %v", cmd.Type, cmd.Cmd)
	}
	wantSID, _ := identity.ParseSID("AAAB")
	if cmd.From != wantSID {
		t.Fatalf("From = %v, want %v", cmd.From, wantSID)
	}
	np := cmd.NamedParams()
	if np["NI"] != "Alice" || np["SS"] != "1234" {
		t.Fatalf("unexpected named params: %#v", np)
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	msg := "hello world\\and\nnewline"
	cmd := &Command{
		Type:   TypeBroadcast,
		Cmd:    FourCC{'M', 'S', 'G'},
		From:   identity.SID(1),
		Params: []string{msg},
	}
	line := cmd.Encode()
	got, err := Decode(line)
	if err != nil {
		t.Fatalf("decode re-encoded line: %v", err)
	}
	if !reflect.DeepEqual(got.Params, cmd.Params) {
		t.Fatalf("round trip mismatch: got %q want %q", got.Params, cmd.Params)
	}
}

func TestDecodeFeatureFilter(t *testing.T) {
	line := []byte("FSCH AAAB +TCP4-NAT0 ANfoo")
	cmd, err := Decode(line)
	if err != nil {
		t.Fatal(err)
	}
	if len(cmd.FeatureF) != 2 {
		t.Fatalf("expected 2 feature tokens, got %d", len(cmd.FeatureF))
	}
	if !cmd.FeatureF[0].Require || cmd.FeatureF[0].Feature != "TCP4" {
		t.Fatalf("unexpected first token: %#v", cmd.FeatureF[0])
	}
	if cmd.FeatureF[1].Require || cmd.FeatureF[1].Feature != "NAT0" {
		t.Fatalf("unexpected second token: %#v", cmd.FeatureF[1])
	}
}

func TestDirectRouting(t *testing.T) {
	line := []byte("DCTM AAAB AAAC ADC/1.0 412 tok123")
	cmd, err := Decode(line)
	if err != nil {
		t.Fatal(err)
	}
	from, _ := identity.ParseSID("AAAB")
	to, _ := identity.ParseSID("AAAC")
	if cmd.From != from || cmd.To != to {
		t.Fatalf("routing mismatch: from=%v to=%v", cmd.From, cmd.To)
	}
	if len(cmd.Params) != 3 {
		t.Fatalf("expected 3 params, got %d: %v", len(cmd.Params), cmd.Params)
	}
}

func TestStatusCodeFormat(t *testing.T) {
	cmd := NewSTA(CodeCommandAccess, "not allowed")
	st, ok := ParseSTA(cmd)
	if !ok {
		t.Fatal("ParseSTA failed")
	}
	if st.Code != CodeCommandAccess {
		t.Fatalf("code = %d, want %d", st.Code, CodeCommandAccess)
	}
	if SeverityOf(st.Code) != SevRecoverable {
		t.Fatalf("severity = %v, want recoverable", SeverityOf(st.Code))
	}
}

func TestDecodeClientGet(t *testing.T) {
	line := []byte(`CGET file TTH/AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA 0 -1`)
	cmd, err := Decode(line)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Type != TypeClient || cmd.Cmd.String() != "GET" {
		t.Fatalf("unexpected type/cmd: %v %v", cmd.Type, cmd.Cmd)
	}
	if !cmd.From.IsZero() || !cmd.To.IsZero() {
		t.Fatalf("expected no SID on a peer-connection command, got from=%v to=%v", cmd.From, cmd.To)
	}
	if len(cmd.Params) != 4 {
		t.Fatalf("expected 4 params, got %d: %v", len(cmd.Params), cmd.Params)
	}
}

func TestBloomGuardStatus(t *testing.T) {
	// k=9 is out of [1,8], expect 140 with no payload
	cmd := NewSTA(CodeBadPassword, "Unsupported k")
	line := string(cmd.Encode())
	want := `ISTA 140 Unsupported\sk`
	if line != want {
		t.Fatalf("got %q want %q", line, want)
	}
}
