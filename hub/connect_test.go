package hub

import (
	"bufio"
	"net"
	"testing"

	"github.com/airdcpp-web/dcppcore/adc"
	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/transport"
)

func TestHandleNATRepliesAndDialsSimultaneously(t *testing.T) {
	c := newTestClient()
	c.ourSID = sid("AAAA")

	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()
	c.ep = transport.NewFromConn(transport.Callbacks{}, local)

	line := make(chan string, 1)
	go func() {
		r := bufio.NewReader(remote)
		text, _ := r.ReadString('\n')
		line <- text
	}()

	var gotFrom identity.SID
	var gotProto, gotToken string
	var gotPort int
	c.lis.OnCTM = func(_ *Client, from identity.SID, proto string, port int, token string) {
		gotFrom, gotProto, gotPort, gotToken = from, proto, port, token
	}

	cmd, err := adc.Decode([]byte("DNAT AAAB AAAA TCP4 51413 tok7"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c.handleNAT(cmd)

	got := <-line
	reply, err := adc.Decode([]byte(got))
	if err != nil {
		t.Fatalf("decode sent line %q: %v", got, err)
	}
	if reply.Cmd.String() != "RNT" {
		t.Fatalf("expected an RNT reply, got %s", reply.Cmd)
	}
	if reply.To != sid("AAAB") {
		t.Fatalf("expected RNT directed back to AAAB, got %v", reply.To)
	}

	if gotFrom != sid("AAAB") || gotProto != "TCP4" || gotPort != 51413 || gotToken != "tok7" {
		t.Fatalf("expected OnCTM(AAAB, TCP4, 51413, tok7), got (%v, %s, %d, %s)",
			gotFrom, gotProto, gotPort, gotToken)
	}
}
