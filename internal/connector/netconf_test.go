package connector

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwarden/netwarden/internal/models"
)

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func TestWriteFrame_AppendsDelimiter(t *testing.T) {
	var buf bytes.Buffer
	c := &netconfConn{stdin: nopWriteCloser{&buf}}

	require.NoError(t, c.writeFrame("<rpc/>"))
	assert.True(t, strings.HasPrefix(buf.String(), "<rpc/>"))
	assert.Contains(t, buf.String(), netconfDelim)
}

func TestReadFrame(t *testing.T) {
	reply := "<rpc-reply><data/></rpc-reply>\n" + netconfDelim + "\n"
	c := &netconfConn{stdout: bufio.NewReader(strings.NewReader(reply)), timeout: time.Second}

	body, err := c.readFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<rpc-reply><data/></rpc-reply>", body)
}

func TestReadFrame_Timeout(t *testing.T) {
	// A reader that never produces the delimiter.
	c := &netconfConn{stdout: bufio.NewReader(strings.NewReader("<partial>")), timeout: 10 * time.Millisecond}

	_, err := c.readFrame(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestReadFrame_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &netconfConn{stdout: bufio.NewReader(strings.NewReader("<partial>")), timeout: time.Second}

	_, err := c.readFrame(ctx)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestDataContent(t *testing.T) {
	reply := `<rpc-reply message-id="2" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><data><system><services><ssh/></services></system></data></rpc-reply>`
	assert.Equal(t, "<system><services><ssh/></services></system>", dataContent(reply))

	// Attributes on <data> do not disturb extraction.
	withAttrs := `<rpc-reply><data xmlns="urn:example:config"><snmp/></data></rpc-reply>`
	assert.Equal(t, "<snmp/>", dataContent(withAttrs))

	// A reply without a <data> element passes through trimmed.
	assert.Equal(t, "<hello/>", dataContent("  <hello/>\n"))
}

func TestDataContent_EmptyReply(t *testing.T) {
	// The "filter matched nothing" replies must yield an empty result, not
	// leak the envelope to the comparison logic.
	selfClosing := `<rpc-reply message-id="2" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><data/></rpc-reply>`
	assert.Empty(t, dataContent(selfClosing))

	openClose := `<rpc-reply message-id="3"><data>
	</data></rpc-reply>`
	assert.Empty(t, dataContent(openClose))
}

func TestRPCErrorDetail(t *testing.T) {
	reply := `<rpc-reply><rpc-error><error-message>  access denied  </error-message></rpc-error></rpc-reply>`
	assert.Equal(t, "access denied", rpcErrorDetail(reply))

	assert.Equal(t, "device returned rpc-error", rpcErrorDetail("<rpc-reply><rpc-error/></rpc-reply>"))
}

func TestNewNetconf_Defaults(t *testing.T) {
	dev := models.Device{Name: "edge-1", Vendor: models.VendorJunOS, Address: "192.0.2.1"}
	c := newNetconf(dev, models.Credential{Username: "audit", Password: "x"}, time.Second)

	assert.Equal(t, "192.0.2.1:830", c.addr)
	assert.Equal(t, "audit", c.sshCfg.User)
}
