package connector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/netwarden/netwarden/internal/models"
)

const netconfDelim = "]]>]]>"

const netconfHello = `<?xml version="1.0" encoding="UTF-8"?>
<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
  <capabilities>
    <capability>urn:ietf:params:netconf:base:1.0</capability>
  </capabilities>
</hello>`

// netconfConn speaks NETCONF 1.0 over an SSH subsystem channel: hello
// exchange, end-of-message framing, get-config with a subtree filter and
// edit-config for remediation payloads.
type netconfConn struct {
	device  models.Device
	addr    string
	sshCfg  *ssh.ClientConfig
	timeout time.Duration

	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout *bufio.Reader
	msgID  int
}

func newNetconf(dev models.Device, cred models.Credential, timeout time.Duration) *netconfConn {
	port := dev.Port
	if port == 0 {
		port = 830
	}
	return &netconfConn{
		device: dev,
		addr:   net.JoinHostPort(dev.Address, fmt.Sprint(port)),
		sshCfg: &ssh.ClientConfig{
			User:            cred.Username,
			Auth:            []ssh.AuthMethod{ssh.Password(cred.Password)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // device host keys are not centrally managed
			Timeout:         timeout,
		},
		timeout: timeout,
	}
}

func (c *netconfConn) Open(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.timeout}
	tcp, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return &ConnectError{Op: "dial " + c.addr, Err: err}
	}

	conn, chans, reqs, err := ssh.NewClientConn(tcp, c.addr, c.sshCfg)
	if err != nil {
		tcp.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return &AuthError{Device: c.device.Name, Err: err}
		}
		return &ConnectError{Op: "ssh handshake", Err: err}
	}
	c.client = ssh.NewClient(conn, chans, reqs)

	sess, err := c.client.NewSession()
	if err != nil {
		c.client.Close()
		return &ConnectError{Op: "ssh session", Err: err}
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		c.client.Close()
		return &ConnectError{Op: "stdin pipe", Err: err}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		c.client.Close()
		return &ConnectError{Op: "stdout pipe", Err: err}
	}
	if err := sess.RequestSubsystem("netconf"); err != nil {
		sess.Close()
		c.client.Close()
		return &ConnectError{Op: "netconf subsystem", Err: err}
	}

	c.sess = sess
	c.stdin = stdin
	c.stdout = bufio.NewReader(stdout)

	// Hello exchange: send ours, consume the device's.
	if err := c.writeFrame(netconfHello); err != nil {
		c.Close()
		return err
	}
	if _, err := c.readFrame(ctx); err != nil {
		c.Close()
		return err
	}
	return nil
}

func (c *netconfConn) GetConfig(ctx context.Context, q Query) (*Value, error) {
	if q.Kind != models.QuerySubtree {
		return nil, &QueryError{Detail: fmt.Sprintf("subtree connector cannot execute %q query", q.Kind)}
	}
	if c.sess == nil {
		return nil, &ConnectError{Op: "get-config", Err: fmt.Errorf("session not open")}
	}

	filter := ""
	if strings.TrimSpace(q.Subtree) != "" {
		filter = fmt.Sprintf(`<filter type="subtree">%s</filter>`, q.Subtree)
	}
	c.msgID++
	rpc := fmt.Sprintf(
		`<rpc message-id="%d" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><get-config><source><running/></source>%s</get-config></rpc>`,
		c.msgID, filter)

	reply, err := c.exchange(ctx, rpc)
	if err != nil {
		return nil, err
	}
	if strings.Contains(reply, "<rpc-error>") {
		return nil, &QueryError{Detail: rpcErrorDetail(reply)}
	}
	// Strip the rpc-reply envelope: comparison logic must see configuration,
	// not framing. An empty <data/> means the filter matched nothing.
	return &Value{Raw: dataContent(reply)}, nil
}

func (c *netconfConn) ApplyConfig(ctx context.Context, payload any) (ApplyOutcome, error) {
	coerced, err := coercePayload(payload)
	if err != nil {
		return ApplyOutcome{}, err
	}
	fragment, err := xmlBody(coerced)
	if err != nil {
		return ApplyOutcome{}, err
	}
	if c.sess == nil {
		return ApplyOutcome{}, &ConnectError{Op: "edit-config", Err: fmt.Errorf("session not open")}
	}

	c.msgID++
	rpc := fmt.Sprintf(
		`<rpc message-id="%d" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><edit-config><target><running/></target><config>%s</config></edit-config></rpc>`,
		c.msgID, fragment)

	reply, err := c.exchange(ctx, rpc)
	if err != nil {
		return ApplyOutcome{}, err
	}
	if strings.Contains(reply, "<rpc-error>") {
		return ApplyOutcome{Applied: false, Detail: rpcErrorDetail(reply)}, nil
	}
	return ApplyOutcome{Applied: true, Detail: "ok"}, nil
}

func (c *netconfConn) Close() error {
	var err error
	if c.sess != nil {
		err = c.sess.Close()
		c.sess = nil
	}
	if c.client != nil {
		if cerr := c.client.Close(); err == nil {
			err = cerr
		}
		c.client = nil
	}
	return err
}

func (c *netconfConn) exchange(ctx context.Context, rpc string) (string, error) {
	if err := c.writeFrame(rpc); err != nil {
		return "", err
	}
	return c.readFrame(ctx)
}

func (c *netconfConn) writeFrame(body string) error {
	if _, err := io.WriteString(c.stdin, body+"\n"+netconfDelim+"\n"); err != nil {
		return &ConnectError{Op: "write", Err: err}
	}
	return nil
}

// readFrame reads one end-of-message delimited frame, bounded by the per-call
// timeout. SSH channels expose no deadlines, so the read runs in a goroutine.
func (c *netconfConn) readFrame(ctx context.Context) (string, error) {
	type frame struct {
		body string
		err  error
	}
	ch := make(chan frame, 1)
	go func() {
		delim := []byte(netconfDelim)
		buf := make([]byte, 0, 4096)
		for {
			b, err := c.stdout.ReadByte()
			if err != nil {
				ch <- frame{"", err}
				return
			}
			buf = append(buf, b)
			if bytes.HasSuffix(buf, delim) {
				body := string(buf[:len(buf)-len(delim)])
				ch <- frame{strings.TrimSpace(body), nil}
				return
			}
		}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", &ConnectError{Op: "read", Err: ctx.Err()}
	case <-timer.C:
		return "", &ConnectError{Op: "read", Err: fmt.Errorf("timeout after %s", c.timeout)}
	case f := <-ch:
		if f.err != nil {
			return "", &ConnectError{Op: "read", Err: f.err}
		}
		return f.body, nil
	}
}

var dataElem = regexp.MustCompile(`(?s)<data(?:\s[^>]*)?(?:/>|>(.*)</data>)`)

// dataContent returns the content of a get-config reply's <data> element.
// A self-closing or empty <data/> is the device saying the filter matched
// nothing. Replies without a <data> element pass through trimmed.
func dataContent(reply string) string {
	m := dataElem.FindStringSubmatch(reply)
	if m == nil {
		return strings.TrimSpace(reply)
	}
	return strings.TrimSpace(m[1])
}

func rpcErrorDetail(reply string) string {
	if i := strings.Index(reply, "<error-message>"); i >= 0 {
		rest := reply[i+len("<error-message>"):]
		if j := strings.Index(rest, "</error-message>"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	return "device returned rpc-error"
}
