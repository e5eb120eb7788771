package tor

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// controlTimeout bounds a single command/response exchange. Control-port
// commands are local and cheap; a slow reply means the daemon is wedged.
const controlTimeout = 10 * time.Second

// Controller is a minimal line-oriented client for the Tor control port.
//
// The control protocol is textual: commands are single CRLF-terminated
// lines, replies are one or more lines prefixed with a three-digit status.
// Intermediate lines use "250-" or "250+" separators; the final line uses
// "250 " (or a 5xx status on failure).
//
// Design decision: Every exchange is strictly correlated — send one
// command, read exactly one reply — and serialized by a mutex, because the
// daemon maintains a single control connection and interleaved writes
// would corrupt the stream.
type Controller struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewController wraps an established control-port connection.
// The caller is expected to Authenticate before issuing other commands.
func NewController(conn net.Conn) *Controller {
	return &Controller{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// DialController connects to the control port at addr.
func DialController(addr string, timeout time.Duration) (*Controller, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control port: %w", err)
	}
	return NewController(conn), nil
}

// Reply is a parsed control-port reply.
type Reply struct {
	// Status is the three-digit status code of the final line.
	Status int

	// Lines holds the text of every reply line, status prefixes stripped.
	Lines []string
}

// Text returns the reply body as a single string.
func (r Reply) Text() string {
	return strings.Join(r.Lines, "\n")
}

// SendCommand sends one command line and reads its complete reply.
// A non-250 final status yields ErrControlProtocol carrying the reply text.
func (c *Controller) SendCommand(command string) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(controlTimeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return Reply{}, fmt.Errorf("failed to set control deadline: %w", err)
	}

	if _, err := c.conn.Write([]byte(command + "\r\n")); err != nil {
		return Reply{}, fmt.Errorf("failed to send control command: %w", err)
	}

	reply, err := c.readReply()
	if err != nil {
		return Reply{}, err
	}
	if reply.Status != 250 {
		return reply, fmt.Errorf("%w: %d %s", ErrControlProtocol, reply.Status, reply.Text())
	}
	return reply, nil
}

// readReply reads lines until the final line of one reply.
func (c *Controller) readReply() (Reply, error) {
	var reply Reply
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return reply, fmt.Errorf("failed to read control reply: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		// Every reply line starts with "NNN" followed by '-', '+', or ' '.
		if len(line) < 4 {
			return reply, fmt.Errorf("%w: malformed reply line %q", ErrControlProtocol, line)
		}
		var status int
		if _, err := fmt.Sscanf(line[:3], "%d", &status); err != nil {
			return reply, fmt.Errorf("%w: malformed status in %q", ErrControlProtocol, line)
		}
		sep := line[3]
		reply.Lines = append(reply.Lines, line[4:])

		switch sep {
		case '-':
			continue
		case '+':
			// Data reply: consume lines until the lone "." terminator.
			for {
				data, err := c.reader.ReadString('\n')
				if err != nil {
					return reply, fmt.Errorf("failed to read data reply: %w", err)
				}
				data = strings.TrimRight(data, "\r\n")
				if data == "." {
					break
				}
				reply.Lines = append(reply.Lines, data)
			}
		case ' ':
			reply.Status = status
			return reply, nil
		default:
			return reply, fmt.Errorf("%w: unexpected separator in %q", ErrControlProtocol, line)
		}
	}
}

// Authenticate performs cookie authentication with the given cookie bytes.
// A non-250 reply is a hard failure.
func (c *Controller) Authenticate(cookie []byte) error {
	_, err := c.SendCommand(fmt.Sprintf("AUTHENTICATE %x", cookie))
	if err != nil {
		return fmt.Errorf("control authentication failed: %w", err)
	}
	return nil
}

// Signal sends SIGNAL <name>, e.g. NEWNYM or SHUTDOWN.
func (c *Controller) Signal(name string) error {
	_, err := c.SendCommand("SIGNAL " + name)
	return err
}

// GetInfo sends GETINFO <key> and returns the reply body.
func (c *Controller) GetInfo(key string) (string, error) {
	reply, err := c.SendCommand("GETINFO " + key)
	if err != nil {
		return "", err
	}
	// Strip the "key=" prefix on the first line when present.
	lines := reply.Lines
	if len(lines) > 0 {
		lines[0] = strings.TrimPrefix(lines[0], key+"=")
	}
	// The final "OK" line is protocol framing, not data.
	if n := len(lines); n > 0 && lines[n-1] == "OK" {
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n"), nil
}

// CircuitStatus returns the daemon's current circuit list.
func (c *Controller) CircuitStatus() (string, error) {
	return c.GetInfo("circuit-status")
}

// Close closes the underlying control connection.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
