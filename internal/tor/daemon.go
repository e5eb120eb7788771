package tor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/veilrpc/veilrpc/internal/model"
)

// cookieFileName is the file Tor writes the control auth cookie to,
// relative to the data directory.
const cookieFileName = "control_auth_cookie"

// Cookie read retry parameters. Tor writes the cookie shortly after
// opening the control listener, so a brief retry loop covers the race
// between our bootstrap observation and the file hitting disk.
const (
	cookieRetryInterval = 200 * time.Millisecond
	cookieRetryAttempts = 25
)

// bootstrapPattern matches Tor's bootstrap progress lines on stdout, e.g.
//
//	Bootstrapped 75% (conn_done): Connected to a relay
//	Bootstrapped 100%: Done
var bootstrapPattern = regexp.MustCompile(`Bootstrapped (\d+)%(?: \([^)]*\))?: (.*)`)

// ProgressFunc receives bootstrap progress updates: the percentage and
// Tor's summary text for that phase.
type ProgressFunc func(percent int, summary string)

// Daemon manages an embedded Tor process.
//
// Lifecycle: NewDaemon → Start (blocks until Connected or a hard error) →
// NewCircuit as needed → Stop. Start, Stop, and NewCircuit are serialized;
// there are never concurrent bootstrap attempts against one Daemon.
type Daemon struct {
	cfg      model.TorConfig
	logger   *slog.Logger
	progress ProgressFunc

	mu         sync.Mutex
	state      model.TransportState
	cmd        *exec.Cmd
	controller *Controller
	socksAddr  string
	ctrlAddr   string
	exitAddr   string
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the logger used for daemon lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) {
		d.logger = logger
	}
}

// WithProgress sets a callback invoked for every bootstrap progress line.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Daemon) {
		d.progress = fn
	}
}

// NewDaemon creates a Daemon for the given configuration.
// Nothing is spawned until Start.
func NewDaemon(cfg model.TorConfig, opts ...Option) *Daemon {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "tor"
	}
	d := &Daemon{
		cfg:    cfg,
		logger: slog.Default(),
		state:  model.StateDisconnected,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the daemon's current transport state.
func (d *Daemon) State() model.TransportState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SocksAddr returns the SOCKS listener address once the daemon is running.
func (d *Daemon) SocksAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.socksAddr
}

// ControlAddr returns the control listener address once running.
func (d *Daemon) ControlAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctrlAddr
}

// ExitAddress returns the last known exit address, or empty when unknown.
// It is cleared by NewCircuit: after a NEWNYM the exit is unknown until
// re-queried by whoever owns that concern.
func (d *Daemon) ExitAddress() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exitAddr
}

// SetExitAddress records an externally-observed exit address.
func (d *Daemon) SetExitAddress(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exitAddr = addr
}

// Start launches the Tor process and blocks until it is Connected or a
// hard error occurs. On any failure the process is killed and no partial
// state remains: a Daemon that returns an error from Start is always back
// in the Disconnected (or Error) state with no live process.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cmd != nil {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.state = model.StateConnecting
	d.mu.Unlock()

	dataDir, err := d.ensureDataDir()
	if err != nil {
		return d.fail(fmt.Errorf("failed to prepare data directory: %w", err))
	}

	socksPort, err := resolvePort(d.cfg.SocksPort)
	if err != nil {
		return d.fail(fmt.Errorf("failed to allocate SOCKS port: %w", err))
	}
	controlPort, err := resolvePort(d.cfg.ControlPort)
	if err != nil {
		return d.fail(fmt.Errorf("failed to allocate control port: %w", err))
	}

	torrcPath := filepath.Join(dataDir, "torrc")
	if err := os.WriteFile(torrcPath, []byte(d.generateTorrc(dataDir, socksPort, controlPort)), 0o600); err != nil {
		return d.fail(fmt.Errorf("failed to write torrc: %w", err))
	}

	cmd := exec.CommandContext(ctx, d.cfg.BinaryPath, "-f", torrcPath) //nolint:gosec // Binary path is operator-configured
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return d.fail(fmt.Errorf("failed to open stdout pipe: %w", err))
	}
	// The torrc directs notices to stdout, so stderr stays untouched.

	if err := cmd.Start(); err != nil {
		return d.fail(fmt.Errorf("failed to spawn tor: %w", err))
	}

	d.mu.Lock()
	d.cmd = cmd
	d.socksAddr = net.JoinHostPort("127.0.0.1", strconv.Itoa(socksPort))
	d.ctrlAddr = net.JoinHostPort("127.0.0.1", strconv.Itoa(controlPort))
	d.state = model.StateBootstrapping
	d.mu.Unlock()

	bootstrapped := make(chan struct{})
	go d.watchBootstrap(stdout, bootstrapped)

	timeout := d.cfg.BootstrapTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	select {
	case <-bootstrapped:
		// Bootstrap reached 100%; Connected still requires the control
		// handshake below.
	case <-ctx.Done():
		d.kill()
		return d.fail(ctx.Err())
	case <-time.After(timeout):
		d.kill()
		return d.fail(fmt.Errorf("%w after %s", ErrBootstrapTimeout, timeout))
	}

	controller, err := d.authenticate(dataDir)
	if err != nil {
		d.kill()
		return d.fail(err)
	}

	d.mu.Lock()
	d.controller = controller
	d.state = model.StateConnected
	d.mu.Unlock()

	d.logger.Debug("tor daemon connected",
		slog.String("socks", d.SocksAddr()),
		slog.String("control", d.ControlAddr()))
	return nil
}

// generateTorrc renders the daemon configuration. Cookie authentication is
// always on, disk writes are minimized, and the daemon stays client-only
// unless a hidden service target is configured.
func (d *Daemon) generateTorrc(dataDir string, socksPort, controlPort int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DataDirectory %s\n", dataDir)
	fmt.Fprintf(&b, "SocksPort 127.0.0.1:%d\n", socksPort)
	fmt.Fprintf(&b, "ControlPort 127.0.0.1:%d\n", controlPort)
	b.WriteString("CookieAuthentication 1\n")
	b.WriteString("AvoidDiskWrites 1\n")
	b.WriteString("Log notice stdout\n")
	if d.cfg.UpstreamSOCKS != "" {
		// Tor-over-VPN: the daemon's own connections ride the VPN bridge.
		fmt.Fprintf(&b, "Socks5Proxy %s\n", d.cfg.UpstreamSOCKS)
	}
	if d.cfg.HiddenServiceTarget == "" {
		b.WriteString("ClientOnly 1\n")
	} else {
		fmt.Fprintf(&b, "HiddenServiceDir %s\n", filepath.Join(dataDir, "hidden_service"))
		fmt.Fprintf(&b, "HiddenServicePort 80 %s\n", d.cfg.HiddenServiceTarget)
	}
	return b.String()
}

// watchBootstrap scans process output for bootstrap lines, reporting
// progress and closing done at 100%.
func (d *Daemon) watchBootstrap(r io.Reader, done chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	completed := false
	for scanner.Scan() {
		line := scanner.Text()
		m := bootstrapPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		percent, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		summary := m[2]
		d.logger.Debug("tor bootstrap", slog.Int("percent", percent), slog.String("summary", summary))
		if d.progress != nil {
			d.progress(percent, summary)
		}
		if percent >= 100 && !completed {
			completed = true
			close(done)
		}
	}
	// Keep draining until the process exits so the pipe never blocks Tor.
}

// authenticate reads the control cookie and completes the AUTHENTICATE
// handshake. The cookie file is retried briefly: Tor may not have written
// it at the instant bootstrap completes.
func (d *Daemon) authenticate(dataDir string) (*Controller, error) {
	cookiePath := filepath.Join(dataDir, cookieFileName)

	var cookie []byte
	var err error
	for attempt := 0; attempt < cookieRetryAttempts; attempt++ {
		cookie, err = os.ReadFile(cookiePath) //nolint:gosec // Path is under our own data dir
		if err == nil && len(cookie) > 0 {
			break
		}
		time.Sleep(cookieRetryInterval)
	}
	if err != nil || len(cookie) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCookieUnavailable, cookiePath)
	}

	controller, err := DialController(d.ControlAddr(), controlTimeout)
	if err != nil {
		return nil, err
	}
	if err := controller.Authenticate(cookie); err != nil {
		_ = controller.Close() //nolint:errcheck // Best effort cleanup
		return nil, err
	}
	return controller, nil
}

// NewCircuit requests a fresh circuit via SIGNAL NEWNYM.
// Valid only when Connected. After the signal the exit address is unknown
// until re-observed, so the cached value is cleared.
func (d *Daemon) NewCircuit() error {
	d.mu.Lock()
	controller := d.controller
	connected := d.state == model.StateConnected
	d.mu.Unlock()

	if !connected || controller == nil {
		return ErrNotRunning
	}
	if err := controller.Signal("NEWNYM"); err != nil {
		return err
	}

	d.mu.Lock()
	d.exitAddr = ""
	d.mu.Unlock()

	d.logger.Debug("tor circuit rotated")
	return nil
}

// Stop shuts the daemon down: best-effort SIGNAL SHUTDOWN over the control
// port, then process termination. Safe to call multiple times.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	controller := d.controller
	cmd := d.cmd
	d.controller = nil
	d.cmd = nil
	d.state = model.StateDisconnected
	d.socksAddr = ""
	d.ctrlAddr = ""
	d.exitAddr = ""
	d.mu.Unlock()

	if controller != nil {
		_ = controller.Signal("SHUTDOWN") //nolint:errcheck // Best effort; process kill follows
		_ = controller.Close()            //nolint:errcheck // Best effort cleanup
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill() //nolint:errcheck // Best effort; may already have exited
		_ = cmd.Wait()         //nolint:errcheck // Reap the process
	}
	return nil
}

// fail records the error state and returns err. Any spawned process has
// already been killed by the caller.
func (d *Daemon) fail(err error) error {
	d.mu.Lock()
	d.state = model.StateError
	d.cmd = nil
	d.mu.Unlock()
	return err
}

// kill terminates the process without touching the state machine.
func (d *Daemon) kill() {
	d.mu.Lock()
	cmd := d.cmd
	d.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill() //nolint:errcheck // Best effort
		_ = cmd.Wait()         //nolint:errcheck // Reap the process
	}
}

// ensureDataDir creates the Tor data directory with owner-only permissions.
// Tor itself refuses group-readable data directories.
func (d *Daemon) ensureDataDir() (string, error) {
	dataDir := d.cfg.DataDir
	if dataDir == "" {
		return "", fmt.Errorf("tor data directory not configured")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", err
	}
	return dataDir, nil
}

// resolvePort returns the configured port, or asks the OS for a free one
// when the configuration leaves it at zero.
func resolvePort(configured int) (int, error) {
	if configured != 0 {
		return configured, nil
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return 0, err
	}
	return port, nil
}
