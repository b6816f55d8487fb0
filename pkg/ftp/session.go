package ftp

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds connecting and every response read
const DefaultTimeout = 5 * time.Second

// State is the lifecycle state of a Session
type State int

const (
	Disconnected State = iota
	Connected
	Authenticated
	Ready
	Closed
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	case Error:
		return "error"
	}
	return "unknown"
}

var passiveReply = regexp.MustCompile(`(\d+),\s*(\d+),\s*(\d+),\s*(\d+),\s*(\d+),\s*(\d+)`)

// Session is one control connection. A session serves a single caller;
// the mutex only serializes commands so a response is never read by the
// wrong command.
type Session struct {
	mu sync.Mutex

	conn    net.Conn
	reader  *bufio.Reader
	state   State
	last    string
	err     error
	pasvIP  string
	pasvPrt int

	timeout time.Duration
	dialer  func(network, address string, timeout time.Duration) (net.Conn, error)
	logger  zerolog.Logger
}

// Option customizes a Session before it connects
type Option func(*Session)

// WithTimeout replaces the five second connect and response bound
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithDialer replaces net.DialTimeout, for both control and data connections
func WithDialer(dial func(network, address string, timeout time.Duration) (net.Conn, error)) Option {
	return func(s *Session) { s.dialer = dial }
}

// Dial connects and logs in. On a protocol failure the returned session is
// kept in the Error state so LastResponse can be inspected; it refuses any
// further command.
func Dial(host string, port int, user, pass string, opts ...Option) (*Session, error) {
	s := &Session{
		state:   Disconnected,
		timeout: DefaultTimeout,
		dialer:  net.DialTimeout,
		logger:  logging.GetLogger("ftp"),
	}
	for _, opt := range opts {
		opt(s)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	s.logger.Debug().Str("addr", addr).Str("user", user).Msg("Connecting")

	conn, err := s.dialer("tcp", addr, s.timeout)
	if err != nil {
		return s, s.fail(errors.Wrapf(err, errors.ErrFTPBadServer, "connect to %s", addr))
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.state = Connected

	if _, err := s.expect(errors.ErrFTPBadServer, 220); err != nil {
		return s, err
	}

	if err := s.send("USER " + user); err != nil {
		return s, err
	}
	if _, err := s.expect(errors.ErrFTPBadUsername, 331, 230); err != nil {
		return s, err
	}

	if err := s.send("PASS " + pass); err != nil {
		return s, err
	}
	if _, err := s.expect(errors.ErrFTPBadPassword, 230, 202); err != nil {
		return s, err
	}
	s.state = Authenticated

	// binary mode is best effort; some servers reject TYPE
	if err := s.send("TYPE I"); err != nil {
		return s, err
	}
	if _, err := s.readResponse(); err != nil {
		return s, err
	}

	s.state = Ready
	s.logger.Info().Str("addr", addr).Msg("FTP session ready")
	return s, nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastResponse returns the last full reply received from the server
func (s *Session) LastResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Passive returns the endpoint of the last passive data connection
func (s *Session) Passive() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pasvIP, s.pasvPrt
}

// Err returns the error that moved the session to the Error state
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// fail moves the session to the Error state
func (s *Session) fail(err error) error {
	s.state = Error
	s.err = err
	s.logger.Warn().Err(err).Str("last_response", s.last).Msg("FTP session failed")
	return err
}

func (s *Session) ready() error {
	if s.state != Ready {
		return errors.Newf(errors.ErrFTPNotReady, "ftp session is %s", s.state)
	}
	return nil
}

// send writes one command line
func (s *Session) send(line string) error {
	verb, _, _ := strings.Cut(line, " ")
	if verb == "PASS" {
		s.logger.Trace().Msg("> PASS ****")
	} else {
		s.logger.Trace().Msg("> " + line)
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if _, err := io.WriteString(s.conn, line+"\r\n"); err != nil {
		return s.fail(s.ioError(err, "send "+verb))
	}
	return nil
}

// readResponse reads a possibly multiline reply. The reply ends at the
// first line that starts with a three digit code followed by a space.
func (s *Session) readResponse() (int, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))

	var lines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return 0, s.fail(s.ioError(err, "read response"))
		}
		line = strings.TrimRight(line, "\r\n")
		lines = append(lines, line)

		if len(line) >= 4 && line[3] == ' ' {
			if code, err := strconv.Atoi(line[:3]); err == nil {
				s.last = strings.Join(lines, "\n")
				s.logger.Trace().Msg("< " + s.last)
				return code, nil
			}
		}
	}
}

// expect reads a reply and fails the session with code unless its status
// is one of want.
func (s *Session) expect(code errors.ErrorCode, want ...int) (int, error) {
	got, err := s.readResponse()
	if err != nil {
		return 0, err
	}
	for _, w := range want {
		if got == w {
			return got, nil
		}
	}
	return got, s.fail(errors.Newf(code, "unexpected reply %q", s.last).WithDetail("code", got))
}

// command sends line and checks the reply while the session is ready.
// Rejected commands leave the session usable.
func (s *Session) command(line string, want ...int) (int, error) {
	if err := s.send(line); err != nil {
		return 0, err
	}
	got, err := s.readResponse()
	if err != nil {
		return 0, err
	}
	for _, w := range want {
		if got == w {
			return got, nil
		}
	}
	return got, errors.Newf(errors.ErrFTPBadResponse, "%s: unexpected reply %q", strings.Fields(line)[0], s.last).WithDetail("code", got)
}

func (s *Session) ioError(err error, op string) error {
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return errors.Wrapf(err, errors.ErrFTPTimeout, "%s timed out after %s", op, s.timeout)
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return errors.Wrapf(err, errors.ErrFTPTimeout, "%s timed out after %s", op, s.timeout)
	}
	return errors.Wrapf(err, errors.ErrFTPBadResponse, "%s", op)
}

// ChangeDirectory sends CWD
func (s *Session) ChangeDirectory(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.command("CWD "+path, 250)
	return err
}

// MakeDirectory sends MKD
func (s *Session) MakeDirectory(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.command("MKD "+path, 257)
	return err
}

// Chmod sends SITE CHMOD with the octal permission bits of mode
func (s *Session) Chmod(path string, mode fs.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.command(fmt.Sprintf("SITE CHMOD %o %s", mode.Perm(), path), 200)
	return err
}

// Delete removes a file with DELE, falling back to RMD for directories
func (s *Session) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.command("DELE "+path, 250)
	if err == nil || s.state != Ready {
		return err
	}
	_, err = s.command("RMD "+path, 250)
	return err
}

// Pwd returns the quoted path of a 257 reply to PWD
func (s *Session) Pwd() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return "", err
	}
	if _, err := s.command("PWD", 257); err != nil {
		return "", err
	}

	first := strings.Index(s.last, `"`)
	last := strings.LastIndex(s.last, `"`)
	if first < 0 || last <= first {
		return "", errors.Newf(errors.ErrFTPBadResponse, "no quoted path in %q", s.last)
	}
	return strings.ReplaceAll(s.last[first+1:last], `""`, `"`), nil
}

// CreateEmptyFile stores a zero length file
func (s *Session) CreateEmptyFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	data, err := s.passive()
	if err != nil {
		return err
	}
	if _, err := s.command("STOR "+path, 150, 125); err != nil {
		data.Close()
		return err
	}
	data.Close()

	_, err = s.expectTransfer()
	return err
}

// List returns the lines of a LIST reply for path; recursive adds -R
func (s *Session) List(path string, recursive bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	data, err := s.passive()
	if err != nil {
		return nil, err
	}
	defer data.Close()

	line := "LIST"
	if recursive {
		line += " -R"
	}
	if path != "" {
		line += " " + path
	}
	if _, err := s.command(line, 150, 125); err != nil {
		return nil, err
	}

	_ = data.SetReadDeadline(time.Now().Add(s.timeout))
	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, s.fail(s.ioError(err, "read listing"))
	}
	if _, err := s.expectTransfer(); err != nil {
		return nil, err
	}

	var lines []string
	for _, l := range strings.Split(string(raw), "\n") {
		if l = strings.TrimRight(l, "\r"); l != "" {
			lines = append(lines, l)
		}
	}
	s.logger.Debug().Str("path", path).Bool("recursive", recursive).Int("lines", len(lines)).Msg("Listed directory")
	return lines, nil
}

// expectTransfer waits for the 226 that closes a data transfer
func (s *Session) expectTransfer() (int, error) {
	got, err := s.readResponse()
	if err != nil {
		return 0, err
	}
	if got != 226 && got != 250 {
		return got, errors.Newf(errors.ErrFTPBadResponse, "transfer not completed: %q", s.last).WithDetail("code", got)
	}
	return got, nil
}

// passive sends PASV and opens the announced data connection
func (s *Session) passive() (net.Conn, error) {
	if _, err := s.command("PASV", 227); err != nil {
		return nil, err
	}

	m := passiveReply.FindStringSubmatch(s.last)
	if m == nil {
		return nil, errors.Newf(errors.ErrFTPBadResponse, "no endpoint in passive reply %q", s.last)
	}
	s.pasvIP = strings.Join(m[1:5], ".")
	p1, _ := strconv.Atoi(m[5])
	p2, _ := strconv.Atoi(m[6])
	s.pasvPrt = p1*256 + p2

	addr := net.JoinHostPort(s.pasvIP, strconv.Itoa(s.pasvPrt))
	conn, err := s.dialer("tcp", addr, s.timeout)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFTPBadResponse, "open data connection to %s", addr)
	}
	return conn, nil
}

// Close sends QUIT and closes the control connection
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.state == Closed {
		s.state = Closed
		return nil
	}
	if s.state != Error {
		if err := s.send("QUIT"); err == nil {
			_, _ = s.readResponse()
		}
	}
	err := s.conn.Close()
	s.state = Closed
	return err
}
