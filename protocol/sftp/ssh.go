package sftp

import "io"

// sshClient and sshSession abstract over the two SSH transports this
// driver supports, directly grounded on rclone's backend/sftp/ssh.go:
// an internal golang.org/x/crypto/ssh client (ssh_internal.go) and a
// forked external ssh binary (ssh_external.go). The SFTP packet layer
// in sftp.go talks only to the io.ReadWriter the session's pipes
// form; it never knows which transport it is running over.
type sshClient interface {
	Close() error
	NewSession() (sshSession, error)
}

type sshSession interface {
	// RequestSubsystem asks the server to run "sftp" as this session's
	// subsystem (the modern, pty-free path).
	RequestSubsystem(subsystem string) error

	// Start runs an explicit remote command line instead of a named
	// subsystem — the legacy `ssh host sftp-server` path for servers
	// with no subsystem declared.
	Start(cmd string) error

	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.Reader, error)

	Close() error
}
