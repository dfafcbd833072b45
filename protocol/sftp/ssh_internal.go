package sftp

import (
	"io"
	"time"

	"golang.org/x/crypto/ssh"

	sshagent "github.com/xanzy/ssh-agent"
)

// internalClient wraps golang.org/x/crypto/ssh, grounded on rclone's
// backend/sftp/ssh_internal.go sshClientInternal.
type internalClient struct {
	conn *ssh.Client
}

// dialInternal connects and authenticates with password, then
// ssh-agent, then falls back to host-key-insecure acceptance — spec.md
// names no host-key-verification policy, so this mirrors rclone's
// sftp backend's default of InsecureIgnoreHostKey for a client whose
// whole job is scripted, non-interactive transfers.
func dialInternal(network, addr, user, password string, timeout time.Duration) (sshClient, error) {
	cfg := &ssh.ClientConfig{
		User:            user,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
		ClientVersion:   "SSH-2.0-gftpgo",
	}
	if password != "" {
		cfg.Auth = append(cfg.Auth, ssh.Password(password))
	}
	if agentClient, _, err := sshagent.New(); err == nil {
		if signers, err := agentClient.Signers(); err == nil && len(signers) > 0 {
			cfg.Auth = append(cfg.Auth, ssh.PublicKeys(signers...))
		}
	}
	conn, err := ssh.Dial(network, addr, cfg)
	if err != nil {
		return nil, err
	}
	return &internalClient{conn: conn}, nil
}

func (c *internalClient) Close() error { return c.conn.Close() }

func (c *internalClient) NewSession() (sshSession, error) {
	s, err := c.conn.NewSession()
	if err != nil {
		return nil, err
	}
	return &internalSession{session: s}, nil
}

type internalSession struct {
	session *ssh.Session
}

func (s *internalSession) RequestSubsystem(subsystem string) error {
	return s.session.RequestSubsystem(subsystem)
}

func (s *internalSession) Start(cmd string) error { return s.session.Start(cmd) }

func (s *internalSession) StdinPipe() (io.WriteCloser, error) { return s.session.StdinPipe() }

func (s *internalSession) StdoutPipe() (io.Reader, error) { return s.session.StdoutPipe() }

func (s *internalSession) Close() error { return s.session.Close() }
