package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/harborlabs/cruisesync/internal/config"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type sftpDialer struct {
	cfg config.FTPConfig
}

// NewSFTPDialer builds a Dialer for the supplier's SFTP endpoint.
func NewSFTPDialer(cfg config.FTPConfig) Dialer {
	return &sftpDialer{cfg: cfg}
}

func (d *sftpDialer) Dial(ctx context.Context) (Session, error) {
	sshCfg := &ssh.ClientConfig{
		User: d.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(d.cfg.Password),
		},
		// The supplier rotates host keys without notice; their endpoint is
		// pinned by hostname inside a private network segment.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(d.cfg.Host, d.cfg.Port)
	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sftp handshake: %w", err)
	}

	return &sftpSession{ssh: conn, client: client}, nil
}

type sftpSession struct {
	ssh    *ssh.Client
	client *sftp.Client
}

func (s *sftpSession) ListDir(ctx context.Context, path string) ([]string, error) {
	type listResult struct {
		names []string
		err   error
	}
	done := make(chan listResult, 1)
	go func() {
		infos, err := s.client.ReadDir(path)
		if err != nil {
			done <- listResult{err: err}
			return
		}
		names := make([]string, 0, len(infos))
		for _, info := range infos {
			names = append(names, info.Name())
		}
		done <- listResult{names: names}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			if os.IsNotExist(res.err) {
				return nil, ErrNotFound
			}
			return nil, res.err
		}
		return res.names, nil
	}
}

func (s *sftpSession) Download(ctx context.Context, path string) ([]byte, error) {
	type downloadResult struct {
		data []byte
		err  error
	}
	done := make(chan downloadResult, 1)
	go func() {
		f, err := s.client.Open(path)
		if err != nil {
			done <- downloadResult{err: err}
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		done <- downloadResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			if os.IsNotExist(res.err) {
				return nil, ErrNotFound
			}
			return nil, res.err
		}
		return res.data, nil
	}
}

func (s *sftpSession) Noop(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := s.client.Getwd()
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("sftp noop timed out")
	}
}

func (s *sftpSession) Close() error {
	cerr := s.client.Close()
	if err := s.ssh.Close(); err != nil && cerr == nil {
		cerr = err
	}
	return cerr
}
