package destination

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/maildropd/maildropd/internal/config"
	"github.com/maildropd/maildropd/internal/message"
)

// remoteAccount appends messages to a folder of an IMAP account over
// TLS. Every append opens a fresh session and logs out afterwards;
// sessions are never reused across messages, so a wedged session
// cannot poison later deliveries.
type remoteAccount struct {
	name      string
	host      string
	port      int
	username  string
	password  string
	folder    string
	tlsConfig *tls.Config
}

func newRemoteAccount(dc config.DestinationConfig) *remoteAccount {
	return &remoteAccount{
		name:     dc.Name,
		host:     dc.Host,
		port:     dc.Port,
		username: dc.Username,
		password: dc.Password,
		folder:   dc.Folder,
	}
}

func (r *remoteAccount) Name() string { return r.name }

func (r *remoteAccount) Kind() string { return string(config.KindRemote) }

// connect dials and authenticates a fresh session. The dial and TLS
// handshake honor ctx; once established, cancellation closes the
// connection so pending command waits unwind. When the server
// advertises SASL PLAIN the authentication runs through the SASL
// exchange; otherwise it falls back to the plain LOGIN command. Both
// run inside TLS.
func (r *remoteAccount) connect(ctx context.Context) (*imapclient.Client, error) {
	addr := net.JoinHostPort(r.host, strconv.Itoa(r.port))
	dialer := tls.Dialer{Config: r.tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	c := imapclient.New(conn, nil)

	if c.Caps().Has(imap.AuthCap(sasl.Plain)) {
		err = c.Authenticate(sasl.NewPlainClient("", r.username, r.password))
	} else {
		err = c.Login(r.username, r.password).Wait()
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("authenticating as %s: %w", r.username, err)
	}

	return c, nil
}

// logout ends the session, best-effort. Errors are ignored: the
// session is per-message and the next append starts from scratch.
func (r *remoteAccount) logout(c *imapclient.Client) {
	if err := c.Logout().Wait(); err != nil {
		_ = c.Close()
	}
}

// Validate connects, authenticates and selects the configured folder.
func (r *remoteAccount) Validate(ctx context.Context) error {
	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer r.logout(c)
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if _, err := c.Select(r.folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting folder %q: %w", r.folder, err)
	}
	return nil
}

// Append opens a session, selects the folder, appends the serialized
// message and logs out.
func (r *remoteAccount) Append(ctx context.Context, msg *message.Message) error {
	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("serializing message: %w", err)
	}

	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer r.logout(c)
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if _, err := c.Select(r.folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting folder %q: %w", r.folder, err)
	}

	appendCmd := c.Append(r.folder, int64(len(raw)), nil)
	if _, err := appendCmd.Write(raw); err != nil {
		return fmt.Errorf("writing append literal: %w", err)
	}
	if err := appendCmd.Close(); err != nil {
		return fmt.Errorf("closing append literal: %w", err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		return fmt.Errorf("appending to %q: %w", r.folder, err)
	}

	return nil
}
