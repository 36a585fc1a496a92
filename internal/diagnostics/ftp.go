package diagnostics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"os"
	"strings"
)

// uploadFTP uploads r to location, which is either an ftp:// URL (uploaded
// via a minimal passive-mode FTP client built on net/textproto, since no
// FTP library exists anywhere in the examples corpus — see DESIGN.md) or a
// file:// URL / bare path (copied locally, useful for simulator testing
// without a real FTP server).
func uploadFTP(ctx context.Context, location, filename string, r io.Reader) error {
	u, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("parsing location: %w", err)
	}

	switch u.Scheme {
	case "", "file":
		return uploadFile(u.Path, filename, r)
	case "ftp":
		return uploadOverFTP(ctx, u, filename, r)
	default:
		return fmt.Errorf("unsupported diagnostics upload scheme %q", u.Scheme)
	}
}

func uploadFile(dir, filename string, r io.Reader) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	dst, err := os.Create(dir + string(os.PathSeparator) + filename)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}
	defer dst.Close()
	_, err = io.Copy(dst, r)
	return err
}

// ftpClient is a minimal active-mode-free FTP client covering exactly the
// sequence GetDiagnostics needs: connect, authenticate, change to the
// target directory when the URL has a path, switch to binary mode, enter
// passive mode, STOR the file.
type ftpClient struct {
	conn *textproto.Conn
}

func dialFTP(ctx context.Context, addr string) (*ftpClient, error) {
	var d net.Dialer
	rawConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	conn := textproto.NewConn(rawConn)
	if _, _, err := conn.ReadResponse(220); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading FTP banner: %w", err)
	}
	return &ftpClient{conn: conn}, nil
}

func (c *ftpClient) login(user, pass string) error {
	if user == "" {
		user = "anonymous"
	}
	if err := c.cmd(331, "USER %s", user); err != nil {
		return err
	}
	return c.cmd(230, "PASS %s", pass)
}

func (c *ftpClient) cmd(expectCode int, format string, args ...any) error {
	id, err := c.conn.Cmd(format, args...)
	if err != nil {
		return err
	}
	c.conn.StartResponse(id)
	defer c.conn.EndResponse(id)
	_, _, err = c.conn.ReadResponse(expectCode)
	return err
}

// store uploads r as filename over a passive-mode data connection.
func (c *ftpClient) store(ctx context.Context, filename string, r io.Reader) error {
	if err := c.cmd(200, "TYPE I"); err != nil {
		return fmt.Errorf("setting binary mode: %w", err)
	}

	dataAddr, err := c.enterPassiveMode()
	if err != nil {
		return fmt.Errorf("entering passive mode: %w", err)
	}

	var d net.Dialer
	dataConn, err := d.DialContext(ctx, "tcp", dataAddr)
	if err != nil {
		return fmt.Errorf("dialing data connection: %w", err)
	}
	defer dataConn.Close()

	id, err := c.conn.Cmd("STOR %s", filename)
	if err != nil {
		return fmt.Errorf("sending STOR: %w", err)
	}
	c.conn.StartResponse(id)
	defer c.conn.EndResponse(id)
	if _, _, err := c.conn.ReadResponse(150); err != nil {
		return fmt.Errorf("STOR not accepted: %w", err)
	}

	if _, err := io.Copy(dataConn, r); err != nil {
		return fmt.Errorf("writing file data: %w", err)
	}
	if err := dataConn.Close(); err != nil {
		return fmt.Errorf("closing data connection: %w", err)
	}

	_, _, err = c.conn.ReadResponse(226)
	return err
}

// enterPassiveMode issues PASV and parses the h1,h2,h3,h4,p1,p2 response
// into a dialable address, per RFC 959.
func (c *ftpClient) enterPassiveMode() (string, error) {
	id, err := c.conn.Cmd("PASV")
	if err != nil {
		return "", err
	}
	c.conn.StartResponse(id)
	defer c.conn.EndResponse(id)
	_, msg, err := c.conn.ReadResponse(227)
	if err != nil {
		return "", err
	}

	start := strings.IndexByte(msg, '(')
	end := strings.IndexByte(msg, ')')
	if start < 0 || end < 0 || end < start {
		return "", fmt.Errorf("unparseable PASV response: %q", msg)
	}
	var h1, h2, h3, h4, p1, p2 int
	if _, err := fmt.Sscanf(msg[start+1:end], "%d,%d,%d,%d,%d,%d", &h1, &h2, &h3, &h4, &p1, &p2); err != nil {
		return "", fmt.Errorf("parsing PASV response %q: %w", msg, err)
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", h1, h2, h3, h4, p1*256+p2), nil
}

func (c *ftpClient) quit() {
	c.conn.Cmd("QUIT")
	c.conn.Close()
}

func uploadOverFTP(ctx context.Context, u *url.URL, filename string, r io.Reader) error {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}

	client, err := dialFTP(ctx, addr)
	if err != nil {
		return err
	}
	defer client.quit()

	user := ""
	pass := ""
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	if err := client.login(user, pass); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	dir := strings.Trim(u.Path, "/")
	if dir != "" {
		if err := client.cmd(250, "CWD %s", dir); err != nil {
			return fmt.Errorf("changing to %s: %w", dir, err)
		}
	}

	return client.store(ctx, filename, r)
}
