package redis_batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

type ConnConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (c *ConnConfig) WithDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 6379
	}
}

func (c ConnConfig) addr() string {
	c.WithDefaults()
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type client struct {
	conn net.Conn
	rd   *bufio.Reader
	wr   *bufio.Writer
}

func openRedis(ctx context.Context, cfg ConnConfig) (*client, error) {
	d := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return nil, err
	}
	c := newClient(conn)

	if cfg.Password != "" {
		if _, err := c.do("AUTH", cfg.Password); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if cfg.DB > 0 {
		if _, err := c.do("SELECT", strconv.Itoa(cfg.DB)); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if _, err := c.do("PING"); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func newClient(conn net.Conn) *client {
	return &client{conn: conn, rd: bufio.NewReader(conn), wr: bufio.NewWriter(conn)}
}

func (c *client) close() error {
	return c.conn.Close()
}

func (c *client) do(cmd string, args ...string) (interface{}, error) {
	out, err := c.pipeline([][]string{append([]string{cmd}, args...)})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// pipeline sends every command before reading any reply. The first error
// reply fails the whole call, after all replies have been drained.
func (c *client) pipeline(cmds [][]string) ([]interface{}, error) {
	for _, parts := range cmds {
		if err := c.writeCommand(parts); err != nil {
			return nil, err
		}
	}
	if err := c.wr.Flush(); err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(cmds))
	var firstErr error
	for range cmds {
		v, err := c.readResp()
		if err != nil {
			return nil, err
		}
		if e, ok := v.(respErr); ok && firstErr == nil {
			firstErr = errors.New(string(e))
		}
		out = append(out, v)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (c *client) writeCommand(parts []string) error {
	var b strings.Builder
	b.WriteString("*")
	b.WriteString(strconv.Itoa(len(parts)))
	b.WriteString("\r\n")
	for i, p := range parts {
		if i == 0 {
			p = strings.ToUpper(p)
		}
		b.WriteString("$")
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteString("\r\n")
		b.WriteString(p)
		b.WriteString("\r\n")
	}
	_, err := c.wr.WriteString(b.String())
	return err
}

type respErr string

func (c *client) readResp() (interface{}, error) {
	prefix, err := c.rd.ReadByte()
	if err != nil {
		return nil, err
	}
	switch prefix {
	case '+':
		s, err := c.rd.ReadString('\n')
		if err != nil {
			return nil, err
		}
		return strings.TrimSuffix(strings.TrimSuffix(s, "\n"), "\r"), nil
	case '-':
		s, err := c.rd.ReadString('\n')
		if err != nil {
			return nil, err
		}
		return respErr(strings.TrimSuffix(strings.TrimSuffix(s, "\n"), "\r")), nil
	case ':':
		s, err := c.rd.ReadString('\n')
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case '$':
		s, err := c.rd.ReadString('\n')
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(c.rd, buf); err != nil {
			return nil, err
		}
		return string(buf[:n]), nil
	case '*':
		s, err := c.rd.ReadString('\n')
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, nil
		}
		out := make([]interface{}, 0, n)
		for i := 0; i < n; i++ {
			v, err := c.readResp()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown redis resp type: %q", string(prefix))
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
