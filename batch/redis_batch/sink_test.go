package redis_batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/emptyOVO/dbmove-go/split"
	"github.com/google/go-cmp/cmp"
)

// fakeRedis answers PING with PONG and every other command with :1,
// remembering the commands it saw.
type fakeRedis struct {
	ln   net.Listener
	mu   sync.Mutex
	cmds [][]string
}

func startFakeRedis(t *testing.T) *fakeRedis {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeRedis{ln: ln}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeRedis) conn() ConnConfig {
	addr := f.ln.Addr().(*net.TCPAddr)
	return ConnConfig{Host: "127.0.0.1", Port: addr.Port}
}

func (f *fakeRedis) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeRedis) handle(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	for {
		cmd, err := readCommand(rd)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.cmds = append(f.cmds, cmd)
		f.mu.Unlock()
		reply := ":1\r\n"
		if cmd[0] == "PING" {
			reply = "+PONG\r\n"
		}
		if _, err := io.WriteString(conn, reply); err != nil {
			return
		}
	}
}

func readCommand(rd *bufio.Reader) ([]string, error) {
	line, err := rd.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "*")))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if _, err := rd.ReadString('\n'); err != nil {
			return nil, err
		}
		arg, err := rd.ReadString('\n')
		if err != nil {
			return nil, err
		}
		out = append(out, strings.TrimSuffix(arg, "\r\n"))
	}
	return out, nil
}

func (f *fakeRedis) commands(name string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.cmds {
		if c[0] == name {
			out = append(out, c)
		}
	}
	return out
}

func TestSinkWritesHashes(t *testing.T) {
	srv := startFakeRedis(t)
	f, err := NewSinkFactory(srv.conn(), SinkConfig{
		KeyPrefix: "agg:",
		Fields:    []string{"biz_key", "metric"},
		BatchSize: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s, err := f.Open(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Write(ctx, split.Record{fmt.Sprintf("k%d", i), strconv.Itoa(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"HSET", "agg:k0", "metric", "0"},
		{"HSET", "agg:k1", "metric", "1"},
		{"HSET", "agg:k2", "metric", "2"},
	}
	if diff := cmp.Diff(want, srv.commands("HSET")); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestHsetCommandRejectsBadRecords(t *testing.T) {
	cfg := SinkConfig{KeyPrefix: "p:", Fields: []string{"a", "b"}}
	if _, err := hsetCommand(cfg, split.Record{"only"}); err == nil {
		t.Error("expected field count error")
	}
	if _, err := hsetCommand(cfg, split.Record{" ", "1"}); err == nil {
		t.Error("expected empty key error")
	}
}

func TestNewSinkFactoryValidates(t *testing.T) {
	if _, err := NewSinkFactory(ConnConfig{}, SinkConfig{Fields: []string{"k"}}); err == nil {
		t.Error("expected error for missing value field")
	}
	if _, err := NewSinkFactory(ConnConfig{}, SinkConfig{Fields: []string{"k", "v"}, KeyIndex: 2}); err == nil {
		t.Error("expected error for key index out of range")
	}
}
