package demo

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEchoServer(t *testing.T) {
	srv, err := NewEchoServer("127.0.0.1:0")
	assert.Nil(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	assert.Nil(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello\n"))
	assert.Nil(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	assert.Nil(t, err)
	assert.Equal(t, "hello\n", line)

	assert.Nil(t, srv.Close())
	select {
	case err := <-served:
		assert.Nil(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after close")
	}
}

func TestPinger(t *testing.T) {
	srv, err := NewEchoServer("127.0.0.1:0")
	assert.Nil(t, err)
	go func() { _ = srv.Serve() }()
	defer srv.Close()

	cfg := LoadConfig()
	cfg.vp.Set("ping.interval", 20*time.Millisecond)
	cfg.vp.Set("ping.timeout", time.Second)

	addr := srv.Addr().(*net.TCPAddr)
	pinger, err := NewPinger("127.0.0.1", addr.Port, cfg)
	assert.Nil(t, err)

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()

	// let a few ping round-trips happen
	time.Sleep(150 * time.Millisecond)
	pinger.Stop()

	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pinger did not stop")
	}
}
