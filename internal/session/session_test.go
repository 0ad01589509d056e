package session

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"modemlink/util"
)

func TestSession_ReadAndReply(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	s := New(server, util.NopLogger())
	defer s.Close()
	if s.ID == "" || s.Started.IsZero() {
		t.Fatalf("session identity not set: %+v", s)
	}

	go func() {
		client.Write([]byte("status\r\nsend fmt 1 0 - 0\n")) //nolint:errcheck
	}()

	for _, want := range []string{"status", "send fmt 1 0 - 0"} {
		line, ok := s.ReadLine()
		if !ok || line != want {
			t.Fatalf("ReadLine = %q, %v; want %q", line, ok, want)
		}
	}

	go func() {
		s.Printf("ok %d", 1)
		s.Printf("bye")
		s.Flush() //nolint:errcheck
	}()
	r := bufio.NewReader(client)
	for _, want := range []string{"ok 1\n", "bye\n"} {
		got, err := r.ReadString('\n')
		if err != nil || got != want {
			t.Fatalf("reply = %q, %v; want %q", got, err, want)
		}
	}
}

func TestSession_EOFAndOverlongLine(t *testing.T) {
	server, client := net.Pipe()
	s := New(server, nil)

	go func() {
		client.Write([]byte(strings.Repeat("a", MaxLineLength+1))) //nolint:errcheck
		client.Close()
	}()

	if _, ok := s.ReadLine(); ok {
		t.Fatal("overlong line accepted")
	}
	if s.Err() == nil {
		t.Error("expected a scanner error for an overlong line")
	}
	s.Close()
}

func TestSession_CleanEOF(t *testing.T) {
	server, client := net.Pipe()
	s := New(server, nil)
	client.Close()

	if _, ok := s.ReadLine(); ok {
		t.Fatal("ReadLine succeeded on closed peer")
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err after clean EOF = %v", err)
	}
	s.Close()
}
