package core

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultTCPPort    = 9100
	defaultTCPTimeout = 5 * time.Second

	// How long the TCP adapter lingers after writing so the printer can
	// drain the program. Printers that slam the connection shut right
	// after receiving data are still a success.
	tcpDrainGrace = 500 * time.Millisecond
)

// TransportError is the typed failure every adapter reports. Transport
// identifies the adapter; Detail carries whatever diagnostic the underlying
// write, exec, or dial produced.
type TransportError struct {
	Transport string
	Detail    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport failed: %s", e.Transport, e.Detail)
}

// RawDeviceTransport writes a TSPL program straight into a character
// device, typically /dev/usb/lp0. Write errors are reported, never retried.
type RawDeviceTransport struct {
	DevicePath string
}

func (t *RawDeviceTransport) Send(program []byte) error {
	f, err := os.OpenFile(t.DevicePath, os.O_WRONLY, 0)
	if err != nil {
		return &TransportError{Transport: "raw", Detail: err.Error()}
	}
	defer f.Close()

	if _, err := f.Write(program); err != nil {
		return &TransportError{Transport: "raw", Detail: err.Error()}
	}
	return nil
}

// SubprocessTransport shells out to the line-printer spooler command and
// streams the program to its stdin. A nonzero exit is a failure carrying
// the captured error stream.
type SubprocessTransport struct {
	Command   string
	Queue     string
	Media     string
	FitToPage bool
	Landscape bool
}

func (t *SubprocessTransport) command() string {
	if t.Command == "" {
		return "lp"
	}
	return t.Command
}

func (t *SubprocessTransport) SendRaw(program []byte) error {
	args := []string{"-o", "raw"}
	if t.Queue != "" {
		args = append(args, "-d", t.Queue)
	}
	return t.run(args, program)
}

func (t *SubprocessTransport) SendPDF(doc []byte) error {
	args := []string{"-o", "media=" + t.media()}
	if t.FitToPage {
		args = append(args, "-o", "fit-to-page")
	} else {
		args = append(args, "-o", "scaling=100")
	}
	if t.Landscape {
		args = append(args, "-o", "landscape")
	}
	if t.Queue != "" {
		args = append(args, "-d", t.Queue)
	}
	return t.run(args, doc)
}

func (t *SubprocessTransport) media() string {
	if t.Media == "" {
		return "Custom.2.625x1in"
	}
	return t.Media
}

func (t *SubprocessTransport) run(args []string, input []byte) error {
	cmd := exec.Command(t.command(), args...)
	cmd.Stdin = bytes.NewReader(input)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return &TransportError{Transport: "subprocess", Detail: detail}
	}
	return nil
}

// TCPTransport pushes a TSPL program over a raw socket, the port-9100
// convention. The whole attempt is bounded by Timeout; after writing it
// waits a short grace period so the printer can consume the data, treating
// a remote close as normal.
type TCPTransport struct {
	Timeout time.Duration
}

func (t *TCPTransport) timeout() time.Duration {
	if t.Timeout <= 0 {
		return defaultTCPTimeout
	}
	return t.Timeout
}

func (t *TCPTransport) Send(host string, port int, program []byte) error {
	if port == 0 {
		port = defaultTCPPort
	}
	address := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	conn, err := net.DialTimeout("tcp", address, t.timeout())
	if err != nil {
		return &TransportError{Transport: "tcp", Detail: err.Error()}
	}
	defer conn.Close()

	deadline := time.Now().Add(t.timeout())
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(program); err != nil {
		return &TransportError{Transport: "tcp", Detail: err.Error()}
	}

	// Linger briefly; some printers hold the socket open until the label
	// is committed, others close immediately. EOF and timeout here both
	// mean the data was handed off.
	grace := time.Now().Add(tcpDrainGrace)
	if grace.After(deadline) {
		grace = deadline
	}
	_ = conn.SetReadDeadline(grace)
	buf := make([]byte, 64)
	_, _ = conn.Read(buf)

	return nil
}
