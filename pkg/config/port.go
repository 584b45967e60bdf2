package config

import (
	"fmt"
	"net"
)

// FreePort asks the kernel for a currently unused TCP port on the loopback
// interface. Another process may claim it before the broker binds it.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
