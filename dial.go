// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"context"
	"net"
	"strconv"

	"golang.org/x/net/idna"
)

// A Dialer contains options for connecting to OSCAR service hosts.
//
// The zero value is a valid Dialer that uses the defaults of the embedded
// net.Dialer.
type Dialer struct {
	net.Dialer
}

// DialService connects to the address a redirect (or static configuration)
// named for the given service. The address may omit the port, in which case
// the service's default port is used, and the host is normalized with IDNA
// before the lookup.
//
// If the context expires before the connection is complete an error is
// returned. Once successfully connected, any expiration of the context will
// not affect the connection.
func (d *Dialer) DialService(ctx context.Context, svc ServiceType, addr string) (net.Conn, error) {
	host, port, err := serviceAddr(svc, addr)
	if err != nil {
		return nil, err
	}
	return d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
}

// serviceAddr splits a redirect address into host and port, applying the
// service's default port when the address does not carry one.
func serviceAddr(svc ServiceType, addr string) (host, port string, err error) {
	host, port, err = net.SplitHostPort(addr)
	if err != nil {
		// No port in the address; redirects frequently name only a host.
		host = addr
		port = strconv.FormatUint(uint64(svc.DefaultPort()), 10)
	}
	host, err = idna.ToASCII(host)
	if err != nil {
		return "", "", err
	}
	return host, port, nil
}
