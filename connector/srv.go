// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package connector

import (
	"context"
	"net"
	"strconv"
)

// xmppClientService is the SRV service name for c2s connections (RFC 6120
// §3.2).
const xmppClientService = "xmpp-client"

// defaultPort is used when SRV lookup yields no records and the caller did
// not override Port.
const defaultPort = "5222"

// dialHost performs the fallback rule of spec.md §4.5: attempt
// _xmpp-client._tcp.<domain> SRV records first; on any I/O failure (as
// opposed to "no such record"), remember the error and fall back to
// connecting to the bare domain on the configured or default port. If the
// fallback also fails, the SRV error is reported in preference to the
// direct-connect error. If the caller supplied an explicit Server or Port,
// SRV lookup is skipped entirely.
func (d *Dialer) dialHost(ctx context.Context, domain string) (net.Conn, error) {
	if d.Server != "" || d.Port != "" {
		return d.dialDirect(ctx, d.directTarget(domain))
	}

	_, srvs, err := net.DefaultResolver.LookupSRV(ctx, xmppClientService, "tcp", domain)
	var srvErr error
	if err != nil {
		if dnsErr, ok := err.(*net.DNSError); !ok || !dnsErr.IsNotFound {
			srvErr = err
		}
	} else {
		for _, srv := range srvs {
			if srv.Target == "." {
				// RFC 2782: the service is decidedly not available here.
				break
			}
			target := net.JoinHostPort(srv.Target, strconv.Itoa(int(srv.Port)))
			conn, dialErr := d.Dialer.DialContext(ctx, "tcp", target)
			if dialErr == nil {
				return conn, nil
			}
			srvErr = dialErr
		}
	}

	conn, err := d.dialDirect(ctx, d.directTarget(domain))
	if err != nil {
		if srvErr != nil {
			return nil, srvErr
		}
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) directTarget(domain string) string {
	host := domain
	if d.Server != "" {
		host = d.Server
	}
	port := d.Port
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(host, port)
}

func (d *Dialer) dialDirect(ctx context.Context, target string) (net.Conn, error) {
	return d.Dialer.DialContext(ctx, "tcp", target)
}
