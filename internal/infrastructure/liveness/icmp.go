package liveness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// ErrSocket : impossible d'ouvrir un socket ICMP sur cette machine.
var ErrSocket = errors.New("liveness: socket ICMP indisponible")

var echoPayload = []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaabb")

// ICMPPinger envoie un écho ICMP par appel. Sans Privileged, il passe par
// les sockets ICMP non privilégiés (net.ipv4.ping_group_range sous Linux).
type ICMPPinger struct {
	Privileged bool

	seq atomic.Uint32
}

func (p *ICMPPinger) networks(v6 bool) (network, listen string) {
	switch {
	case v6 && p.Privileged:
		return "ip6:ipv6-icmp", "::"
	case v6:
		return "udp6", "::"
	case p.Privileged:
		return "ip4:icmp", "0.0.0.0"
	default:
		return "udp4", "0.0.0.0"
	}
}

func (p *ICMPPinger) Ping(ctx context.Context, addr string, timeout time.Duration) error {
	dst, err := net.ResolveIPAddr("ip", addr)
	if err != nil {
		return fmt.Errorf("adresse %q invalide: %w", addr, err)
	}
	v6 := dst.IP.To4() == nil

	network, listen := p.networks(v6)
	c, err := icmp.ListenPacket(network, listen)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSocket, err)
	}
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.SetDeadline(deadline); err != nil {
		return err
	}

	seq := int(p.seq.Add(1) & 0xffff)
	id := os.Getpid() & 0xffff
	var typ, reply icmp.Type = ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
	proto := protocolICMP
	if v6 {
		typ, reply, proto = ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply, protocolIPv6ICMP
	}
	msg := icmp.Message{Type: typ, Body: &icmp.Echo{ID: id, Seq: seq, Data: echoPayload}}
	b, err := msg.Marshal(nil)
	if err != nil {
		return err
	}

	var target net.Addr = dst
	if !p.Privileged {
		target = &net.UDPAddr{IP: dst.IP, Zone: dst.Zone}
	}
	if _, err := c.WriteTo(b, target); err != nil {
		return err
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := c.ReadFrom(buf)
		if err != nil {
			return err
		}
		rm, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil || rm.Type != reply {
			continue
		}
		echo, ok := rm.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// En non privilégié, le noyau remplace l'identifiant.
		if p.Privileged && echo.ID != id {
			continue
		}
		return nil
	}
}
