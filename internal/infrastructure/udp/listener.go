// internal/infrastructure/udp/listener.go
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"betsyMixer/internal/logging"
)

// MaxDatagram couvre le plus gros datagramme UDP possible.
const MaxDatagram = 65535

type RawPacket struct {
	Data []byte
	From *net.UDPAddr
}

type Listener struct {
	name       string
	conn       *net.UDPConn
	packetChan chan<- RawPacket
}

// NewListener écoute en IPv4 sur toutes les interfaces.
func NewListener(name string, port int, packetChan chan<- RawPacket) (*Listener, error) {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("impossible de résoudre l'adresse UDP: %w", err)
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("impossible d'écouter sur le port %d: %w", port, err)
	}

	logging.L().Info("UDP: listener prêt", "source", name, "port", port)
	return &Listener{name: name, conn: conn, packetChan: packetChan}, nil
}

// NewDualStackListener écoute en IPv6 et IPv4 sur le même socket. Si le bind
// échoue, on retombe une seule fois sur de l'IPv4 seul.
func NewDualStackListener(name string, port int, packetChan chan<- RawPacket) (*Listener, error) {
	lc := net.ListenConfig{Control: dualStackControl}
	pc, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf("[::]:%d", port))
	if err == nil {
		logging.L().Info("UDP: listener double pile prêt", "source", name, "port", port)
		return &Listener{name: name, conn: pc.(*net.UDPConn), packetChan: packetChan}, nil
	}

	logging.L().Warn("UDP: bind double pile impossible, repli IPv4", "source", name, "port", port, "err", err)
	return NewListener(name, port, packetChan)
}

func (l *Listener) LocalAddr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Start lance la boucle de réception. Le contexte ferme la connexion, ce qui
// débloque ReadFromUDP.
func (l *Listener) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	go func() {
		buffer := make([]byte, MaxDatagram)
		for {
			n, remoteAddr, err := l.conn.ReadFromUDP(buffer)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					logging.L().Info("UDP: connexion fermée, arrêt de l'écoute", "source", l.name)
					return
				}
				logging.L().Warn("UDP: erreur de lecture", "source", l.name, "err", err)
				continue
			}

			packetCopy := make([]byte, n)
			copy(packetCopy, buffer[:n])

			select {
			case l.packetChan <- RawPacket{Data: packetCopy, From: remoteAddr}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (l *Listener) Close() error {
	return l.conn.Close()
}
