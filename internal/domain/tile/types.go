package tile

import "fmt"

const (
	Width  = 18
	Height = 18

	// 16 bits par canal, petit-boutiste.
	BytesPerPixel = 6
	PayloadSize   = Width * Height * BytesPerPixel // 1944

	// Le firmware accepte au plus 1024 octets de données par datagramme.
	FirstChunkSize = 1024

	DefaultPort      = 48757
	DefaultBroadcast = "ff02::1"
)

// Descriptor place une dalle sur le panneau. Chargé une fois, jamais modifié.
type Descriptor struct {
	Address string // IPv6 lien-local avec zone ("fe80::1%eth0") ou IPv4
	X       int
	Y       int
	Serial  int
	MAC     string
}

func (d Descriptor) String() string {
	return fmt.Sprintf("[Dalle] %s @ (%d,%d)", d.Address, d.X, d.Y)
}
