package tile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type CommandKind int

const (
	CommandData CommandKind = iota + 1
	CommandSwap
	CommandGain
	CommandReset
)

func (k CommandKind) String() string {
	switch k {
	case CommandData:
		return "data"
	case CommandSwap:
		return "upload"
	case CommandGain:
		return "gain"
	case CommandReset:
		return "reset"
	}
	return "inconnue"
}

var (
	ErrNoTerminator   = errors.New("tile: commande sans ';'")
	ErrUnknownCommand = errors.New("tile: commande inconnue")
)

// Command est un datagramme reçu par une dalle. Data référence le
// datagramme, sans copie.
type Command struct {
	Kind   CommandKind
	Offset int
	Gain   uint8
	Data   []byte
}

func (c Command) String() string {
	switch c.Kind {
	case CommandData:
		return fmt.Sprintf("[dpc data] offset %d, %d octets", c.Offset, len(c.Data))
	case CommandGain:
		return fmt.Sprintf("[dpc gain] %d", c.Gain)
	}
	return "[" + c.Kind.String() + "]"
}

// ParseCommand décode un datagramme tel que le firmware le lit : texte ASCII
// jusqu'au premier ';', puis les données brutes pour "dpc data".
func ParseCommand(packet []byte) (Command, error) {
	end := bytes.IndexByte(packet, ';')
	if end < 0 {
		return Command{}, ErrNoTerminator
	}
	fields := strings.Fields(string(packet[:end]))

	switch {
	case len(fields) == 4 && fields[0] == "dpc" && fields[1] == "data":
		off, err := strconv.Atoi(fields[3])
		if err != nil || off < 0 || off >= PayloadSize {
			return Command{}, fmt.Errorf("%w: offset %q", ErrUnknownCommand, fields[3])
		}
		return Command{Kind: CommandData, Offset: off, Data: packet[end+1:]}, nil
	case len(fields) == 3 && fields[0] == "dpc" && fields[1] == "upload":
		return Command{Kind: CommandSwap}, nil
	case len(fields) == 3 && fields[0] == "dpc" && fields[1] == "gain":
		g, err := strconv.ParseUint(fields[2], 10, 8)
		if err != nil {
			return Command{}, fmt.Errorf("%w: gain %q", ErrUnknownCommand, fields[2])
		}
		return Command{Kind: CommandGain, Gain: uint8(g)}, nil
	case len(fields) == 2 && fields[0] == "reset" && fields[1] == "firmware":
		return Command{Kind: CommandReset}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, packet[:end])
}

// Level lit les niveaux 12 bits du pixel (x, y) dans une charge utile.
func Level(payload []byte, x, y int) [3]uint16 {
	p := (y*Width + x) * BytesPerPixel
	if x < 0 || x >= Width || y < 0 || y >= Height || p+BytesPerPixel > len(payload) {
		return [3]uint16{}
	}
	return [3]uint16{
		binary.LittleEndian.Uint16(payload[p:]),
		binary.LittleEndian.Uint16(payload[p+2:]),
		binary.LittleEndian.Uint16(payload[p+4:]),
	}
}
