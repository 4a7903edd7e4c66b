// internal/config/loader.go
package config

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"betsyMixer/internal/domain/tile"
	"betsyMixer/internal/logging"
)

// Colonnes des formats tabulaires (csv, xlsx), ligne d'en-tête comprise.
var inventoryHeaders = []string{"Adresse", "X", "Y", "Serie", "MAC"}

type InventoryOptions struct {
	PanelWidth  int
	PanelHeight int
	// Zone est ajoutée aux adresses lien-local sans zone ("eth0").
	Zone string
}

// Format d'origine : un inventaire des dalles et une carte de placement
// indexée par adresse.
type inventoryFile struct {
	Inventory []inventoryItem `json:"inventory" yaml:"inventory"`
	TileMap   []tileMapItem   `json:"tilemap" yaml:"tilemap"`
}

type inventoryItem struct {
	Serial   int    `json:"serial_number" yaml:"serial_number"`
	MAC      string `json:"mac" yaml:"mac"`
	Address  string `json:"ipv6_link_local" yaml:"ipv6_link_local"`
	Revision string `json:"itc_revision" yaml:"itc_revision"`
}

type tileMapItem struct {
	Address string `json:"ipv6_link_local" yaml:"ipv6_link_local"`
	Start   []int  `json:"start" yaml:"start"`
}

// entry est une dalle en cours de chargement ; placed indique si sa
// position vient du fichier.
type entry struct {
	tile.Descriptor
	placed bool
}

// LoadInventory choisit le format d'après l'extension : .json, .yaml/.yml,
// .csv ou .xlsx. L'ordre du fichier est conservé.
func LoadInventory(path string, opts InventoryOptions) ([]tile.Descriptor, error) {
	var (
		entries []entry
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		entries, err = loadStructured(path, json.Unmarshal)
	case ".yaml", ".yml":
		entries, err = loadStructured(path, yaml.Unmarshal)
	case ".csv":
		entries, err = loadCSV(path)
	case ".xlsx":
		entries, err = loadExcel(path)
	default:
		return nil, fmt.Errorf("inventaire %s: extension %q non supportée", path, ext)
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("inventaire %s: aucune dalle", path)
	}

	tiles := make([]tile.Descriptor, len(entries))
	placed := make([]bool, len(entries))
	for i, e := range entries {
		e.Address = WithZone(e.Address, opts.Zone)
		tiles[i] = e.Descriptor
		placed[i] = e.placed
	}
	if n := AutoPlace(tiles, placed, opts.PanelWidth); n > 0 {
		logging.L().Info("Inventaire: dalles placées automatiquement", "dalles", n)
	}
	logging.L().Info("Inventaire: chargé", "fichier", path, "dalles", len(tiles))
	return tiles, nil
}

func loadStructured(path string, unmarshal func([]byte, any) error) ([]entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("impossible de lire l'inventaire: %w", err)
	}
	var f inventoryFile
	if err := unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("inventaire %s illisible: %w", path, err)
	}

	entries := make([]entry, 0, len(f.Inventory))
	index := make(map[string]int, len(f.Inventory))
	for _, it := range f.Inventory {
		addr := strings.TrimSpace(it.Address)
		if addr == "" {
			continue
		}
		index[addr] = len(entries)
		entries = append(entries, entry{Descriptor: tile.Descriptor{Address: addr, Serial: it.Serial, MAC: it.MAC}})
	}
	for _, m := range f.TileMap {
		i, ok := index[strings.TrimSpace(m.Address)]
		if !ok {
			logging.L().Warn("Inventaire: dalle de la carte absente de l'inventaire", "adresse", m.Address)
			continue
		}
		if len(m.Start) < 2 {
			logging.L().Warn("Inventaire: position incomplète", "adresse", m.Address)
			continue
		}
		entries[i].X, entries[i].Y = m.Start[0], m.Start[1]
		entries[i].placed = true
	}
	return entries, nil
}

func loadCSV(path string) ([]entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("impossible d'ouvrir l'inventaire: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("inventaire %s: en-tête manquant: %w", path, err)
	}

	var entries []entry
	line := 1
	for {
		rec, err := r.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logging.L().Warn("Inventaire: ligne ignorée", "ligne", line, "err", err)
			continue
		}
		if e, ok := parseRow(rec, line); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// parseRow lit une ligne tabulaire. X et Y vides laissent la dalle à placer.
func parseRow(row []string, line int) (entry, bool) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	e := entry{Descriptor: tile.Descriptor{Address: cell(0), MAC: cell(4)}}
	if e.Address == "" {
		return e, false
	}
	if cell(1) != "" || cell(2) != "" {
		x, errX := strconv.Atoi(cell(1))
		y, errY := strconv.Atoi(cell(2))
		if errX != nil || errY != nil {
			logging.L().Warn("Inventaire: position invalide, ligne ignorée", "ligne", line)
			return e, false
		}
		e.X, e.Y, e.placed = x, y, true
	}
	if s := cell(3); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			e.Serial = n
		}
	}
	return e, true
}

// WithZone ajoute la zone aux adresses IPv6 lien-local qui n'en ont pas.
func WithZone(addr, zone string) string {
	if zone == "" || strings.Contains(addr, "%") {
		return addr
	}
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() != nil {
		return addr
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() {
		return addr + "%" + zone
	}
	return addr
}
