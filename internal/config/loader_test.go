package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"betsyMixer/internal/domain/tile"
)

const inventoryJSON = `{
  "inventory": [
    {"serial_number": 2, "mac": "00-04-A3-1B-93-2B", "ipv6_link_local": "fe80::204:a3ff:fe1b:932b", "itc_revision": "0.2"},
    {"serial_number": 3, "mac": "00-04-A3-1B-93-2C", "ipv6_link_local": "fe80::204:a3ff:fe1b:932c"},
    {"serial_number": 4, "mac": "00-04-A3-1B-93-2D", "ipv6_link_local": "fe80::204:a3ff:fe1b:932d"}
  ],
  "tilemap": [
    {"ipv6_link_local": "fe80::204:a3ff:fe1b:932c", "start": [36, 18]},
    {"ipv6_link_local": "fe80::204:a3ff:fe1b:932b", "start": [0, 0]},
    {"ipv6_link_local": "fe80::dead", "start": [90, 90]}
  ]
}`

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadInventoryJSON(t *testing.T) {
	path := write(t, "inventory.json", inventoryJSON)
	tiles, err := LoadInventory(path, InventoryOptions{PanelWidth: 54, Zone: "eth0"})
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if len(tiles) != 3 {
		t.Fatalf("expected 3 tiles, got %d", len(tiles))
	}
	if tiles[0].Address != "fe80::204:a3ff:fe1b:932b%eth0" {
		t.Errorf("expected zone appended, got %q", tiles[0].Address)
	}
	if tiles[1].X != 36 || tiles[1].Y != 18 || tiles[1].Serial != 3 {
		t.Errorf("unexpected second tile %+v", tiles[1])
	}
	// Absente de la carte : case 2 de la grille de 3 colonnes.
	if tiles[2].X != 36 || tiles[2].Y != 0 {
		t.Errorf("expected auto-placed at (36,0), got (%d,%d)", tiles[2].X, tiles[2].Y)
	}
}

func TestLoadInventoryYAML(t *testing.T) {
	content := `
inventory:
  - ipv6_link_local: "fe80::1"
    serial_number: 7
tilemap:
  - ipv6_link_local: "fe80::1"
    start: [18, 36]
`
	tiles, err := LoadInventory(write(t, "inv.yaml", content), InventoryOptions{PanelWidth: 162})
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if len(tiles) != 1 || tiles[0].X != 18 || tiles[0].Y != 36 || tiles[0].Serial != 7 {
		t.Errorf("unexpected tiles %+v", tiles)
	}
}

func TestLoadInventoryCSV(t *testing.T) {
	content := "Adresse;X;Y;Serie;MAC\n" +
		"127.0.0.1;0;0;1;aa\n" +
		"127.0.0.2;;;2;bb\n" +
		"127.0.0.3;zz;1;3;cc\n" +
		";1;1;4;dd\n"
	tiles, err := LoadInventory(write(t, "inv.csv", content), InventoryOptions{PanelWidth: 36})
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if len(tiles) != 2 {
		t.Fatalf("expected 2 valid rows, got %+v", tiles)
	}
	if tiles[1].X != 18 || tiles[1].Y != 0 || tiles[1].MAC != "bb" {
		t.Errorf("expected second tile auto-placed at (18,0), got %+v", tiles[1])
	}
}

func TestSaveInventoryRoundTrip(t *testing.T) {
	in := []tile.Descriptor{
		{Address: "fe80::1%eth0", X: 0, Y: 0, Serial: 1, MAC: "aa"},
		{Address: "fe80::2%eth0", X: 144, Y: 90, Serial: 2, MAC: "bb"},
	}
	path := filepath.Join(t.TempDir(), "inv.xlsx")
	if err := SaveInventory(path, in); err != nil {
		t.Fatalf("SaveInventory: %v", err)
	}
	out, err := LoadInventory(path, InventoryOptions{PanelWidth: 162})
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d tiles, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("tile %d: expected %+v, got %+v", i, in[i], out[i])
		}
	}
}

func TestSaveInventoryWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.xlsx")
	if err := SaveInventory(path, []tile.Descriptor{{Address: "fe80::1", Serial: 1}}); err != nil {
		t.Fatalf("SaveInventory: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// La feuille par défaut est supprimée, les largeurs sont posées.
	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != inventorySheet {
		t.Errorf("expected only %q, got %v", inventorySheet, sheets)
	}
	if w, err := f.GetColWidth(inventorySheet, "A"); err != nil || w != 32 {
		t.Errorf("expected column A width 32, got %v %v", w, err)
	}

	missing := filepath.Join(t.TempDir(), "absent", "inv.xlsx")
	if err := SaveInventory(missing, nil); err == nil {
		t.Error("expected error when the directory does not exist")
	}
}

func TestLoadInventoryErrors(t *testing.T) {
	if _, err := LoadInventory(write(t, "inv.txt", "x"), InventoryOptions{}); err == nil {
		t.Error("expected unsupported extension error")
	}
	if _, err := LoadInventory(write(t, "inv.json", `{"inventory": []}`), InventoryOptions{}); err == nil {
		t.Error("expected empty inventory error")
	}
}

func TestWithZone(t *testing.T) {
	tests := []struct{ addr, want string }{
		{"fe80::1", "fe80::1%eth0"},
		{"fe80::1%wlan0", "fe80::1%wlan0"},
		{"ff02::1", "ff02::1%eth0"},
		{"2001:db8::1", "2001:db8::1"},
		{"192.168.1.10", "192.168.1.10"},
	}
	for _, tt := range tests {
		if got := WithZone(tt.addr, "eth0"); got != tt.want {
			t.Errorf("WithZone(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestAutoPlace(t *testing.T) {
	tiles := make([]tile.Descriptor, 5)
	placed := []bool{false, true, false, false, false}
	tiles[1].X, tiles[1].Y = 99, 99
	if n := AutoPlace(tiles, placed, 36); n != 4 {
		t.Errorf("expected 4 placed, got %d", n)
	}
	if tiles[1].X != 99 {
		t.Error("expected explicit placement kept")
	}
	if tiles[4].X != 0 || tiles[4].Y != 36 {
		t.Errorf("expected (0,36), got (%d,%d)", tiles[4].X, tiles[4].Y)
	}
}
