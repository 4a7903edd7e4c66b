// internal/config/excel.go
package config

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"betsyMixer/internal/domain/tile"
	"betsyMixer/internal/logging"
)

const inventorySheet = "Dalles"

func loadExcel(path string) ([]entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("impossible d'ouvrir l'inventaire '%s': %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("le fichier Excel ne contient aucune feuille de calcul")
	}
	sheet := sheets[0]
	logging.L().Debug("Inventaire: lecture de la feuille", "feuille", sheet)

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("impossible de lire les lignes de la feuille '%s': %w", sheet, err)
	}

	var entries []entry
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if e, ok := parseRow(row, i+1); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// SaveInventory écrit les dalles, positions comprises, dans un classeur
// relisible par LoadInventory.
func SaveInventory(path string, tiles []tile.Descriptor) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(inventorySheet)
	if err != nil {
		return fmt.Errorf("création de la feuille: %w", err)
	}
	f.SetActiveSheet(index)

	if err := f.SetSheetRow(inventorySheet, "A1", &inventoryHeaders); err != nil {
		return err
	}
	for i, t := range tiles {
		row := []any{t.Address, t.X, t.Y, t.Serial, t.MAC}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(inventorySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(inventorySheet, "A", "A", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(inventorySheet, "B", "E", 12); err != nil {
		return err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("suppression de la feuille par défaut: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("écriture de %s: %w", path, err)
	}
	return nil
}
