package config

import "betsyMixer/internal/domain/tile"

// AutoPlace range les dalles non placées sur une grille ligne par ligne de
// la largeur du panneau : la dalle d'indice i prend la case i. Renvoie le
// nombre de dalles placées.
func AutoPlace(tiles []tile.Descriptor, placed []bool, panelWidth int) int {
	cols := max(1, panelWidth/tile.Width)
	n := 0
	for i := range tiles {
		if i < len(placed) && placed[i] {
			continue
		}
		tiles[i].X = (i % cols) * tile.Width
		tiles[i].Y = (i / cols) * tile.Height
		n++
	}
	return n
}
