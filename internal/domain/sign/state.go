// Package sign garde l'état partagé du panneau physique.
package sign

import "sync/atomic"

// DefaultGainLevel est le gain matériel réappliqué après chaque reconnexion.
const DefaultGainLevel = 100

// State est lu par la boucle de dessin et modifié par le moniteur de
// présence. Le gain mémorisé est le dernier envoyé aux dalles.
type State struct {
	online atomic.Bool
	gain   atomic.Uint32
}

func NewState() *State {
	s := &State{}
	s.gain.Store(DefaultGainLevel)
	return s
}

func (s *State) Online() bool { return s.online.Load() }

// SetOnline renvoie true si l'état a changé.
func (s *State) SetOnline(v bool) bool {
	return s.online.Swap(v) != v
}

func (s *State) GainLevel() uint8 { return uint8(s.gain.Load()) }

func (s *State) SetGainLevel(level uint8) { s.gain.Store(uint32(level)) }
