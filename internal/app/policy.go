package app

import (
	"time"

	"github.com/dkeye/Meet/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(room *core.Room, member *core.Session) BackpressureAction
	// DeleteOnEmpty reports whether a room is removed once its last participant is gone.
	DeleteOnEmpty() bool
	// ReconnectGrace is how long a dropped user keeps its host flag and join time.
	ReconnectGrace() time.Duration
}

type SimplePolicy struct {
	DeleteEmptyRooms bool
	Grace            time.Duration
}

func (SimplePolicy) OnBackPressure(room *core.Room, member *core.Session) BackpressureAction {
	return KickMember
}

func (p SimplePolicy) DeleteOnEmpty() bool           { return p.DeleteEmptyRooms }
func (p SimplePolicy) ReconnectGrace() time.Duration { return p.Grace }
