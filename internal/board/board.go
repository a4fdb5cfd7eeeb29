package board

import (
	"math/rand"

	"github.com/wishpop/wishpop/internal/themes"
	"github.com/wishpop/wishpop/internal/types"
)

// StickyPalette is the fixed color set for settled notes. Note colors
// are picked by modulo-indexing a seed into this slice, so its length
// is part of the layout contract.
var StickyPalette = []string{
	"yellow",
	"pink",
	"blue",
	"green",
	"purple",
}

// Partition splits a message set into unpopped balloons and popped
// notes. Every message lands in exactly one of the two slices and
// input order is preserved.
func Partition(msgs []types.Message) (active, settled []types.Message) {
	for _, m := range msgs {
		if m.Popped {
			settled = append(settled, m)
		} else {
			active = append(active, m)
		}
	}
	return active, settled
}

// NoteLayout is the on-board placement of a settled note.
type NoteLayout struct {
	Left     int `json:"left"`     // percent, 10-89
	Top      int `json:"top"`      // percent, 20-79
	Rotation int `json:"rotation"` // degrees, -6..5
	Color    int `json:"color"`    // index into StickyPalette
}

func seed(id string) int {
	var n int
	for _, r := range id {
		n += int(r)
	}
	return n
}

// NoteLayoutFor derives a note's placement from its message id alone.
// The same id always yields the same layout, so a note never moves
// between renders triggered by unrelated state changes.
func NoteLayoutFor(id string) NoteLayout {
	s := seed(id)
	return NoteLayout{
		Left:     s%80 + 10,
		Top:      (s*7)%60 + 20,
		Rotation: s%12 - 6,
		Color:    s % len(StickyPalette),
	}
}

// BalloonMotion holds the transient animation parameters of an
// unpopped balloon. Unlike note layout these are freshly randomized
// each time a balloon mounts; re-randomizing on reappearance is
// intended.
type BalloonMotion struct {
	FloatDuration float64 `json:"float_duration"` // seconds, 12-22
	WobbleX       float64 `json:"wobble_x"`       // vw, -20..20
	Rotation      float64 `json:"rotation"`       // degrees, -10..10
	OffsetX       float64 `json:"offset_x"`       // vw, 10-90
	Color         int     `json:"color"`          // index into the theme balloon palette
}

// RandomMotion draws fresh balloon motion parameters from rng.
func RandomMotion(rng *rand.Rand, paletteSize int) BalloonMotion {
	if paletteSize < 1 {
		paletteSize = 1
	}
	return BalloonMotion{
		FloatDuration: rng.Float64()*10 + 12,
		WobbleX:       rng.Float64()*40 - 20,
		Rotation:      rng.Float64()*20 - 10,
		OffsetX:       rng.Float64()*80 + 10,
		Color:         rng.Intn(paletteSize),
	}
}

// AssignMotions ensures every active message has motion parameters,
// randomizing fresh ones for balloons that just appeared and dropping
// entries for messages no longer active. A balloon that leaves and
// re-enters the active set gets new parameters.
func AssignMotions(active []types.Message, motions map[string]BalloonMotion, rng *rand.Rand, paletteSize int) {
	seen := make(map[string]struct{}, len(active))
	for _, m := range active {
		seen[m.Id] = struct{}{}
		if _, ok := motions[m.Id]; !ok {
			motions[m.Id] = RandomMotion(rng, paletteSize)
		}
	}
	for id := range motions {
		if _, ok := seen[id]; !ok {
			delete(motions, id)
		}
	}
}

// Milestone reports whether a post-pop count crosses a confetti
// threshold.
func Milestone(popped int) bool {
	return popped > 0 && popped%10 == 0
}

// Balloon is the host-side view of an unpopped message.
type Balloon struct {
	Message types.Message `json:"message"`
	Motion  BalloonMotion `json:"motion"`
}

// Note is the host-side view of a popped message.
type Note struct {
	Message types.Message `json:"message"`
	Layout  NoteLayout    `json:"layout"`
}

// HostView is the display-board projection for a host viewer.
type HostView struct {
	Balloons []Balloon    `json:"balloons"`
	Notes    []Note       `json:"notes"`
	Theme    themes.Theme `json:"theme"`
}

// GuestView carries composer state only; guests render no message
// list.
type GuestView struct {
	Theme       themes.Theme `json:"theme"`
	SentPending bool         `json:"sent_pending"`
}

// ProjectHost builds the host view-model from the latest snapshot.
// Balloons carry the motion parameters held in motions, which must
// already cover the active set (see AssignMotions).
func ProjectHost(msgs []types.Message, theme themes.Theme, motions map[string]BalloonMotion) HostView {
	active, settled := Partition(msgs)

	view := HostView{Theme: theme}
	for _, m := range active {
		view.Balloons = append(view.Balloons, Balloon{Message: m, Motion: motions[m.Id]})
	}
	for _, m := range settled {
		view.Notes = append(view.Notes, Note{Message: m, Layout: NoteLayoutFor(m.Id)})
	}
	return view
}
