package scape

import (
	"math"
	"math/rand"
)

type Bird struct {
	X         float64
	Y         float64
	Tilt      float64
	Velocity  float64
	TickCount int
	Height    float64
}

func NewBird(x, y float64) *Bird {
	return &Bird{X: x, Y: y, Height: y}
}

func (b *Bird) Jump(g Geometry) {
	b.Velocity = g.JumpVelocity
	b.TickCount = 0
	b.Height = b.Y
}

// Move advances one tick of ballistic motion: d = v*t + gravity*t^2, capped
// at MaxFall downward, with a small extra lift while rising.
func (b *Bird) Move(g Geometry) {
	b.TickCount++
	t := float64(b.TickCount)
	d := b.Velocity*t + g.Gravity*t*t
	if d >= g.MaxFall {
		d = g.MaxFall
	}
	if d < 0 {
		d -= 2
	}
	b.Y += d

	if d < 0 || b.Y < b.Height+g.TiltClearance {
		if b.Tilt < g.MaxRotation {
			b.Tilt = g.MaxRotation
		}
	} else if b.Tilt > -90 {
		b.Tilt -= g.RotVelocity
	}
}

type Pipe struct {
	X      float64
	Height float64
	Top    float64
	Bottom float64
	Passed bool
}

// NewPipe spawns a pipe at x with a gap centre drawn from [PipeMinY, PipeMaxY).
func NewPipe(rng *rand.Rand, g Geometry, x float64) *Pipe {
	height := float64(g.PipeMinY)
	if span := g.PipeMaxY - g.PipeMinY; span > 0 && rng != nil {
		height += float64(rng.Intn(span))
	}
	p := &Pipe{X: x}
	p.SetHeight(g, height)
	return p
}

// SetHeight fixes the vertical extents: top = height - sprite height,
// bottom = height + gap.
func (p *Pipe) SetHeight(g Geometry, height float64) {
	p.Height = height
	p.Top = height - g.PipeHeight
	p.Bottom = height + g.PipeGap
}

func (p *Pipe) Move(g Geometry) {
	p.X -= g.PipeVelocity
}

func (p *Pipe) OffScreen(g Geometry) bool {
	return p.X+g.PipeWidth < 0
}

// Base is the looping ground made of two segments of equal width.
type Base struct {
	X1 float64
	X2 float64
}

func NewBase(g Geometry) *Base {
	return &Base{X1: 0, X2: g.BaseWidth}
}

func (b *Base) Move(g Geometry) {
	b.X1 -= g.BaseVelocity
	b.X2 -= g.BaseVelocity
	if b.X1+g.BaseWidth < 0 {
		b.X1 = b.X2 + g.BaseWidth
	}
	if b.X2+g.BaseWidth < 0 {
		b.X2 = b.X1 + g.BaseWidth
	}
}

// Collider decides whether a bird overlaps a pipe. Pixel-accurate masks are
// left to renderers; the simulation only needs a consistent answer.
type Collider interface {
	Collide(g Geometry, bird *Bird, pipe *Pipe) bool
}

// BoxCollider treats bird and pipe halves as axis-aligned rectangles.
type BoxCollider struct{}

func (BoxCollider) Collide(g Geometry, bird *Bird, pipe *Pipe) bool {
	y := math.Round(bird.Y)
	if bird.X+g.BirdWidth <= pipe.X || bird.X >= pipe.X+g.PipeWidth {
		return false
	}
	return y < pipe.Height || y+g.BirdHeight > pipe.Bottom
}
