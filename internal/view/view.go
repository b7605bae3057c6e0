// Package view draws simulation frames and reports user quit requests.
package view

import (
	"flapevo/internal/model"
	"flapevo/internal/scape"
)

type Frame struct {
	Geometry   scape.Geometry
	Birds      []model.BirdState
	Pipes      []model.PipeState
	BaseX1     float64
	BaseX2     float64
	Score      int
	Generation int
	Alive      int
}

type Renderer interface {
	Draw(frame Frame)
	QuitRequested() bool
	Close() error
}

// Headless discards frames. It is used for batch training and tests.
type Headless struct {
	Frames int
	Last   Frame
}

func (h *Headless) Draw(frame Frame) {
	h.Frames++
	h.Last = frame
}

func (h *Headless) QuitRequested() bool {
	return false
}

func (h *Headless) Close() error {
	return nil
}

// New returns the renderer named by kind.
func New(kind string, g scape.Geometry) (Renderer, error) {
	switch kind {
	case "", "headless":
		return &Headless{}, nil
	case "terminal":
		return NewTerminal(g)
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}

type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return "unsupported view: " + e.Kind
}
