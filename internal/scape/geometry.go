package scape

// Geometry holds every fixed dimension and velocity of the simulation. The
// defaults reproduce the 500x800 playfield with 2x scaled sprites.
type Geometry struct {
	ScreenWidth  float64
	ScreenHeight float64
	GroundY      float64

	PipeWidth    float64
	PipeHeight   float64
	PipeGap      float64
	PipeVelocity float64
	PipeMinY     int
	PipeMaxY     int
	FirstPipeX   float64
	NextPipeX    float64

	BaseWidth    float64
	BaseVelocity float64

	BirdWidth     float64
	BirdHeight    float64
	BirdStartY    float64
	JumpVelocity  float64
	Gravity       float64
	MaxFall       float64
	MaxRotation   float64
	RotVelocity   float64
	TiltClearance float64
}

func DefaultGeometry() Geometry {
	return Geometry{
		ScreenWidth:  500,
		ScreenHeight: 800,
		GroundY:      730,

		PipeWidth:    104,
		PipeHeight:   640,
		PipeGap:      200,
		PipeVelocity: 5,
		PipeMinY:     50,
		PipeMaxY:     450,
		FirstPipeX:   700,
		NextPipeX:    600,

		BaseWidth:    672,
		BaseVelocity: 5,

		BirdWidth:     68,
		BirdHeight:    48,
		BirdStartY:    350,
		JumpVelocity:  -10.5,
		Gravity:       1.5,
		MaxFall:       16,
		MaxRotation:   25,
		RotVelocity:   20,
		TiltClearance: 50,
	}
}
