package view

import (
	"fmt"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"

	"flapevo/internal/scape"
)

var (
	pipeStyle   = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	birdStyle   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	groundStyle = tcell.StyleDefault.Foreground(tcell.ColorOlive)
	statsStyle  = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
)

// Terminal renders a scaled character-cell picture of the playfield. Key
// events are read on a separate goroutine that only sets the quit flag.
type Terminal struct {
	screen   tcell.Screen
	geometry scape.Geometry
	quit     atomic.Bool
	done     chan struct{}
}

func NewTerminal(g scape.Geometry) (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("create screen: %w", err)
	}
	return NewTerminalWithScreen(screen, g)
}

func NewTerminalWithScreen(screen tcell.Screen, g scape.Geometry) (*Terminal, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("init screen: %w", err)
	}
	screen.HideCursor()
	screen.Clear()

	t := &Terminal{screen: screen, geometry: g, done: make(chan struct{})}
	go t.pollEvents()
	return t, nil
}

func (t *Terminal) pollEvents() {
	defer close(t.done)
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
				(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
				t.quit.Store(true)
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *Terminal) QuitRequested() bool {
	return t.quit.Load()
}

func (t *Terminal) Draw(frame Frame) {
	cols, rows := t.screen.Size()
	if cols <= 0 || rows <= 1 {
		return
	}
	g := frame.Geometry
	if g.ScreenWidth == 0 {
		g = t.geometry
	}
	// Last row is reserved for the stats line.
	field := rows - 1
	sx := float64(cols) / g.ScreenWidth
	sy := float64(field) / g.ScreenHeight
	col := func(x float64) int { return int(x * sx) }
	row := func(y float64) int { return int(y * sy) }

	t.screen.Clear()

	for _, p := range frame.Pipes {
		left, right := col(p.X), col(p.X+g.PipeWidth)
		gapTop, gapBottom := row(p.Height), row(p.Height+g.PipeGap)
		for x := max(left, 0); x < min(right, cols); x++ {
			for y := 0; y < field; y++ {
				if y < gapTop || y >= gapBottom {
					t.screen.SetContent(x, y, '#', nil, pipeStyle)
				}
			}
		}
	}

	ground := row(g.GroundY)
	for x := 0; x < cols; x++ {
		for y := ground; y < field; y++ {
			ch := '='
			if (x+col(-frame.BaseX1))%4 == 0 {
				ch = '-'
			}
			t.screen.SetContent(x, y, ch, nil, groundStyle)
		}
	}

	for _, b := range frame.Birds {
		x, y := col(b.X), row(b.Y)
		if x >= 0 && x < cols && y >= 0 && y < field {
			t.screen.SetContent(x, y, '@', nil, birdStyle)
		}
	}

	stats := fmt.Sprintf(" score %d  gen %d  alive %d  [esc/q quit]", frame.Score, frame.Generation, frame.Alive)
	for i, r := range stats {
		if i >= cols {
			break
		}
		t.screen.SetContent(i, rows-1, r, nil, statsStyle)
	}
	t.screen.Show()
}

func (t *Terminal) Close() error {
	t.screen.Fini()
	<-t.done
	return nil
}
