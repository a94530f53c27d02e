package main

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/harmonica"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/spf13/cobra"
	"github.com/taigrr/prt/pkg/lightsector"
	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/render"
	"github.com/taigrr/prt/pkg/scene"
)

const viewHelp = `Controls:
  Mouse drag  - Orbit the camera
  Scroll      - Zoom in/out
  W/S/A/D     - Pitch and yaw
  Space       - Random spin
  R           - Reset view
  G           - Toggle probe lighting
  B           - Run one more relight bounce
  P           - Toggle probe markers
  N           - Toggle the probe network
  C           - Toggle the albedo atlas preview
  F           - Save the current frame to prtbake-<time>.png
  L           - Aim the sun (move mouse, click to set, Esc to cancel)
  ?           - Toggle HUD overlay
  +/-         - Adjust zoom
  Esc         - Quit (or cancel light mode)`

func newViewCmd(opts *options) *cobra.Command {
	var (
		fps int
		bg  string
	)
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Bake, then preview the probe lit scene in the terminal",
		Long:  "Bake the scene and open an interactive terminal preview lit by the baked probes.\n\n" + viewHelp,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fps <= 0 {
				return fmt.Errorf("--fps must be positive")
			}
			var r, g, b uint8
			if _, err := fmt.Sscanf(bg, "%d,%d,%d", &r, &g, &b); err != nil {
				return fmt.Errorf("parse --bg %q: %w", bg, err)
			}
			bk, err := opts.bakeSector(cmd.Context(), true)
			if err != nil {
				return err
			}
			return runViewer(cmd.Context(), bk, fps, render.RGB(r, g, b))
		},
	}
	cmd.Flags().IntVar(&fps, "fps", 30, "target frame rate")
	cmd.Flags().StringVar(&bg, "bg", "30,30,40", "background colour (R,G,B)")
	return cmd
}

// RotationAxis tracks position and velocity for one rotation axis with spring decay
type RotationAxis struct {
	Position  float64
	Velocity  float64
	velSpring harmonica.Spring
	velAccel  float64
}

// NewRotationAxis creates an axis whose velocity decays on a critically damped spring.
func NewRotationAxis(fps int) RotationAxis {
	return RotationAxis{
		velSpring: harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0),
	}
}

// Update applies velocity to position and eases velocity toward 0.
func (a *RotationAxis) Update() {
	a.Position += a.Velocity
	a.Velocity, a.velAccel = a.velSpring.Update(a.Velocity, a.velAccel, 0)
}

// orbitState is the camera orbit around the scene centre.
type orbitState struct {
	Pitch, Yaw RotationAxis
	Distance   float64
	fps        int
	home       float64
}

func newOrbitState(fps int, distance float64) *orbitState {
	o := &orbitState{fps: fps, home: distance}
	o.Reset()
	return o
}

func (o *orbitState) Update() {
	o.Pitch.Update()
	o.Yaw.Update()
}

func (o *orbitState) ApplyImpulse(pitch, yaw float64) {
	o.Pitch.Velocity += pitch
	o.Yaw.Velocity += yaw
}

func (o *orbitState) Zoom(step float64) {
	o.Distance = math.Max(o.home*0.1, math.Min(o.home*4, o.Distance+step))
}

func (o *orbitState) Reset() {
	o.Pitch = NewRotationAxis(o.fps)
	o.Yaw = NewRotationAxis(o.fps)
	o.Pitch.Position = 0.35
	o.Yaw.Position = 0.6
	o.Distance = o.home
}

// viewState holds the toggles of the preview.
type viewState struct {
	GI          bool
	ShowProbes  bool
	ShowNetwork bool
	ShowAtlas   bool
	ShowHUD     bool
	LightMode   bool
	Relighting  bool
	PendingSun  math3d.Vec3
	Bounces     int
}

// screenToSunDir maps a screen position onto the upper hemisphere and
// returns the direction the sun shines along.
func screenToSunDir(screenX, screenY, width, height int) math3d.Vec3 {
	nx := (float64(screenX)/float64(width))*2 - 1
	nz := (float64(screenY)/float64(height))*2 - 1
	lenSq := nx*nx + nz*nz
	if lenSq > 1 {
		l := math.Sqrt(lenSq)
		nx /= l
		nz /= l
		lenSq = 1
	}
	toSun := math3d.V3(nx, math.Sqrt(1-lenSq), nz)
	if toSun.Y < 0.05 {
		toSun.Y = 0.05
	}
	return toSun.Normalize().Negate()
}

var (
	hudBar    = lipgloss.NewStyle().Background(lipgloss.Color("#1C1C24"))
	hudFPS    = hudBar.Foreground(lipgloss.Color("#5FFF87"))
	hudTitle  = hudBar.Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	hudCount  = hudBar.Foreground(lipgloss.Color("#5FD7FF")).Bold(true)
	hudToggle = hudBar.Foreground(lipgloss.Color("#E4E4E4"))
	hudHint   = hudBar.Foreground(lipgloss.Color("#FFD75F")).Faint(true)
	hudLight  = hudBar.Foreground(lipgloss.Color("#FFD75F")).Bold(true)
)

// HUD renders an overlay with bake info and the current toggles.
type HUD struct {
	title     string
	probes    int
	surfels   int
	fps       float64
	fpsFrames int
	fpsTime   time.Time
}

// NewHUD creates a new HUD
func NewHUD(title string, probes, surfels int) *HUD {
	return &HUD{title: title, probes: probes, surfels: surfels, fpsTime: time.Now()}
}

// UpdateFPS updates the FPS counter (call once per frame)
func (h *HUD) UpdateFPS() {
	h.fpsFrames++
	elapsed := time.Since(h.fpsTime)
	if elapsed >= time.Second {
		h.fps = float64(h.fpsFrames) / elapsed.Seconds()
		h.fpsFrames = 0
		h.fpsTime = time.Now()
	}
}

func check(on bool) string {
	if on {
		return "[✓]"
	}
	return "[ ]"
}

func drawText(scr uv.Screen, x, y, width int, s string) {
	uv.NewStyledString(s).Draw(scr, uv.Rect(max(x, 0), y, width, 1))
}

// Draw writes the HUD rows over the top and bottom of area.
func (h *HUD) Draw(scr uv.Screen, area uv.Rectangle, vs viewState) {
	width := area.Dx()
	bottom := area.Max.Y - 1

	if vs.LightMode {
		msg := hudLight.Render(" ◉ SUN MODE - Move mouse to aim, click to relight, Esc to cancel ")
		drawText(scr, (width-lipgloss.Width(msg))/2, bottom, width, msg)
		return
	}
	if !vs.ShowHUD {
		return
	}

	drawText(scr, 0, area.Min.Y, width, hudFPS.Render(fmt.Sprintf(" %.0f FPS ", h.fps)))
	title := hudTitle.Render(" " + h.title + " ")
	drawText(scr, (width-lipgloss.Width(title))/2, area.Min.Y, width, title)
	counts := hudCount.Render(fmt.Sprintf(" %d probes %d surfels ", h.probes, h.surfels))
	drawText(scr, width-lipgloss.Width(counts), area.Min.Y, width, counts)

	status := fmt.Sprintf(" %s GI  %s Probes  %s Network  %s Atlas  bounces %d ",
		check(vs.GI), check(vs.ShowProbes), check(vs.ShowNetwork), check(vs.ShowAtlas), vs.Bounces)
	if vs.Relighting {
		status += "relighting… "
	}
	drawText(scr, 0, bottom, width, hudToggle.Render(status))
	hint := hudHint.Render(" L: aim sun ")
	drawText(scr, width-lipgloss.Width(hint), bottom, width, hint)
}

// tonemap compresses HDR radiance into the 0-1 range the framebuffer stores.
func tonemap(c math3d.Vec3) math3d.Vec3 {
	return math3d.V3(c.X/(1+c.X), c.Y/(1+c.Y), c.Z/(1+c.Z))
}

// probeShader lights vertices with the unshadowed sun plus the irradiance
// interpolated from the probe network.
func probeShader(sector *lightsector.LightSector, sun scene.Light, gi bool) render.VertexShader {
	toSun := sun.Direction.Normalize().Negate()
	sunLight := sun.Colour.Scale(sun.Luminance)
	return func(pos, normal, albedo math3d.Vec3) math3d.Vec3 {
		light := sunLight.Scale(math.Max(0, normal.Dot(toSun)))
		if gi {
			light = light.Add(sector.SampleIrradiance(pos, normal))
		}
		return tonemap(albedo.Mul(light))
	}
}

// probeColour shows a probe's average irradiance.
func probeColour(p lightsector.Probe) render.Color {
	var sum math3d.Vec3
	for _, c := range p.Irradiance {
		sum = sum.Add(c)
	}
	return render.ColorFromVec3(tonemap(sum.Div(math3d.AxisCount)).Scale(0.7).Add(math3d.Splat3(0.3)))
}

func drawNetwork(wf *render.Wireframe, cells []lightsector.ProbeSearchCell, probes []lightsector.Probe) {
	for _, c := range cells {
		n, colour := 4, render.ColorCyan
		if lightsector.IsOuterCell(c) {
			n, colour = 3, render.ColorMagenta
		}
		for i := range n {
			for j := i + 1; j < n; j++ {
				wf.DrawLine3D(probes[c.ProbeVertices[i]].Pos, probes[c.ProbeVertices[j]].Pos, colour)
			}
		}
	}
}

func runViewer(parent context.Context, b *baked, fps int, bg render.Color) error {
	term := uv.DefaultTerminal()

	width, height, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}

	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(width, height)

	fmt.Fprint(os.Stdout, "\x1b[?1003h") // any-event mouse tracking
	fmt.Fprint(os.Stdout, "\x1b[?1006h") // SGR extended mouse mode

	fb := render.NewFramebuffer(width, height*2)

	lo, hi, _ := b.scene.Bounds()
	centre := lo.Add(hi).Scale(0.5)
	radius := math.Max(hi.Sub(lo).Len()*0.5, 1)

	camera := render.NewCamera()
	camera.SetAspectRatio(float64(fb.Width) / float64(fb.Height))
	camera.SetFOV(math.Pi / 3)
	camera.SetClipPlanes(radius*0.01, radius*10)

	rasterizer := render.NewRasterizer(camera, fb)
	rasterizer.CullBackfaces = false
	wireframe := render.NewWireframe(camera, fb)

	orbit := newOrbitState(fps, radius*2.2)
	hud := NewHUD("prtbake", len(b.sector.Probes()), len(b.sector.Surfels()))
	atlas := b.result.Capture.Albedo.Image()

	var mu sync.Mutex
	current := b.scene
	vs := viewState{GI: true, ShowHUD: true}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// relight runs one bounce against sc off the event goroutine.
	var relights sync.WaitGroup
	relight := func(sc *scene.Scene) {
		mu.Lock()
		if vs.Relighting {
			mu.Unlock()
			return
		}
		vs.Relighting = true
		mu.Unlock()

		relights.Go(func() {
			err := b.sector.Relight(sc)
			mu.Lock()
			defer mu.Unlock()
			vs.Relighting = false
			if err != nil {
				lightsector.Logger().Error("relight failed", "error", err)
				return
			}
			current = sc
			vs.Bounces++
		})
	}

	inputTorque := struct{ pitch, yaw float64 }{}
	const torqueStrength = 3.0

	var snapshot bool
	var mouseDown bool
	var lastMouseX, lastMouseY int

	go func() {
		for ev := range term.Events() {
			mu.Lock()
			switch ev := ev.(type) {
			case uv.WindowSizeEvent:
				width, height = ev.Width, ev.Height
				term.Erase()
				term.Resize(width, height)
				fb = render.NewFramebuffer(width, height*2)
				rasterizer = render.NewRasterizer(camera, fb)
				rasterizer.CullBackfaces = false
				wireframe = render.NewWireframe(camera, fb)
				camera.SetAspectRatio(float64(fb.Width) / float64(fb.Height))

			case uv.KeyPressEvent:
				switch {
				case ev.MatchString("escape"):
					if vs.LightMode {
						vs.LightMode = false
					} else {
						cancel()
					}
				case ev.MatchString("ctrl+c"):
					cancel()
				case ev.MatchString("r"):
					orbit.Reset()
				case ev.MatchString("w", "up"):
					inputTorque.pitch = torqueStrength
				case ev.MatchString("s", "down"):
					inputTorque.pitch = -torqueStrength
				case ev.MatchString("a", "left"):
					inputTorque.yaw = -torqueStrength
				case ev.MatchString("d", "right"):
					inputTorque.yaw = torqueStrength
				case ev.MatchString("space"):
					orbit.ApplyImpulse((rand.Float64()-0.5)*0.3, (rand.Float64()-0.5)*1.5)
				case ev.MatchString("+", "="):
					orbit.Zoom(-radius * 0.1)
				case ev.MatchString("-", "_"):
					orbit.Zoom(radius * 0.1)
				case ev.MatchString("g"):
					vs.GI = !vs.GI
				case ev.MatchString("p"):
					vs.ShowProbes = !vs.ShowProbes
				case ev.MatchString("n"):
					vs.ShowNetwork = !vs.ShowNetwork
				case ev.MatchString("c"):
					vs.ShowAtlas = !vs.ShowAtlas
				case ev.MatchString("f"):
					snapshot = true
				case ev.MatchString("b"):
					sc := current
					mu.Unlock()
					relight(sc)
					mu.Lock()
				case ev.MatchString("l"):
					vs.LightMode = true
					vs.PendingSun = current.Lights[0].Direction
				case ev.MatchString("?"), ev.MatchString("shift+/"):
					vs.ShowHUD = !vs.ShowHUD
				}

			case uv.KeyReleaseEvent:
				switch {
				case ev.MatchString("w"), ev.MatchString("up"), ev.MatchString("s"), ev.MatchString("down"):
					inputTorque.pitch = 0
				case ev.MatchString("a"), ev.MatchString("left"), ev.MatchString("d"), ev.MatchString("right"):
					inputTorque.yaw = 0
				}

			case uv.MouseClickEvent:
				if vs.LightMode {
					vs.LightMode = false
					sc := *current
					sun := sc.Lights[0]
					sun.Direction = vs.PendingSun
					sc.Lights = []scene.Light{sun}
					mu.Unlock()
					relight(&sc)
					mu.Lock()
				} else {
					mouseDown = true
					lastMouseX, lastMouseY = ev.X, ev.Y
				}

			case uv.MouseReleaseEvent:
				mouseDown = false

			case uv.MouseMotionEvent:
				if vs.LightMode {
					vs.PendingSun = screenToSunDir(ev.X, ev.Y, width, height)
				} else if mouseDown {
					dx := ev.X - lastMouseX
					dy := ev.Y - lastMouseY
					orbit.ApplyImpulse(float64(dy)*0.01, float64(-dx)*0.02)
					lastMouseX, lastMouseY = ev.X, ev.Y
				}

			case uv.MouseWheelEvent:
				switch ev.Button {
				case uv.MouseWheelUp:
					orbit.Zoom(-radius * 0.1)
				case uv.MouseWheelDown:
					orbit.Zoom(radius * 0.1)
				}
			}
			mu.Unlock()
		}
	}()

	targetDuration := time.Second / time.Duration(fps)
	lastFrame := time.Now()

	cleanup := func() {
		relights.Wait()
		fmt.Fprint(os.Stdout, "\x1b[?1003l")
		fmt.Fprint(os.Stdout, "\x1b[?1006l")
		term.ExitAltScreen()
		term.ShowCursor()
		term.Shutdown(context.Background())
	}

	for {
		select {
		case <-ctx.Done():
			cleanup()
			return nil
		default:
		}

		now := time.Now()
		dt := min(now.Sub(lastFrame).Seconds(), 0.1)
		lastFrame = now

		mu.Lock()
		orbit.ApplyImpulse(inputTorque.pitch*dt*0.3, inputTorque.yaw*dt)
		inputTorque.pitch *= 0.9
		inputTorque.yaw *= 0.9
		orbit.Update()
		orbit.Pitch.Position = math.Max(-1.5, math.Min(1.5, orbit.Pitch.Position))
		camera.Orbit(centre, orbit.Distance, orbit.Yaw.Position, orbit.Pitch.Position)

		sun := current.Lights[0]
		if vs.LightMode {
			sun.Direction = vs.PendingSun
		}
		state := vs
		frame, raster, wf := fb, rasterizer, wireframe

		frame.Clear(bg)
		raster.ClearDepth()
		shade := probeShader(b.sector, sun, state.GI)
		for _, m := range current.Models {
			raster.DrawModel(m, shade)
		}

		probes := b.sector.Probes()
		if state.ShowNetwork {
			drawNetwork(wf, b.sector.ProbeNetwork(), probes)
		}
		if state.ShowProbes {
			for _, p := range probes {
				wf.DrawMarker(p.Pos, 2, probeColour(p))
			}
		}
		if state.LightMode {
			tip := centre.Sub(sun.Direction.Scale(radius))
			wf.DrawLine3D(centre, tip, render.ColorYellow)
			wf.DrawPoint(tip, radius*0.1, render.ColorWhite)
		}
		if state.ShowAtlas {
			w := frame.Width / 3
			h := w * atlas.Bounds().Dy() / max(atlas.Bounds().Dx(), 1)
			frame.DrawImage(atlas, image.Rect(frame.Width-w, frame.Height-h-2, frame.Width, frame.Height-2))
		}

		if snapshot {
			snapshot = false
			path := fmt.Sprintf("prtbake-%s.png", now.Format("20060102-150405"))
			if err := frame.SavePNG(path); err != nil {
				lightsector.Logger().Error("save frame", "error", err)
			}
		}

		hud.UpdateFPS()
		term.Draw(uv.DrawableFunc(func(scr uv.Screen, area uv.Rectangle) {
			frame.Draw(scr, area)
			hud.Draw(scr, area, state)
		}))
		mu.Unlock()

		if err := term.Display(); err != nil {
			cleanup()
			return fmt.Errorf("display: %w", err)
		}

		if elapsed := time.Since(now); elapsed < targetDuration {
			time.Sleep(targetDuration - elapsed)
		}
	}
}
