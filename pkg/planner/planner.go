// Package planner runs a complete bend plan: it loads or generates a bone
// model, derives the bend from two fiducials, bakes the deformation into the
// model and reports how the shape changed.
package planner

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"osteoplan/internal/models"
	"osteoplan/pkg/bending"
	"osteoplan/pkg/metrics"
	"osteoplan/pkg/mesh"
	"osteoplan/pkg/phantom"
	"osteoplan/pkg/stl"
	"osteoplan/pkg/visualization"
)

// ErrNoInput is returned when neither an input file nor a phantom is given
var ErrNoInput = errors.New("planner: no input model")

// DiscParams describes the flat disc phantom
type DiscParams struct {
	Radius   float64
	Rings    int
	Segments int
}

// Params holds the planning parameters.
// These parameters control the input/output and processing configuration.
type Params struct {
	// InputFile is an STL model. It takes precedence over Phantom.
	InputFile string

	// Phantom selects a synthetic model, "disc" or "shaft", when no
	// InputFile is given
	Phantom string
	Disc    DiscParams
	Shaft   phantom.ShaftParams

	// Fiducials are the two picked points A0 and B0. When empty, a phantom
	// supplies its own pair.
	Fiducials []r3.Vec

	// MaxFiducialDistance rejects fiducials farther from the surface.
	// Zero disables the check.
	MaxFiducialDistance float64

	// Magnitude is the signed bend magnitude
	Magnitude float64
	Mode      models.BendMode
	Side      models.BendSide

	// Bend holds the session parameters
	Bend bending.Params

	// OutputFile is the path where the bent model will be saved in STL format
	OutputFile string

	// Sections lists the axes ("x", "y", "z") of cross sections rendered
	// through the bend pivot into SectionDir, comparing the model before and
	// after the bend
	Sections         []string
	SectionDir       string
	SectionImageSize int

	// SaveIntermediaryResults determines whether to save intermediary results:
	// the prepared mesh and the landmark sets.
	SaveIntermediaryResults bool

	// IntermediaryDir is the directory where intermediary results will be saved.
	// Only used when SaveIntermediaryResults is true.
	IntermediaryDir string
}

// LandmarkDump is the YAML record of a bend written with the intermediary results
type LandmarkDump struct {
	Mode      string  `yaml:"mode"`
	Side      string  `yaml:"side"`
	Magnitude float64 `yaml:"magnitude"`

	Fiducials []r3.Vec `yaml:"fiducials"`
	A         r3.Vec   `yaml:"a"`
	B         r3.Vec   `yaml:"b"`
	C         r3.Vec   `yaml:"c"`
	D         r3.Vec   `yaml:"d"`
	Pivot     r3.Vec   `yaml:"pivot"`
	Axis      r3.Vec   `yaml:"axis"`

	Source []r3.Vec `yaml:"source"`
	Target []r3.Vec `yaml:"target"`
}

// Planner handles one bend plan.
//
// The process consists of several steps:
// 1. Loading the model from STL or generating a phantom
// 2. Validating the fiducials against the surface
// 3. Initializing the bend session (mesh preparation, axis, landmarks)
// 4. Fitting and baking the deformation
// 5. Saving the bent model
// 6. Calculating shape metrics
// 7. Rendering cross sections
//
// A Planner runs once; create a new one for every plan.
type Planner struct {
	params *Params

	input   *mesh.Mesh
	result  *mesh.Mesh
	session *bending.Session

	axis    *bending.Axis
	metrics *metrics.ShapeMetrics
}

// NewPlanner creates a new planner instance with the provided parameters.
func NewPlanner(params *Params) *Planner {
	return &Planner{
		params:  params,
		session: bending.NewSession(params.Bend),
	}
}

func (p *Planner) logf(format string, args ...any) {
	if p.params.Bend.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// Process runs the complete planning pipeline
func (p *Planner) Process() error {
	// Create intermediary directory if needed
	if p.params.SaveIntermediaryResults {
		if err := os.MkdirAll(p.params.IntermediaryDir, 0755); err != nil {
			return fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	p.logf("Step 1: Loading model...")
	if err := p.loadModel(); err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	p.logf("Step 2: Validating fiducials...")
	if p.params.MaxFiducialDistance > 0 {
		if err := bending.ValidateFiducials(p.params.Fiducials, p.input, p.params.MaxFiducialDistance); err != nil {
			return fmt.Errorf("invalid fiducials: %w", err)
		}
	}

	p.logf("Step 3: Initializing bend...")
	p.session.SetProgressCallback(func(completed, total int, message string) {
		p.logf("  [%d/%d] %s", completed, total, message)
	})
	if err := p.session.Initialize(p.params.Fiducials, p.input); err != nil {
		return fmt.Errorf("failed to initialize bend: %w", err)
	}
	p.axis = p.session.Axis()

	if p.params.SaveIntermediaryResults {
		if err := p.saveIntermediaryResult("01_prepared", p.session.Mesh(), 0); err != nil {
			p.logf("Warning: Failed to save prepared mesh: %v", err)
		}
	}

	p.logf("Step 4: Bending (%s, side %s, magnitude %g)...", p.params.Mode, p.params.Side, p.params.Magnitude)
	p.session.SetBendType(p.params.Mode)
	p.session.SetBendSide(p.params.Side)
	if _, err := p.session.Transform(p.params.Magnitude); err != nil {
		p.session.Cancel()
		return fmt.Errorf("failed to build transform: %w", err)
	}
	if p.params.SaveIntermediaryResults {
		if err := p.saveIntermediaryResult("02_landmarks", p.landmarkDump(), 0); err != nil {
			p.logf("Warning: Failed to save landmarks: %v", err)
		}
	}
	result, err := p.session.Finalize(p.params.Magnitude)
	if err != nil {
		p.session.Cancel()
		return fmt.Errorf("failed to bend model: %w", err)
	}
	p.result = result

	p.logf("Step 5: Saving bent model...")
	if p.params.OutputFile != "" {
		if err := stl.SaveMesh(p.params.OutputFile, p.result); err != nil {
			return fmt.Errorf("failed to save STL: %w", err)
		}
	}

	p.logf("Step 6: Calculating shape metrics...")
	m, err := metrics.Compare(p.input, p.result, p.params.Bend.NumCores)
	if err != nil {
		return fmt.Errorf("failed to compare shapes: %w", err)
	}
	p.metrics = m
	if p.params.SaveIntermediaryResults {
		if err := p.saveIntermediaryResult("03_metrics", m, 0); err != nil {
			p.logf("Warning: Failed to save metrics: %v", err)
		}
	}

	if len(p.params.Sections) > 0 && p.params.SectionDir != "" {
		p.logf("Step 7: Rendering cross sections...")
		if err := p.renderSections(); err != nil {
			return fmt.Errorf("failed to render sections: %w", err)
		}
	}

	return nil
}

// loadModel reads the input STL or builds the selected phantom and fills in
// the phantom's default fiducials when none were given
func (p *Planner) loadModel() error {
	if p.params.InputFile != "" {
		m, err := stl.LoadMesh(p.params.InputFile)
		if err != nil {
			return err
		}
		p.input = m
		p.logf("Loaded %d points and %d triangles from %s", m.NumPoints(), m.NumCells(), p.params.InputFile)
		return nil
	}

	var (
		m         *mesh.Mesh
		fiducials []r3.Vec
		err       error
	)
	switch strings.ToLower(p.params.Phantom) {
	case "disc":
		d := p.params.Disc
		m, err = phantom.Disc(d.Radius, d.Rings, d.Segments)
		fiducials = []r3.Vec{{X: -0.1 * d.Radius}, {X: 0.1 * d.Radius}}
	case "shaft":
		m, err = phantom.Shaft(p.params.Shaft)
		z := p.params.Shaft.ShaftRadius
		fiducials = []r3.Vec{{X: -0.1 * p.params.Shaft.Length, Z: z}, {X: 0.1 * p.params.Shaft.Length, Z: z}}
	case "":
		return ErrNoInput
	default:
		return fmt.Errorf("unknown phantom %q (must be disc or shaft)", p.params.Phantom)
	}
	if err != nil {
		return err
	}

	p.input = m
	if len(p.params.Fiducials) == 0 {
		p.params.Fiducials = fiducials
	}
	p.logf("Generated %s phantom with %d points and %d triangles", p.params.Phantom, m.NumPoints(), m.NumCells())
	return nil
}

func (p *Planner) landmarkDump() *LandmarkDump {
	ax := p.session.Axis()
	return &LandmarkDump{
		Mode:      p.params.Mode.String(),
		Side:      p.params.Side.String(),
		Magnitude: p.params.Magnitude,
		Fiducials: p.params.Fiducials,
		A:         ax.A,
		B:         ax.B,
		C:         ax.C,
		D:         ax.D,
		Pivot:     ax.F,
		Axis:      ax.Direction,
		Source:    p.session.SourceLandmarks().Points,
		Target:    p.session.TargetLandmarks(),
	}
}

// renderSections renders one section per requested axis through the pivot,
// one goroutine per section
func (p *Planner) renderSections() error {
	if err := os.MkdirAll(p.params.SectionDir, 0755); err != nil {
		return fmt.Errorf("failed to create section directory: %w", err)
	}
	viewer := visualization.NewViewer(p.params.SectionImageSize)
	viewer.AddMesh(p.input, visualization.BeforeColor)
	viewer.AddMesh(p.result, visualization.AfterColor)

	type sectionResult struct {
		index int
		img   image.Image
		err   error
	}
	resultChan := make(chan sectionResult)

	for i, axis := range p.params.Sections {
		go func(index int, axis string) {
			var position float64
			switch strings.ToLower(axis) {
			case "x":
				position = p.axis.F.X
			case "y":
				position = p.axis.F.Y
			case "z":
				position = p.axis.F.Z
			}
			img, err := viewer.ExtractSection(axis, position)
			resultChan <- sectionResult{index: index, img: img, err: err}
		}(i, axis)
	}

	var errs []error
	for range p.params.Sections {
		res := <-resultChan
		if res.err != nil {
			errs = append(errs, fmt.Errorf("section %s: %w", p.params.Sections[res.index], res.err))
			continue
		}
		filename := filepath.Join(p.params.SectionDir, fmt.Sprintf("section_%s.png", p.params.Sections[res.index]))
		if err := visualization.SavePNG(res.img, filename); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// saveIntermediaryResult saves an intermediary result of the plan.
// Meshes are written as STL and anything else as YAML.
func (p *Planner) saveIntermediaryResult(stage string, data any, index int) error {
	// Skip if saving intermediary results is disabled
	if !p.params.SaveIntermediaryResults {
		return nil
	}

	stageDir := filepath.Join(p.params.IntermediaryDir, stage)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %w", err)
	}

	switch v := data.(type) {
	case *mesh.Mesh:
		filename := filepath.Join(stageDir, fmt.Sprintf("%03d.stl", index))
		if err := stl.SaveMesh(filename, v); err != nil {
			return fmt.Errorf("failed to save mesh: %w", err)
		}

	default:
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %T: %w", v, err)
		}
		filename := filepath.Join(stageDir, fmt.Sprintf("%03d.yaml", index))
		if err := os.WriteFile(filename, out, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", filename, err)
		}
	}

	return nil
}

// GetMetrics returns the shape metrics of the last run
func (p *Planner) GetMetrics() *metrics.ShapeMetrics {
	return p.metrics
}

// GetInput returns the model as loaded or generated, before preparation
func (p *Planner) GetInput() *mesh.Mesh {
	return p.input
}

// GetResult returns the bent model of the last run
func (p *Planner) GetResult() *mesh.Mesh {
	return p.result
}

// GetAxis returns the bend geometry of the last run
func (p *Planner) GetAxis() *bending.Axis {
	return p.axis
}
