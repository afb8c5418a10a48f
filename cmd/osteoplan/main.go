package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"osteoplan/internal/models"
	"osteoplan/pkg/config"
	"osteoplan/pkg/planner"
	"osteoplan/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "osteoplan.yaml", "YAML configuration file (defaults are used when missing)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	inputFile := flag.String("input", "", "Input bone model in STL format")
	phantomName := flag.String("phantom", "", "Synthetic model to bend when no input is given: disc or shaft")
	fiducials := flag.String("fiducials", "", "Fiducials A and B as \"x,y,z;x,y,z\"")
	magnitude := flag.Float64("magnitude", 0, "Signed bend magnitude")
	mode := flag.String("mode", "", "Bend mode: double or single")
	side := flag.String("side", "", "Bent side in single mode: a or b")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config)")
	outputName := flag.String("output", "bent.stl", "Output STL filename")
	sections := flag.String("sections", "", "Comma separated axes of cross sections through the pivot, e.g. \"y,z\"")
	sectionsDir := flag.String("sections-dir", "sections", "Directory to save cross sections")
	sectionSequence := flag.Int("section-sequence", 0, "Also save this many evenly spaced sections along every axis")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save intermediary results during processing")
	intermediaryDir := flag.String("intermediary-dir", "intermediary_results", "Directory to save intermediary results")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags given on the command line override the configuration
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["magnitude"] {
		cfg.Bending.Magnitude = *magnitude
	}
	if set["mode"] {
		cfg.Bending.Mode = *mode
	}
	if set["side"] {
		cfg.Bending.Side = *side
	}
	if set["cores"] {
		cfg.Processing.NumCores = *numCores
	}
	if set["save-intermediary"] {
		cfg.Processing.SaveIntermediaryResults = *saveIntermediary
	}
	if set["sections"] {
		cfg.Output.Sections = splitList(*sections)
	}

	// Validate inputs
	if *inputFile == "" && *phantomName == "" {
		flag.Usage()
		os.Exit(1)
	}

	bend, err := cfg.BendParams()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	bendMode, bendSide, err := cfg.BendMode()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	fids, err := parseFiducials(*fiducials)
	if err != nil {
		log.Fatalf("Invalid fiducials: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("OSTEOTOMY BEND PLANNER")
	fmt.Println("================================")

	params := &planner.Params{
		InputFile: *inputFile,
		Phantom:   *phantomName,
		Disc: planner.DiscParams{
			Radius:   cfg.Phantom.DiscRadius,
			Rings:    cfg.Phantom.DiscRings,
			Segments: cfg.Phantom.DiscSegments,
		},
		Shaft:                   cfg.ShaftParams(),
		Fiducials:               fids,
		MaxFiducialDistance:     cfg.Bending.MaxFiducialDistance,
		Magnitude:               cfg.Bending.Magnitude,
		Mode:                    bendMode,
		Side:                    bendSide,
		Bend:                    bend,
		OutputFile:              *outputName,
		Sections:                cfg.Output.Sections,
		SectionDir:              *sectionsDir,
		SectionImageSize:        cfg.Output.SectionImageSize,
		SaveIntermediaryResults: cfg.Processing.SaveIntermediaryResults,
		IntermediaryDir:         *intermediaryDir,
	}

	p := planner.NewPlanner(params)

	fmt.Println("Starting bend planning...")
	startTime := time.Now()
	if err := p.Process(); err != nil {
		log.Fatalf("Planning failed: %v", err)
	}
	processingTime := time.Since(startTime)

	ax := p.GetAxis()
	fmt.Printf("\nPlanning completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output model saved to: %s\n\n", *outputName)

	fmt.Println("Bend geometry:")
	fmt.Println("=======================================")
	fmt.Printf("Fiducials:  %s  %s\n", formatVec(params.Fiducials[0]), formatVec(params.Fiducials[1]))
	fmt.Printf("Snapped:    %s  %s\n", formatVec(ax.A), formatVec(ax.B))
	fmt.Printf("Pivot:      %s\n", formatVec(ax.F))
	fmt.Printf("Axis:       %s\n", formatVec(ax.Direction))
	fmt.Printf("Mode:       %s", bendMode)
	if bendMode == models.SingleSided {
		fmt.Printf(" (side %s)", bendSide)
	}
	fmt.Printf(", magnitude %g\n", params.Magnitude)

	fmt.Println("\nShape metrics:")
	fmt.Println("=======================================")
	fmt.Print(p.GetMetrics())

	if len(params.Sections) > 0 {
		fmt.Printf("\nCross sections saved to: %s\n", *sectionsDir)
	}

	if *sectionSequence > 0 {
		fmt.Println("\nSaving section sequences along all axes...")
		viewer := visualization.NewViewer(cfg.Output.SectionImageSize)
		viewer.AddMesh(p.GetInput(), visualization.BeforeColor)
		viewer.AddMesh(p.GetResult(), visualization.AfterColor)

		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(*sectionsDir, axis)
			fmt.Printf("Saving %s-axis sections to: %s\n", axis, axisDir)

			if err := viewer.SaveSectionSequence(axis, *sectionSequence, axisDir); err != nil {
				log.Printf("Warning: Failed to save %s-axis sections: %v", axis, err)
			}
		}
	}

	// Print information about intermediary results if saved
	if params.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", *intermediaryDir)
		fmt.Println("The following stages were saved:")
		fmt.Println("- 01_prepared: Cleaned and oriented input mesh")
		fmt.Println("- 02_landmarks: Bend geometry with source and target landmarks")
		fmt.Println("- 03_metrics: Shape metrics")
	}
}

// parseFiducials parses "x,y,z;x,y,z". An empty string yields no fiducials,
// letting a phantom supply its own.
func parseFiducials(s string) ([]r3.Vec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	if len(parts) != 2 {
		return nil, fmt.Errorf("expected two points separated by ';', got %d", len(parts))
	}

	fids := make([]r3.Vec, len(parts))
	for i, part := range parts {
		coords := strings.Split(part, ",")
		if len(coords) != 3 {
			return nil, fmt.Errorf("point %d: expected x,y,z, got %q", i, part)
		}
		var v [3]float64
		for j, c := range coords {
			f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
			if err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
			v[j] = f
		}
		fids[i] = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}
	return fids, nil
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func formatVec(v r3.Vec) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}
