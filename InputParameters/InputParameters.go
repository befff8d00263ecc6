package InputParameters

import (
	"fmt"
	"math"

	"github.com/ghodss/yaml"

	"github.com/notargets/gohalo/transform"
)

// PeriodicityDef describes one periodic boundary pair from the YAML input
// file. Kind is "translation", "rotation" or "mixed"; Components names
// previously defined periodicities composed in order when Kind is mixed.
// SourceSide/TargetSide name the box boundaries the periodicity couples
// (xmin, xmax, ymin, ymax, zmin, zmax).
type PeriodicityDef struct {
	Name         string     `yaml:"Name"`
	Kind         string     `yaml:"Kind"`
	Displacement [3]float64 `yaml:"Displacement"`
	Center       [3]float64 `yaml:"Center"`
	Axis         [3]float64 `yaml:"Axis"`
	AngleDeg     float64    `yaml:"AngleDeg"`
	Components   []string   `yaml:"Components"`
	SourceSide   string     `yaml:"SourceSide"`
	TargetSide   string     `yaml:"TargetSide"`
}

// Parameters obtained from the YAML input file
type HaloCaseParameters struct {
	Title          string           `yaml:"Title"`
	Tolerance      float64          `yaml:"Tolerance"`
	Ranks          int              `yaml:"Ranks"`
	HaloType       string           `yaml:"HaloType"` // "standard" or "extended"
	Nx             int              `yaml:"Nx"`
	Ny             int              `yaml:"Ny"`
	Nz             int              `yaml:"Nz"`
	Lx             float64          `yaml:"Lx"`
	Ly             float64          `yaml:"Ly"`
	Lz             float64          `yaml:"Lz"`
	Periodicities  []PeriodicityDef `yaml:"Periodicities"`
	PartitionObj   string           `yaml:"PartitionObjective"`
	ImbalanceLimit float32          `yaml:"ImbalanceLimit"`
}

func (hp *HaloCaseParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, hp); err != nil {
		return err
	}
	if hp.Ranks < 1 {
		hp.Ranks = 1
	}
	if hp.Tolerance <= 0 {
		hp.Tolerance = 1.e-8
	}
	if hp.HaloType == "" {
		hp.HaloType = "standard"
	}
	if hp.HaloType != "standard" && hp.HaloType != "extended" {
		return fmt.Errorf("unknown halo type [%s], must be standard or extended", hp.HaloType)
	}
	if hp.Nx < 1 || hp.Ny < 1 || hp.Nz < 1 {
		return fmt.Errorf("invalid box dimensions %dx%dx%d", hp.Nx, hp.Ny, hp.Nz)
	}
	return nil
}

// Extended reports whether the case asks for the two-layer halo.
func (hp *HaloCaseParameters) Extended() bool {
	return hp.HaloType == "extended"
}

// RegisterTransforms defines every periodicity in the registry, in file
// order, converting angles from degrees. Mixed periodicities compose
// previously named ones and must come after their components in the file.
func (hp *HaloCaseParameters) RegisterTransforms(reg *transform.Registry) (ids map[string]int, err error) {
	ids = make(map[string]int, len(hp.Periodicities))
	for _, pd := range hp.Periodicities {
		var id int
		switch pd.Kind {
		case "translation":
			id, err = reg.DefineTranslation(pd.Displacement)
		case "rotation":
			id, err = reg.DefineRotation(pd.Center, pd.Axis, pd.AngleDeg*math.Pi/180)
		case "mixed":
			parts := make([]int, len(pd.Components))
			for i, name := range pd.Components {
				cid, ok := ids[name]
				if !ok {
					return nil, fmt.Errorf("periodicity [%s] composes unknown periodicity [%s]",
						pd.Name, name)
				}
				parts[i] = cid
			}
			id, err = reg.Compose(parts)
		default:
			return nil, fmt.Errorf("periodicity [%s] has unknown kind [%s]", pd.Name, pd.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("periodicity [%s]: %w", pd.Name, err)
		}
		ids[pd.Name] = id
	}
	return ids, nil
}

func (hp *HaloCaseParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", hp.Title)
	fmt.Printf("%8.2e\t\t= Tolerance\n", hp.Tolerance)
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", hp.Ranks)
	fmt.Printf("[%s]\t\t= Halo Type\n", hp.HaloType)
	fmt.Printf("[%dx%dx%d]\t\t\t= Box Cells\n", hp.Nx, hp.Ny, hp.Nz)
	for _, pd := range hp.Periodicities {
		switch pd.Kind {
		case "translation":
			fmt.Printf("Periodicity[%s] = translation %v\n", pd.Name, pd.Displacement)
		case "rotation":
			fmt.Printf("Periodicity[%s] = rotation %.2f deg about %v at %v\n",
				pd.Name, pd.AngleDeg, pd.Axis, pd.Center)
		default:
			fmt.Printf("Periodicity[%s] = %s of %v\n", pd.Name, pd.Kind, pd.Components)
		}
	}
}
