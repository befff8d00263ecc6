/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"sync"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gohalo/InputParameters"
	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/halo"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/transform"
)

type ModelVerify struct {
	CaseFile  string
	Partition bool
	Profile   bool
}

// VerifyCmd represents the verify command
var VerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Builds the halos for a periodic box case and verifies the exchange",
	Long: `
Builds a periodic box mesh from a YAML case file, constructs the ghost cell
halos on every rank, then runs the coordinate and scalar synchronization and
checks each ghost value against its transformed source.

gohalo verify -I case.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		mv := &ModelVerify{}
		if mv.CaseFile, err = cmd.Flags().GetString("inputCaseFile"); err != nil {
			panic(err)
		}
		mv.Partition, _ = cmd.Flags().GetBool("partition")
		mv.Profile, _ = cmd.Flags().GetBool("profile")
		hp := processVerifyInput(mv)
		RunVerify(mv, hp)
	},
}

func processVerifyInput(mv *ModelVerify) (hp *InputParameters.HaloCaseParameters) {
	var (
		err error
	)
	if len(mv.CaseFile) == 0 {
		err = fmt.Errorf("must supply a case file (-I, --inputCaseFile) in YAML format")
		fmt.Printf("error: %s\n", err.Error())
		exampleFile := `
########################################
Title: "Periodic Channel"
Tolerance: 1.e-6
Ranks: 2
HaloType: extended # Can be "standard"
Nx: 8
Ny: 4
Nz: 4
Lx: 8.
Ly: 4.
Lz: 4.
Periodicities:
  - Name: stream
    Kind: translation
    Displacement: [8., 0., 0.]
    SourceSide: xmin
    TargetSide: xmax
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	var data []byte
	if data, err = ioutil.ReadFile(mv.CaseFile); err != nil {
		panic(err)
	}
	hp = &InputParameters.HaloCaseParameters{}
	if err = hp.Parse(data); err != nil {
		panic(err)
	}
	return
}

func init() {
	rootCmd.AddCommand(VerifyCmd)
	VerifyCmd.Flags().StringP("inputCaseFile", "I", "", "YAML file describing the box, ranks and periodicities")
	VerifyCmd.Flags().BoolP("partition", "p", false, "partition cells with METIS instead of contiguous blocks")
	VerifyCmd.Flags().BoolP("profile", "", false, "write a CPU profile of the halo build and exchange")
}

func RunVerify(mv *ModelVerify, hp *InputParameters.HaloCaseParameters) {
	if mv.Profile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}
	hp.Print()

	var (
		box = mesh.NewBox(hp.Nx, hp.Ny, hp.Nz, hp.Lx, hp.Ly, hp.Lz)
		reg = transform.NewRegistry()
	)
	ids, err := hp.RegisterTransforms(reg)
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	var perios []mesh.Periodicity
	for _, pd := range hp.Periodicities {
		if len(pd.SourceSide) == 0 {
			continue // registry-only definition, e.g. a composition constituent
		}
		perios = append(perios, mesh.Periodicity{
			Transform:   ids[pd.Name],
			SourceFaces: box.BoundaryFaces(pd.SourceSide),
			TargetFaces: box.BoundaryFaces(pd.TargetSide),
		})
	}

	owner := blockOwners(box.NumCells(), hp.Ranks)
	if mv.Partition && hp.Ranks > 1 {
		config := mesh.DefaultPartitionConfig(int32(hp.Ranks))
		if len(hp.PartitionObj) != 0 {
			config.Objective = hp.PartitionObj
		}
		if hp.ImbalanceLimit > 1 {
			config.ImbalanceFactor = hp.ImbalanceLimit
		}
		if owner, err = mesh.PartitionCells(&box.Mesh, config); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	}

	halos, err := mesh.BuildHalos(&box.Mesh, owner, hp.Ranks, reg, perios, hp.Tolerance)
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}

	extent := halo.Standard
	if hp.Extended() {
		extent = halo.Extended
	}
	var (
		net      = comm.NewMailboxNetwork(hp.Ranks)
		wg       sync.WaitGroup
		bad      = make([]int, hp.Ranks)
		rankErrs = make([]error, hp.Ranks)
	)
	for r := 0; r < hp.Ranks; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			bad[r], rankErrs[r] = verifyRank(reg, halos[r], net[r], &box.Mesh, extent)
		}(r)
	}
	wg.Wait()

	var failures int
	for r := 0; r < hp.Ranks; r++ {
		if rankErrs[r] != nil {
			fmt.Printf("rank %d: error: %s\n", r, rankErrs[r].Error())
			os.Exit(1)
		}
		stats := halos[r].Stats()
		fmt.Printf("rank %d: real %d, ghost std %d, ghost ext %d, local couples %d, neighbors %d, mismatches %d\n",
			r, stats["real_cells"], stats["ghost_standard"], stats["ghost_extended"],
			stats["local_couples"], stats["neighbor_ranks"], bad[r])
		failures += bad[r]
	}
	if failures > 0 {
		fmt.Printf("FAIL: %d ghost values disagree with their transformed sources\n", failures)
		os.Exit(1)
	}
	fmt.Println("halo exchange verified")
}

// blockOwners assigns cells to ranks in contiguous global-id blocks.
func blockOwners(n, ranks int) []int {
	owner := make([]int, n)
	for i := 0; i < n; i++ {
		owner[i] = i * ranks / n
	}
	return owner
}

// verifyRank runs the coordinate and scalar synchronization on one rank and
// counts ghost slots whose values disagree with their transformed sources.
func verifyRank(reg *transform.Registry, h *mesh.Halo, c comm.Communicator,
	m *mesh.Mesh, extent halo.Extent) (bad int, err error) {
	s, err := halo.New(reg, h, c)
	if err != nil {
		return 0, err
	}
	var (
		nb     = h.BufferLen(extent == halo.Extended)
		coords = make([]float64, h.BufferLen(true)*3)
		v      = make([]float64, h.BufferLen(true))
	)
	for li, g := range h.RealGlobals {
		p := m.Coords[g]
		coords[3*li], coords[3*li+1], coords[3*li+2] = p[0], p[1], p[2]
		v[li] = float64(g) + 0.5
	}
	if err = s.SyncCoords(coords, extent); err != nil {
		return 0, err
	}
	if err = s.SyncScalar(v, halo.RotaCopy, extent, 1); err != nil {
		return 0, err
	}
	const tol = 1.e-12
	for slot, src := range h.GhostSources {
		if h.NReal+slot >= nb {
			break // extended slots not synced at standard extent
		}
		want := m.Coords[src]
		if tid := h.GhostTransforms[slot]; tid >= 0 {
			want = reg.Get(tid).ApplyToPoint(want)
		}
		i := (h.NReal + slot) * 3
		if math.Abs(coords[i]-want[0]) > tol ||
			math.Abs(coords[i+1]-want[1]) > tol ||
			math.Abs(coords[i+2]-want[2]) > tol {
			bad++
		}
		if v[h.NReal+slot] != float64(src)+0.5 {
			bad++
		}
	}
	return bad, nil
}
