package profile

import (
	"fmt"

	"github.com/sgnls/devicemanager/internal/depgraph"
)

// Loader loads an already-parsed ProgramProfile (SPD) for a file
// reference. The XML parsers that produce these structures are out of
// scope for this repository (spec.md §1); Loader is the seam a real
// SPD reader plugs into.
type Loader interface {
	LoadProgramProfile(fileRef string) (*ProgramProfile, error)
}

// Resolver implements C1: turning a NodeProfile plus host facts into
// an ordered deployment plan.
type Resolver struct {
	Loader Loader
}

// NewResolver returns a Resolver that loads placement program
// profiles through loader.
func NewResolver(loader Loader) *Resolver {
	return &Resolver{Loader: loader}
}

// Plan implements the algorithm in spec.md §4.1. managerProfile is the
// manager's own, already-selected program profile (it is not loaded
// through Loader: the caller owns its own SPD).
func (r *Resolver) Plan(node NodeProfile, managerProfile *ProgramProfile, host HostFacts) (standalone, composite []DeploymentSpec, warnings []Warning, managerImpl ImplementationVariant, err error) {
	// Step 2: select the manager's own implementation. Failure here is
	// the only fatal condition (spec.md §4.1 "Failure semantics").
	managerImpl, ok := managerProfile.SelectImplementation(host)
	if !ok {
		return nil, nil, nil, ImplementationVariant{}, fmt.Errorf("profile: no implementation of manager program %q matches host {%s %s}", managerProfile.FileRef, host.Machine, host.Sysname)
	}

	var all []DeploymentSpec
	compositeParent := map[string]string{} // instantiation ID -> parent instantiation ID, composites only

	for _, placement := range node.Placements {
		spec, warn, skip := r.planPlacement(placement, host)
		if skip != "" {
			warnings = append(warnings, Warning{PlacementFileRef: placement.FileRef, Reason: skip})
			continue
		}
		if warn != "" {
			warnings = append(warnings, Warning{PlacementFileRef: placement.FileRef, Reason: warn})
		}
		all = append(all, spec)
		if placement.IsCompositePartOf && spec.SelectedImpl.CodeType == CodeSharedLibrary {
			compositeParent[instantiationID(placement)] = placement.ParentInstanceID
		}
	}

	// Step 4: classify.
	for _, spec := range all {
		if spec.Placement.IsCompositePartOf && spec.SelectedImpl.CodeType == CodeSharedLibrary {
			composite = append(composite, spec)
		} else {
			standalone = append(standalone, spec)
		}
	}

	// Step 5: order composite[] so that a composite always follows the
	// placements it depends on. standalone[] keeps input order already.
	composite = orderComposites(composite, compositeParent)

	return standalone, composite, warnings, managerImpl, nil
}

func instantiationID(p Placement) string {
	if len(p.Instantiations) == 0 {
		return ""
	}
	return p.Instantiations[0].ID
}

// planPlacement resolves one placement to a DeploymentSpec. skip is
// non-empty when the placement should be dropped from the plan
// entirely; warn is non-empty for a non-fatal note attached to a spec
// that is still included.
func (r *Resolver) planPlacement(placement Placement, host HostFacts) (spec DeploymentSpec, warn string, skip string) {
	pp, err := r.Loader.LoadProgramProfile(placement.FileRef)
	if err != nil {
		return DeploymentSpec{}, "", fmt.Sprintf("failed to load program profile: %v", err)
	}

	impl, ok := pp.SelectImplementation(host)
	if !ok {
		return DeploymentSpec{}, "", fmt.Sprintf("no implementation matches host {%s %s}", host.Machine, host.Sysname)
	}

	if err := r.resolveDependencies(impl, host, map[string]bool{placement.FileRef: true}); err != nil {
		return DeploymentSpec{}, "", fmt.Sprintf("softpkg dependency unresolved: %v", err)
	}

	inst := Instantiation{}
	if len(placement.Instantiations) > 0 {
		inst = placement.Instantiations[0]
	}
	// Apply property overrides from the instantiation onto the component
	// properties, per spec.md §4.1 step 3.
	pp.ComponentProperties = applyOverrides(pp.ComponentProperties, inst.PropertyOverrides)

	componentType := ComponentDevice
	if placement.IsCompositePartOf && impl.CodeType == CodeSharedLibrary {
		componentType = ComponentSharedLibrary
	} else if isServicePlacement(pp) {
		componentType = ComponentService
	}

	return DeploymentSpec{
		Placement:      placement,
		Instantiation:  inst,
		ProgramProfile: pp,
		SelectedImpl:   impl,
		CodePath:       impl.EntryPoint,
		ComponentType:  componentType,
	}, "", ""
}

// isServicePlacement classifies pp by its SCD-declared component
// type, matching DeviceManager_impl::getDeviceOrService: "device",
// "loadabledevice", and "executabledevice" are all devices, only
// "service" is a service. Composite shared-library parts are
// classified separately in planPlacement and never reach here.
func isServicePlacement(pp *ProgramProfile) bool {
	return pp.IsService()
}

// resolveDependencies walks a variant's softpkg dependency closure
// depth-first, treating a repeated file ref on the current path as an
// unresolved cycle (spec.md §4.1 step 3).
func (r *Resolver) resolveDependencies(impl ImplementationVariant, host HostFacts, visiting map[string]bool) error {
	for _, dep := range impl.SoftpkgDependencies {
		if visiting[dep] {
			return fmt.Errorf("dependency cycle at %q", dep)
		}
		depProfile, err := r.Loader.LoadProgramProfile(dep)
		if err != nil {
			return fmt.Errorf("loading dependency %q: %w", dep, err)
		}
		depImpl, ok := depProfile.SelectImplementation(host)
		if !ok {
			return fmt.Errorf("dependency %q has no implementation for host {%s %s}", dep, host.Machine, host.Sysname)
		}
		visiting[dep] = true
		if err := r.resolveDependencies(depImpl, host, visiting); err != nil {
			return err
		}
		delete(visiting, dep)
	}
	return nil
}

func applyOverrides(base []Property, overrides []Property) []Property {
	if len(overrides) == 0 {
		return base
	}
	byName := make(map[string]int, len(base))
	result := append([]Property{}, base...)
	for i, p := range result {
		byName[p.Name] = i
	}
	for _, o := range overrides {
		if i, ok := byName[o.Name]; ok {
			result[i].Value = o.Value
		} else {
			result = append(result, o)
			byName[o.Name] = len(result) - 1
		}
	}
	return result
}

// orderComposites topologically sorts composite so that every entry
// appears after the composite entries its parentInstanceID points at.
// Standalone (already-launched) parents impose no ordering constraint
// here; Supervisor verifies at launch time that they are actually
// live (spec.md §4.8).
func orderComposites(composite []DeploymentSpec, parentOf map[string]string) []DeploymentSpec {
	if len(composite) <= 1 {
		return composite
	}
	byID := make(map[string]DeploymentSpec, len(composite))
	graph := depgraph.NewGraph()
	for _, spec := range composite {
		id := spec.Instantiation.ID
		byID[id] = spec
		graph.AddNode(id)
		if parent, ok := parentOf[id]; ok {
			if _, parentIsComposite := byID[parent]; parentIsComposite || parentIsAmong(composite, parent) {
				graph.AddEdge(id, parent)
			}
		}
	}
	sorted, _ := graph.Sort()
	ordered := make([]DeploymentSpec, 0, len(composite))
	for _, id := range sorted {
		if spec, ok := byID[id]; ok {
			ordered = append(ordered, spec)
		}
	}
	return ordered
}

func parentIsAmong(composite []DeploymentSpec, id string) bool {
	for _, spec := range composite {
		if spec.Instantiation.ID == id {
			return true
		}
	}
	return false
}
