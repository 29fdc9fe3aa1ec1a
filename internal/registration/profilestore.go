package registration

import (
	"context"
	"fmt"

	"github.com/sgnls/devicemanager/internal/profile"
)

// PlanProfileStore implements ProfileStore over an already-computed
// deployment plan, keyed the way spec.md §4.4 step 4 requires: by the
// child's stable identifier for devices, by usage name for services.
// Built once from the same ProfileResolver.Plan output the Supervisor
// spawns from, so a registering child's profile always matches the
// implementation that was actually launched.
type PlanProfileStore struct {
	byIdentifier map[string]*profile.ProgramProfile
	byUsageName  map[string]*profile.ProgramProfile
}

// NewPlanProfileStore indexes every DeploymentSpec in standalone and
// composite by its instantiation ID and, for services, its usage name.
func NewPlanProfileStore(standalone, composite []profile.DeploymentSpec) *PlanProfileStore {
	store := &PlanProfileStore{
		byIdentifier: make(map[string]*profile.ProgramProfile),
		byUsageName:  make(map[string]*profile.ProgramProfile),
	}
	for _, specs := range [][]profile.DeploymentSpec{standalone, composite} {
		for _, spec := range specs {
			id := spec.Instantiation.ID
			if id == "" {
				id = spec.Placement.FileRef
			}
			store.byIdentifier[id] = spec.ProgramProfile
			if spec.Instantiation.UsageName != "" {
				store.byUsageName[spec.Instantiation.UsageName] = spec.ProgramProfile
			}
		}
	}
	return store
}

func (p *PlanProfileStore) ProgramProfileForDevice(ctx context.Context, identifier string) (*profile.ProgramProfile, error) {
	pp, ok := p.byIdentifier[identifier]
	if !ok {
		return nil, fmt.Errorf("registration: no deployment plan entry for device %q", identifier)
	}
	return pp, nil
}

func (p *PlanProfileStore) ProgramProfileForService(ctx context.Context, usageName string) (*profile.ProgramProfile, error) {
	pp, ok := p.byUsageName[usageName]
	if !ok {
		return nil, fmt.Errorf("registration: no deployment plan entry for service %q", usageName)
	}
	return pp, nil
}

var _ ProfileStore = (*PlanProfileStore)(nil)
