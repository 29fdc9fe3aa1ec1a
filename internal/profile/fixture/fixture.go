// Package fixture loads NodeProfile and ProgramProfile values from a
// YAML file, for local runs and tests. It is a stand-in for the
// out-of-scope DCD/SPD/PRF XML parsers at the repository's boundary,
// not a replacement for them: production deployments feed
// profile.NodeProfile and profile.ProgramProfile values parsed from
// the real SCA documents through profile.Loader.
package fixture

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sgnls/devicemanager/internal/profile"
)

// Document is the top-level shape of a fixture file: one node profile
// plus every ProgramProfile referenced by its placements (and by
// their softpkg dependencies), keyed by file ref.
type Document struct {
	Node     nodeProfileYAML             `yaml:"node"`
	Programs map[string]programProfileYAML `yaml:"programs"`
}

type nodeProfileYAML struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	DomainName     string           `yaml:"domainName"`
	ManagerSoftPkg string           `yaml:"managerSoftPkg"`
	Placements     []placementYAML  `yaml:"placements"`
}

type placementYAML struct {
	FileRef           string             `yaml:"fileRef"`
	IsCompositePartOf bool               `yaml:"isCompositePartOf"`
	ParentInstanceID  string             `yaml:"parentInstanceId"`
	Instantiations    []instantiationYAML `yaml:"instantiations"`
}

type instantiationYAML struct {
	ID                string            `yaml:"id"`
	UsageName         string            `yaml:"usageName"`
	NamingServiceName string            `yaml:"namingServiceName"`
	Affinity          string            `yaml:"affinity"`
	LoggingConfig     string            `yaml:"loggingConfig"`
	PropertyOverrides map[string]string `yaml:"propertyOverrides"`
}

type programProfileYAML struct {
	Title           string                `yaml:"title"`
	ComponentType   string                `yaml:"componentType"`
	Implementations []implementationYAML  `yaml:"implementations"`
}

type implementationYAML struct {
	ID                  string   `yaml:"id"`
	Processor           string   `yaml:"processor"`
	OSName              string   `yaml:"osName"`
	EntryPoint          string   `yaml:"entryPoint"`
	SharedLibrary       bool     `yaml:"sharedLibrary"`
	PropertyFile        string   `yaml:"propertyFile"`
	SoftpkgDependencies []string `yaml:"softpkgDependencies"`
}

// Load parses path into a Document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("fixture: parsing %s: %w", path, err)
	}
	return &doc, nil
}

// NodeProfile converts the fixture's node section into a
// profile.NodeProfile.
func (d *Document) NodeProfile() profile.NodeProfile {
	np := profile.NodeProfile{
		ID:             d.Node.ID,
		Name:           d.Node.Name,
		DomainName:     d.Node.DomainName,
		ManagerSoftPkg: d.Node.ManagerSoftPkg,
	}
	for _, p := range d.Node.Placements {
		placement := profile.Placement{
			FileRef:           p.FileRef,
			IsCompositePartOf: p.IsCompositePartOf,
			ParentInstanceID:  p.ParentInstanceID,
		}
		for _, inst := range p.Instantiations {
			instantiation := profile.Instantiation{
				ID:                inst.ID,
				UsageName:         inst.UsageName,
				NamingServiceName: inst.NamingServiceName,
				Affinity:          inst.Affinity,
				LoggingConfig:     inst.LoggingConfig,
			}
			for name, value := range inst.PropertyOverrides {
				instantiation.PropertyOverrides = append(instantiation.PropertyOverrides, profile.Property{
					Name: name, Value: value, Kind: profile.PropertyConstruct,
				})
			}
			placement.Instantiations = append(placement.Instantiations, instantiation)
		}
		np.Placements = append(np.Placements, placement)
	}
	return np
}

// Loader adapts a Document to profile.Loader.
type Loader struct {
	doc *Document
}

// NewLoader wraps doc as a profile.Loader.
func NewLoader(doc *Document) *Loader { return &Loader{doc: doc} }

// LoadProgramProfile implements profile.Loader.
func (l *Loader) LoadProgramProfile(fileRef string) (*profile.ProgramProfile, error) {
	raw, ok := l.doc.Programs[fileRef]
	if !ok {
		return nil, fmt.Errorf("fixture: no program profile registered for %q", fileRef)
	}
	pp := &profile.ProgramProfile{FileRef: fileRef, Title: raw.Title, SCDComponentType: raw.ComponentType}
	for _, impl := range raw.Implementations {
		codeType := profile.CodeExecutable
		if impl.SharedLibrary {
			codeType = profile.CodeSharedLibrary
		}
		pp.Implementations = append(pp.Implementations, profile.ImplementationVariant{
			ID:                  impl.ID,
			Processor:           impl.Processor,
			OSName:              impl.OSName,
			EntryPoint:          impl.EntryPoint,
			CodeType:            codeType,
			PropertyFile:        impl.PropertyFile,
			SoftpkgDependencies: impl.SoftpkgDependencies,
		})
	}
	return pp, nil
}
