// Package profile holds the data model spec.md §3 defines for
// deployment planning (C1: ProfileResolver) and implements the
// planning algorithm itself.
package profile

// HostFacts describes the host the manager is running on, used to
// match ImplementationVariants.
type HostFacts struct {
	Machine string // e.g. "x86_64"
	Sysname string // e.g. "Linux"
}

// PropertySet builds the synthetic {processor_name, os_name} property
// set spec.md §4.1 step 1 describes.
func (h HostFacts) PropertySet() map[string]string {
	return map[string]string{
		"processor_name": h.Machine,
		"os_name":        h.Sysname,
	}
}

// NodeProfile is the parsed node profile (DCD) input.
type NodeProfile struct {
	ID             string
	Name           string
	DomainName     string
	ManagerSoftPkg string
	Placements     []Placement
}

// Placement is one DCD entry naming a program to run and its
// instances.
type Placement struct {
	FileRef           string
	Instantiations    []Instantiation
	IsCompositePartOf bool
	ParentInstanceID  string
}

// Instantiation is a single run of a placement with its own
// identifier.
type Instantiation struct {
	ID                string
	UsageName         string
	NamingServiceName string
	Affinity          string
	LoggingConfig     string
	PropertyOverrides []Property
}

// PropertyKind classifies a property by when it is applied, mirroring
// the SCA distinction between factory, exec, construct, and configure
// properties.
type PropertyKind int

const (
	PropertyFactory PropertyKind = iota
	PropertyExec
	PropertyConstruct
	PropertyConfigure
)

// PropertyMode is the read/write access mode of a configure property.
type PropertyMode int

const (
	PropertyReadWrite PropertyMode = iota
	PropertyReadOnly
	PropertyWriteOnly
)

// Property is one property definition or override, joined from a
// component PRF, an implementation-specific PRF, or an instantiation
// override.
type Property struct {
	Name        string
	Value       string
	Kind        PropertyKind
	Mode        PropertyMode
	CommandLine bool // construct properties marked command-line become exec parameters
}

// CodeType is whether an implementation is a standalone executable or
// a shared library loaded into a composite parent's address space.
type CodeType int

const (
	CodeExecutable CodeType = iota
	CodeSharedLibrary
)

// ImplementationVariant is one alternative build of a program, tagged
// with the processor/OS it supports.
type ImplementationVariant struct {
	ID                  string
	Processor           string
	OSName              string
	EntryPoint          string
	CodeType            CodeType
	PropertyFile        string
	SoftpkgDependencies []string // file refs of dependency SPDs
}

// Matches reports whether v is a valid implementation choice on host,
// per the invariant in spec.md §3.
func (v ImplementationVariant) Matches(host HostFacts) bool {
	return v.Processor == host.Machine && v.OSName == host.Sysname
}

// ProgramProfile is a parsed SPD: the software package document for
// one deployable program, along with the PRF-derived property set for
// its component.
type ProgramProfile struct {
	FileRef             string
	Title               string
	Implementations     []ImplementationVariant
	ComponentProperties []Property
	// SCDComponentType is the componenttype the SCD declares for this
	// program: "device", "loadabledevice", "executabledevice", or
	// "service". Empty when the SCD is silent on it.
	SCDComponentType string
}

// IsService reports whether p's SCD declares it a service rather than
// a device. "loadabledevice" and "executabledevice" normalize to
// "device", matching DeviceManager_impl's getDeviceOrService.
func (p *ProgramProfile) IsService() bool {
	switch p.SCDComponentType {
	case "device", "loadabledevice", "executabledevice":
		return false
	case "service":
		return true
	default:
		return false
	}
}

// SelectImplementation returns the first ImplementationVariant in p
// matching host, or false if none does.
func (p *ProgramProfile) SelectImplementation(host HostFacts) (ImplementationVariant, bool) {
	for _, impl := range p.Implementations {
		if impl.Matches(host) {
			return impl, true
		}
	}
	return ImplementationVariant{}, false
}

// ComponentType classifies a DeploymentSpec for the Launcher.
type ComponentType int

const (
	ComponentDevice ComponentType = iota
	ComponentService
	ComponentSharedLibrary
)

func (c ComponentType) String() string {
	switch c {
	case ComponentDevice:
		return "device"
	case ComponentService:
		return "service"
	case ComponentSharedLibrary:
		return "sharedLibrary"
	default:
		return "unknown"
	}
}

// DeploymentSpec is one entry of the deployment plan C1 derives.
type DeploymentSpec struct {
	Placement     Placement
	Instantiation Instantiation
	ProgramProfile *ProgramProfile
	SelectedImpl  ImplementationVariant
	CodePath      string
	ComponentType ComponentType
}

// Warning records a per-placement failure that was skipped rather
// than aborting the whole plan (spec.md §4.1 "Failure semantics").
type Warning struct {
	PlacementFileRef string
	Reason           string
}

func (w Warning) String() string {
	return w.PlacementFileRef + ": " + w.Reason
}
