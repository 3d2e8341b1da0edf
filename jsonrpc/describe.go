package jsonrpc

import "github.com/google/uuid"

// ServiceDescriptionVersion is the service description format version.
const ServiceDescriptionVersion = "1.0"

// Info is the service metadata reported by system.describe.
type Info struct {
	Name    string // e.g. "Search API"
	ID      string // unique URI; derived from Name when empty
	Version string
	Summary string
	Help    string // documentation URL
	Address string // endpoint URL
}

// DefaultName is used when Info.Name is empty.
const DefaultName = "JSON-RPC Service"

func (i Info) withDefaults() Info {
	if i.Name == "" {
		i.Name = DefaultName
	}
	if i.ID == "" {
		i.ID = ServiceID(i.Name)
	}
	return i
}

// ServiceID returns a stable URN for a service name: the name-based (SHA-1)
// UUID of name in the URL namespace.
func ServiceID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).URN()
}

// Description is the result of system.describe.
type Description struct {
	SDVersion string            `json:"sdversion"`
	Name      string            `json:"name"`
	ID        string            `json:"id"`
	Version   string            `json:"version"`
	Summary   string            `json:"summary"`
	Help      string            `json:"help"`
	Address   string            `json:"address"`
	Procs     []ProcDescription `json:"procs"`
}

// Describe returns the service description. Procedures appear sorted by
// name, so repeated calls yield identical output.
func (s *Service) Describe() Description {
	ds := s.registry.Describable()
	procs := make([]ProcDescription, len(ds))
	for i, d := range ds {
		procs[i] = d.Description()
	}
	return Description{
		SDVersion: ServiceDescriptionVersion,
		Name:      s.info.Name,
		ID:        s.info.ID,
		Version:   s.info.Version,
		Summary:   s.info.Summary,
		Help:      s.info.Help,
		Address:   s.info.Address,
		Procs:     procs,
	}
}
