package discovery

import (
	"fmt"
	"strings"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/txt"
)

// Descriptor describes a DNS-SD service. Empty strings, a zero port and a
// nil TXT record mean the field is absent.
type Descriptor struct {
	// Name is the service instance name (e.g., "Office Printer").
	Name string

	// Type is the service type (e.g., "_ipp._tcp").
	Type string

	// Host is the resolved host name or address.
	Host string

	// Port is the service port.
	Port uint16

	// TXT holds the service attributes.
	TXT txt.Record
}

// Identity is the de-duplication key of a discovered service.
// Host, port and TXT are not part of it: engines report the same service
// several times with varying details.
type Identity struct {
	Name string
	Type string
}

func (i Identity) String() string {
	return i.Name + "." + i.Type
}

// IsZero reports whether every field is absent.
func (d Descriptor) IsZero() bool {
	return d.Name == "" && d.Type == "" && d.Host == "" && d.Port == 0 && d.TXT == nil
}

// Identity returns the de-duplication key of d using its normalized type.
func (d Descriptor) Identity() Identity {
	return Identity{Name: d.Name, Type: ServiceType(d.Type)}
}

// Normalized returns a copy of d with a normalized service type and a
// private copy of the TXT record.
func (d Descriptor) Normalized() Descriptor {
	d.Type = ServiceType(d.Type)
	d.TXT = d.TXT.Clone()
	return d
}

// SameService reports whether d and o identify the same service.
func (d Descriptor) SameService(o Descriptor) bool {
	return d.Identity() == o.Identity()
}

func (d Descriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q %s", d.Name, ServiceType(d.Type))
	if d.Host != "" {
		fmt.Fprintf(&b, " at %s", d.Host)
		if d.Port != 0 {
			fmt.Fprintf(&b, ":%d", d.Port)
		}
	}
	if len(d.TXT) > 0 {
		fmt.Fprintf(&b, " txt=%v", txt.Strings(d.TXT))
	}
	return b.String()
}

// ValidateForResolve checks that d names a service to resolve.
func (d Descriptor) ValidateForResolve() error {
	if d.IsZero() || d.Name == "" || NormalizeType(d.Type) == "" {
		return nsderr.New(nsderr.IllegalArgument, "expected service info with service name, type")
	}
	return ValidateType(d.Type)
}

// ValidateForRegister checks that d can be advertised.
func (d Descriptor) ValidateForRegister() error {
	if d.IsZero() || d.Name == "" || NormalizeType(d.Type) == "" || d.Port == 0 {
		return nsderr.New(nsderr.IllegalArgument, "expected service info with service name, type and port")
	}
	if len(d.Name) > MaxInstanceNameLen {
		return nsderr.Newf(nsderr.IllegalArgument, "service name exceeds %d bytes", MaxInstanceNameLen)
	}
	if err := ValidateType(d.Type); err != nil {
		return err
	}
	_, err := txt.Encode(d.TXT)
	return err
}

// MaxInstanceNameLen is the DNS label limit.
const MaxInstanceNameLen = 63
