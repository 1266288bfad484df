package link

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SpecDomain is the domain every spec known to the default registry is published under.
const SpecDomain = "https://specs.apollo.dev"

// Identity names a feature spec independently of its version.
type Identity struct {
	Domain string
	Name   string
}

var (
	LinkIdentity         = Identity{Domain: SpecDomain, Name: "link"}
	CoreIdentity         = Identity{Domain: SpecDomain, Name: "core"}
	FederationIdentity   = Identity{Domain: SpecDomain, Name: "federation"}
	JoinIdentity         = Identity{Domain: SpecDomain, Name: "join"}
	TagIdentity          = Identity{Domain: SpecDomain, Name: "tag"}
	InaccessibleIdentity = Identity{Domain: SpecDomain, Name: "inaccessible"}
)

func (id Identity) String() string {
	return id.Domain + "/" + id.Name
}

// IsLinkLike reports whether id names the spec that defines @link itself (in either of its names).
func (id Identity) IsLinkLike() bool {
	return id == LinkIdentity || id == CoreIdentity
}

type Version struct {
	Major uint32
	Minor uint32
}

// ParseVersion parses "v1.0" style versions.
func ParseVersion(s string) (Version, error) {
	if !strings.HasPrefix(s, "v") {
		return Version{}, fmt.Errorf("version %q must start with \"v\"", s)
	}
	parts := strings.Split(s[1:], ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("version %q must be of the form vX.Y", s)
	}
	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Version{}, fmt.Errorf("version %q has an invalid major number", s)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Version{}, fmt.Errorf("version %q has an invalid minor number", s)
	}

	return Version{Major: uint32(major), Minor: uint32(minor)}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
}

// Compare orders versions lexicographically on (major, minor).
func (v Version) Compare(other Version) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	default:
		return 0
	}
}

// SatisfiedBy reports whether a spec requested at v can be served by w.
func (v Version) SatisfiedBy(w Version) bool {
	return w.Major == v.Major && w.Minor >= v.Minor
}

// URL is a parsed link url: an identity, a version and an optional element.
// "https://specs.apollo.dev/federation/v2.3/@key" has element "@key".
type URL struct {
	Identity Identity
	Version  Version
	Element  string
}

func ParseURL(raw string) (URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URL{}, fmt.Errorf("invalid link url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return URL{}, fmt.Errorf("invalid link url %q: missing scheme or host", raw)
	}

	var segments []string
	for _, segment := range strings.Split(u.Path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) < 2 {
		return URL{}, fmt.Errorf("invalid link url %q: expected a name and a version", raw)
	}

	var element string
	last := segments[len(segments)-1]
	if _, err := ParseVersion(last); err != nil {
		element = last
		segments = segments[:len(segments)-1]
		if len(segments) < 2 {
			return URL{}, fmt.Errorf("invalid link url %q: expected a name and a version", raw)
		}
	}

	version, err := ParseVersion(segments[len(segments)-1])
	if err != nil {
		return URL{}, fmt.Errorf("invalid link url %q: %w", raw, err)
	}
	name := segments[len(segments)-2]
	domain := u.Scheme + "://" + u.Host
	if prefix := segments[:len(segments)-2]; len(prefix) != 0 {
		domain += "/" + strings.Join(prefix, "/")
	}

	return URL{
		Identity: Identity{Domain: domain, Name: name},
		Version:  version,
		Element:  element,
	}, nil
}

func (u URL) String() string {
	s := u.Identity.String() + "/" + u.Version.String()
	if u.Element != "" {
		s += "/" + u.Element
	}
	return s
}
