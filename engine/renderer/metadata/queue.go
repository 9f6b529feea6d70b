package metadata

import (
	"fmt"
	"math/bits"
	"strings"

	"golang.org/x/exp/slices"
)

/**
 * @brief The abstract roles a device queue can play.
 */
type QueueRole uint8

const (
	/** @brief Main graphics submission queue. */
	QueueRoleGraphics QueueRole = iota
	/** @brief Main compute submission queue. */
	QueueRoleCompute
	/** @brief Main transfer queue. */
	QueueRoleTransfer
	/** @brief Queue used to present swapchain images. */
	QueueRolePresent
	/** @brief Transfer queue running alongside graphics/compute work. */
	QueueRoleAsyncTransfer
	/** @brief Compute queue running alongside graphics work. */
	QueueRoleAsyncCompute

	QueueRoleCount
)

var queueRoleNames = [QueueRoleCount]string{
	QueueRoleGraphics:      "graphics",
	QueueRoleCompute:       "compute",
	QueueRoleTransfer:      "transfer",
	QueueRolePresent:       "present",
	QueueRoleAsyncTransfer: "async_transfer",
	QueueRoleAsyncCompute:  "async_compute",
}

// DefaultQueuePriority is the order in which main roles claim families.
var DefaultQueuePriority = []QueueRole{
	QueueRoleGraphics,
	QueueRoleCompute,
	QueueRoleTransfer,
	QueueRolePresent,
}

func AllQueueRoles() []QueueRole {
	roles := make([]QueueRole, 0, QueueRoleCount)
	for r := QueueRole(0); r < QueueRoleCount; r++ {
		roles = append(roles, r)
	}
	return roles
}

func (r QueueRole) String() string {
	if r < QueueRoleCount {
		return queueRoleNames[r]
	}
	return fmt.Sprintf("QueueRole(%d)", uint8(r))
}

func (r QueueRole) IsValid() bool {
	return r < QueueRoleCount
}

// IsAsync reports whether the role wants a family of its own.
func (r QueueRole) IsAsync() bool {
	return r == QueueRoleAsyncTransfer || r == QueueRoleAsyncCompute
}

// RequiredFlags is the capability a family must expose to serve the role.
func (r QueueRole) RequiredFlags() QueueFlags {
	switch r {
	case QueueRoleGraphics:
		return QueueFlagGraphics
	case QueueRoleCompute, QueueRoleAsyncCompute:
		return QueueFlagCompute
	case QueueRoleTransfer, QueueRoleAsyncTransfer:
		return QueueFlagTransfer
	case QueueRolePresent:
		return QueueFlagPresent
	}
	return 0
}

func ParseQueueRole(s string) (QueueRole, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for r, n := range queueRoleNames {
		if n == name {
			return QueueRole(r), nil
		}
	}
	return 0, fmt.Errorf("unknown queue role %q", s)
}

func (r QueueRole) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid queue role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *QueueRole) UnmarshalText(text []byte) error {
	role, err := ParseQueueRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

/**
 * @brief Operations supported by a queue family.
 */
type QueueFlags uint32

const (
	QueueFlagGraphics QueueFlags = 1 << iota
	QueueFlagCompute
	QueueFlagTransfer
	QueueFlagPresent
)

var queueFlagNames = []struct {
	flag QueueFlags
	name string
}{
	{QueueFlagGraphics, "graphics"},
	{QueueFlagCompute, "compute"},
	{QueueFlagTransfer, "transfer"},
	{QueueFlagPresent, "present"},
}

func (f QueueFlags) Has(other QueueFlags) bool {
	return f&other == other
}

// Effective adds the capabilities a family has without reporting them:
// graphics and compute families always accept transfer work.
func (f QueueFlags) Effective() QueueFlags {
	if f&(QueueFlagGraphics|QueueFlagCompute) != 0 {
		return f | QueueFlagTransfer
	}
	return f
}

func (f QueueFlags) Count() int {
	return bits.OnesCount32(uint32(f))
}

func (f QueueFlags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, n := range queueFlagNames {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

func ParseQueueFlags(names []string) (QueueFlags, error) {
	var flags QueueFlags
	for _, name := range names {
		found := false
		for _, n := range queueFlagNames {
			if strings.EqualFold(strings.TrimSpace(name), n.name) {
				flags |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown queue flag %q", name)
		}
	}
	return flags, nil
}

/**
 * @brief A hardware queue family as reported by the driver.
 */
type QueueFamilyProperties struct {
	/** @brief Operations the family supports, including presentation. */
	Flags QueueFlags
	/** @brief Number of queues the family exposes. */
	QueueCount uint32
}

/**
 * @brief The concrete queue a role was assigned to.
 */
type QueueAssignment struct {
	FamilyIndex uint32
	QueueIndex  uint32
}

func (a QueueAssignment) String() string {
	return fmt.Sprintf("family %d queue %d", a.FamilyIndex, a.QueueIndex)
}

// QueueRoleMap is the outcome of queue selection. Roles that could not be
// served and were optional are absent.
type QueueRoleMap map[QueueRole]QueueAssignment

func (m QueueRoleMap) Get(role QueueRole) (QueueAssignment, bool) {
	a, ok := m[role]
	return a, ok
}

// Roles lists assigned roles in declaration order.
func (m QueueRoleMap) Roles() []QueueRole {
	roles := make([]QueueRole, 0, len(m))
	for r := range m {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	return roles
}

/**
 * @brief How many queues logical device creation must request from a family.
 */
type QueueFamilyRequest struct {
	FamilyIndex uint32
	QueueCount  uint32
}

// Families returns one request per family in use, ordered by family index.
func (m QueueRoleMap) Families() []QueueFamilyRequest {
	counts := map[uint32]uint32{}
	for _, a := range m {
		if a.QueueIndex+1 > counts[a.FamilyIndex] {
			counts[a.FamilyIndex] = a.QueueIndex + 1
		}
	}
	families := make([]uint32, 0, len(counts))
	for f := range counts {
		families = append(families, f)
	}
	slices.Sort(families)

	out := make([]QueueFamilyRequest, 0, len(families))
	for _, f := range families {
		out = append(out, QueueFamilyRequest{FamilyIndex: f, QueueCount: counts[f]})
	}
	return out
}

/**
 * @brief A queue retrieved from the logical device.
 */
type Queue struct {
	Role       QueueRole
	Assignment QueueAssignment
	/** @brief The backend-specific queue. */
	InternalData interface{}
}
