package asi

import (
	"strings"

	"github.com/liuyenting/olive-motion-asi/internal/util"
)

// Family identity tokens checked during Open.
const (
	tokenMS2000Name = "ASI-MS2000"
	tokenTigerBuild = "TIGER_COMM"
)

// Default wire framing shared by the MS-2000 and Tiger families.
const (
	defaultCommandTerm  = "\r"
	defaultResponseTerm = "\r\n"
)

// LX-4000 framing: a fixed bus address on every command, an ETX byte after
// every reply.
const (
	lxAddressPrefix = "2H"
	lxResponseTerm  = "\r\n\x03"
)

// identitySource selects which query carries the family token verified at open.
type identitySource int

const (
	// identityFromName checks the reply of the name query ("N").
	identityFromName identitySource = iota
	// identityFromBuild checks the reply of the build query ("BU").
	identityFromBuild
)

// Dialect captures the framing and identity rules of one ASI controller family.
//
// A single Controller type is parameterized by a Dialect value instead of
// subclassing per family: the address prefix, the terminators, the ":A" marker
// width and the identity rule are data. Framing fields can be overridden per
// configuration with WithAddressPrefix, WithCommandTerminator,
// WithResponseTerminator and WithAckMarkerLen.
type Dialect struct {
	name          string
	addressPrefix string
	commandTerm   []byte
	responseTerm  []byte

	// ackMarkerLen is the number of bytes stripped from the front of a ":A"
	// reply before the payload starts. MS-2000 firmware uses 2, Tiger firmware
	// pads the marker to 3. It is clamped to the reply length while decoding.
	ackMarkerLen int

	idSource      identitySource
	matchIdentity func(string) bool

	// versionSecondField selects the second whitespace field of the version
	// reply (MS-2000 answers "Version: 9.2l") instead of the whole payload.
	versionSecondField bool

	// cardAddressed marks families whose axes live on addressed cards; for
	// them the name query returns the card table instead of a device name.
	cardAddressed bool
}

// MS2000 returns the dialect of the MS-2000 bench-top controller.
func MS2000() Dialect {
	return Dialect{
		name:               "MS2000",
		commandTerm:        []byte(defaultCommandTerm),
		responseTerm:       []byte(defaultResponseTerm),
		ackMarkerLen:       2,
		idSource:           identityFromName,
		matchIdentity:      matchMS2000Name,
		versionSecondField: true,
	}
}

// LX4000 returns the dialect of the LX-4000 controller, an MS-2000 family
// variant that sits on a fixed bus address and appends an ETX byte to replies.
func LX4000() Dialect {
	return Dialect{
		name:               "LX4000",
		addressPrefix:      lxAddressPrefix,
		commandTerm:        []byte(defaultCommandTerm),
		responseTerm:       []byte(lxResponseTerm),
		ackMarkerLen:       2,
		idSource:           identityFromName,
		matchIdentity:      matchMS2000Name,
		versionSecondField: true,
	}
}

// Tiger returns the dialect of the Tiger (TG-1000) modular controller chassis.
func Tiger() Dialect {
	return Dialect{
		name:          "Tiger",
		commandTerm:   []byte(defaultCommandTerm),
		responseTerm:  []byte(defaultResponseTerm),
		ackMarkerLen:  3,
		idSource:      identityFromBuild,
		matchIdentity: matchTigerBuild,
		cardAddressed: true,
	}
}

func matchMS2000Name(name string) bool {
	return strings.HasPrefix(name, tokenMS2000Name)
}

func matchTigerBuild(build string) bool {
	return build == tokenTigerBuild
}

// Name returns the family name, e.g. "MS2000".
func (d *Dialect) Name() string { return d.name }

// AddressPrefix returns the prefix prepended to every command, empty for
// families without bus addressing.
func (d *Dialect) AddressPrefix() string { return d.addressPrefix }

// CommandTerminator returns a copy of the byte sequence appended to commands.
func (d *Dialect) CommandTerminator() []byte {
	return util.CloneSlice(d.commandTerm, 0)
}

// ResponseTerminator returns a copy of the byte sequence ending every reply.
func (d *Dialect) ResponseTerminator() []byte {
	return util.CloneSlice(d.responseTerm, 0)
}

// AckMarkerLen returns the width of the ":A" success marker in bytes.
func (d *Dialect) AckMarkerLen() int { return d.ackMarkerLen }

// CardAddressed reports whether the family parks its axes on addressed cards.
func (d *Dialect) CardAddressed() bool { return d.cardAddressed }

func (d *Dialect) valid() bool {
	return d.name != "" && len(d.commandTerm) > 0 && len(d.responseTerm) > 0 &&
		d.ackMarkerLen >= len(ackMarker) && d.matchIdentity != nil
}
