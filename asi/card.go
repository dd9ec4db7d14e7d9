package asi

import (
	"fmt"
	"strconv"
	"strings"
)

// Card character tags whose cards expose motion axes. Other tags (LED
// drivers, shutters, filter wheels) are listed in the card table but do not
// answer motion commands.
const (
	CharacterScanXYLED = "SCAN_XY_LED"
	CharacterStdZF     = "STD_ZF"
)

// Card describes one plug-in card in a Tiger controller chassis.
type Card struct {
	// Address is the card's numeric bus address.
	Address int
	// Function is the firmware function descriptor, a comma-separated list of
	// "label:motor-type" pairs for motion cards.
	Function string
	// Version is the card firmware version string.
	Version string
	// Character is the hardware capability tag.
	Character string
}

// HasMotionAxes reports whether the card's character tag denotes a motion card.
func (c Card) HasMotionAxes() bool {
	return c.Character == CharacterScanXYLED || c.Character == CharacterStdZF
}

// AxisLabels returns the axis labels named in the card's function descriptor,
// in firmware order.
func (c Card) AxisLabels() []string {
	if c.Function == "" {
		return nil
	}

	var labels []string
	for _, motor := range strings.Split(c.Function, ",") {
		label, _, _ := strings.Cut(motor, ":")
		label = strings.TrimSpace(label)
		if label != "" {
			labels = append(labels, label)
		}
	}

	return labels
}

// parseCardTable parses the multi-line card enumeration reply. Each line
// describes one card:
//
//	address:function version character [options]
//
// Some firmware builds prefix the address with a textual tag ("At 1:...");
// only the trailing digits are the address. Empty lines are skipped.
func parseCardTable(payload string) ([]Card, error) {
	var cards []Card
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		card, err := parseCardLine(line)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	return cards, nil
}

func parseCardLine(line string) (Card, error) {
	addrText, rest, ok := strings.Cut(line, ":")
	if !ok {
		return Card{}, fmt.Errorf("%w: card line %q has no address separator", ErrMalformedResponse, line)
	}

	addrText = strings.TrimSpace(addrText)
	if i := strings.LastIndexFunc(addrText, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		addrText = addrText[i+1:]
	}
	address, err := strconv.Atoi(addrText)
	if err != nil {
		return Card{}, fmt.Errorf("%w: card line %q has no numeric address", ErrMalformedResponse, line)
	}

	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return Card{}, fmt.Errorf("%w: card line %q has %d fields, want at least 3", ErrMalformedResponse, line, len(fields))
	}

	return Card{
		Address:   address,
		Function:  fields[0],
		Version:   fields[1],
		Character: fields[2],
	}, nil
}
