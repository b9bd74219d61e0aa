package staging

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Closed sets for the request enums. Validation rejects anything outside
// them before credits are touched.
var stagingStyles = map[string]struct{}{
	"modern":       {},
	"scandinavian": {},
	"industrial":   {},
	"coastal":      {},
	"farmhouse":    {},
	"midcentury":   {},
	"traditional":  {},
	"luxury":       {},
}

var roomTypes = map[string]struct{}{
	"living_room": {},
	"bedroom":     {},
	"dining_room": {},
	"kitchen":     {},
	"home_office": {},
	"bathroom":    {},
}

// ValidStyle reports whether style is one of the supported staging styles.
func ValidStyle(style string) bool {
	_, ok := stagingStyles[style]
	return ok
}

// ValidRoomType reports whether roomType is supported.
func ValidRoomType(roomType string) bool {
	_, ok := roomTypes[roomType]
	return ok
}

// variantAngles differentiate the parallel staging variants derived from
// one style. They cycle when the configured variant count exceeds them.
var variantAngles = []string{
	"a warm, inviting arrangement with soft natural light",
	"a clean editorial arrangement with strong architectural lines",
	"a cozy lived-in arrangement with layered textiles",
	"a minimal gallery-like arrangement with open sight lines",
}

func emptyRoomPrompt(roomType string) string {
	room := describeRoom(roomType)
	return fmt.Sprintf("Remove all furniture, decor and loose items from this %s. Keep walls, floors, windows, doors and built-in fixtures exactly as they are. Produce a photorealistic empty room.", room)
}

// stagingVariantPrompts derives n distinct prompts from the same style so
// the fan-out produces genuinely different variants.
func stagingVariantPrompts(style, roomType string, n int) []string {
	styleName := cases.Title(language.English).String(strings.ReplaceAll(style, "_", " "))
	room := describeRoom(roomType)
	prompts := make([]string, n)
	for i := range prompts {
		angle := variantAngles[i%len(variantAngles)]
		prompts[i] = fmt.Sprintf("Virtually stage this empty %s in %s style: %s. Furniture and decor must fit the room's scale and perspective; keep walls, floors, windows and fixtures unchanged. Photorealistic result.", room, styleName, angle)
	}
	return prompts
}

func describeRoom(roomType string) string {
	if roomType == "" {
		return "room"
	}
	return strings.ReplaceAll(roomType, "_", " ")
}
