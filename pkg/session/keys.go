package session

// VKey is a single key event's identity. Printable input (letters, digits,
// punctuation) is carried as its literal rune value; non-printable control
// keys use the dedicated constants below, all placed at 0x100 and above.
// printableRune treats every value from 0x100 up as a control key, so
// only runes below 0x100 reach a scheme's AcceptsKey (which examines
// nothing higher).
type VKey rune

const (
	VKBackspace VKey = 0x100 + iota
	VKEnter
	VKEscape
	VKArrowUp
	VKArrowDown
	VKArrowLeft
	VKArrowRight
	VKPageUp
	VKPageDown
	VKSchemeSwitch
	// VKTab commits the current top candidate directly, skipping S2
	// entirely (e.g. English "prog" + Tab -> "program" in one step).
	VKTab
)

// Modifiers is a bitset of held modifier keys. Sessions don't currently
// branch on any of them, but ProcessKey accepts them for host parity with
// the Windows TSF shim's key event shape.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
)

// printableRune reports the literal rune vkey carries, if it isn't one of
// the reserved control constants.
func printableRune(vkey VKey) (rune, bool) {
	if vkey >= VKBackspace {
		return 0, false
	}
	return rune(vkey), true
}
