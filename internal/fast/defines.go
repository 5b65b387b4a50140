package fast

import (
	"strconv"
	"strings"
)

// boardSlot identifies one expansion board position: the board number from
// the model string and the instance set by its address jumpers.
type boardSlot struct {
	board    string
	instance string
}

// expansionBoardAddresses maps board slots to their EXP bus address
var expansionBoardAddresses = map[boardSlot]string{
	{"0071", "0"}: "48",
	{"0071", "1"}: "49",
	{"0071", "2"}: "4A",
	{"0071", "3"}: "4B",

	{"0081", "0"}: "B4",
	{"0081", "1"}: "B5",
	{"0081", "2"}: "B6",
	{"0081", "3"}: "B7",

	{"0091", "0"}: "B8",
	{"0091", "1"}: "B9",
	{"0091", "2"}: "BA",
	{"0091", "3"}: "BB",

	{"0201", "0"}: "88",
	{"0201", "1"}: "89",
	{"0201", "2"}: "8A",
	{"0201", "3"}: "8B",

	// Breakouts built into the Neuron
	{"2000", "0"}: "58",
}

// BoardFeatures describes an expansion board model
type BoardFeatures struct {
	MinFirmware string
	// LocalBreakouts are the breakout models built onto the board itself,
	// in port order starting at 0.
	LocalBreakouts []string
	// BreakoutPorts is the number of ports available for external breakouts
	BreakoutPorts int
}

var expansionBoardFeatures = map[string]BoardFeatures{
	"FP-CPU-2000": {MinFirmware: "0.7", LocalBreakouts: []string{"FP-CPU-2000"}, BreakoutPorts: 3},
	"FP-EXP-0071": {MinFirmware: "0.7", LocalBreakouts: []string{"FP-EXP-0071"}, BreakoutPorts: 3},
	"FP-EXP-0081": {MinFirmware: "0.7", LocalBreakouts: []string{"FP-EXP-0081"}},
	"FP-EXP-0091": {MinFirmware: "0.7", LocalBreakouts: []string{"FP-EXP-0091"}},
	"FP-EXP-0201": {MinFirmware: "0.7", LocalBreakouts: []string{"FP-EXP-0201"}},
}

// BreakoutFeatures describes a breakout board model
type BreakoutFeatures struct {
	MinFirmware string
}

var breakoutBoardFeatures = map[string]BreakoutFeatures{
	"FP-CPU-2000": {MinFirmware: "0.7"},
	"FP-EXP-0071": {MinFirmware: "0.7"},
	"FP-EXP-0081": {MinFirmware: "0.7"},
	"FP-EXP-0091": {MinFirmware: "0.7"},
	"FP-EXP-0201": {MinFirmware: "0.7"},
	"FP-BRK-0001": {MinFirmware: "0.7"},
	"FP-BRK-0116": {MinFirmware: "0.7"},
	"FP-DRV-0800": {MinFirmware: "0.7"},
}

// NormalizeModel reduces a model string to its first three dash-separated
// fields, upper-cased: "fp-exp-0071-2" becomes "FP-EXP-0071".
func NormalizeModel(model string) string {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(model)), "-")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "-")
}

// boardNumber returns the last field of a normalized model
func boardNumber(model string) string {
	parts := strings.Split(model, "-")
	return parts[len(parts)-1]
}

// normalizeInstance turns "00" and "+1" into the table's "0" and "1"
func normalizeInstance(id string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n < 0 {
		return "", false
	}
	return strconv.Itoa(n), true
}

// LookupBoardAddress returns the bus address of model at instance id
func LookupBoardAddress(model, id string) (string, bool) {
	instance, ok := normalizeInstance(id)
	if !ok {
		return "", false
	}
	addr, ok := expansionBoardAddresses[boardSlot{board: boardNumber(NormalizeModel(model)), instance: instance}]
	return addr, ok
}

// LookupBoardFeatures returns the features of an expansion board model
func LookupBoardFeatures(model string) (BoardFeatures, bool) {
	f, ok := expansionBoardFeatures[NormalizeModel(model)]
	return f, ok
}

// LookupBreakoutFeatures returns the features of a breakout model
func LookupBreakoutFeatures(model string) (BreakoutFeatures, bool) {
	f, ok := breakoutBoardFeatures[NormalizeModel(model)]
	return f, ok
}
