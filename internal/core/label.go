package core

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SessionSnapshot is the subset of a session frozen into a print job at
// enqueue time. Jobs keep printing the original values even if the session
// is later edited or deleted.
type SessionSnapshot struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	AmountOz    float64   `json:"amount_oz"`
	Notes       string    `json:"notes,omitempty"`
	UseByFridge time.Time `json:"use_by_fridge"`
	UseByFrozen time.Time `json:"use_by_frozen"`
}

// Label stock geometry and field placement. The Y offsets are tuned for
// 2.625in x 1in stock on a 203 dpi head.
const (
	labelWidthIn  = 2.625
	labelHeightIn = 1.0
	labelGapIn    = 0.12

	tsplFont = "2"

	yTimestamp = 8
	yAmount    = 48
	yNotes     = 96
	yUseBy     = 144

	tsplNotesLimit = 25
	pdfNotesLimit  = 40

	mlPerOz = 29.5735
)

// labelZone is the fixed zone labels are rendered in, independent of where
// the server happens to run.
const labelZone = "America/New_York"

var labelLocation = func() *time.Location {
	loc, err := time.LoadLocation(labelZone)
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Storage windows for expressed milk: four days refrigerated, six months
// frozen.
const (
	fridgeShelfLife = 4 * 24 * time.Hour
	frozenShelfLife = 180 * 24 * time.Hour
)

// DeriveUseBy computes expiry timestamps from a pumping time. Session
// creation uses this when the caller does not supply explicit expiries.
func DeriveUseBy(pumpedAt time.Time) (fridge, frozen time.Time) {
	return pumpedAt.Add(fridgeShelfLife), pumpedAt.Add(frozenShelfLife)
}

// MilliliterFor converts ounces to the milliliter figure shown on labels.
// Both renderers go through this so the two outputs can never disagree.
func MilliliterFor(oz float64) int {
	return int(math.Round(oz * mlPerOz))
}

func amountLine(oz float64) string {
	return fmt.Sprintf("%s oz (%d ml)", trimOz(oz), MilliliterFor(oz))
}

func trimOz(oz float64) string {
	s := fmt.Sprintf("%.2f", oz)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}

func timestampLine(snap SessionSnapshot) string {
	return snap.Timestamp.In(labelLocation).Format("Jan 2, 2006 3:04 PM")
}

func useByLine(snap SessionSnapshot) string {
	fridge := snap.UseByFridge.In(labelLocation).Format("01/02")
	frozen := snap.UseByFrozen.In(labelLocation).Format("01/02/06")
	return fmt.Sprintf("Fridge %s / Frozen %s", fridge, frozen)
}

func truncateNotes(notes string, limit int) string {
	runes := []rune(notes)
	if len(runes) <= limit {
		return notes
	}
	return string(runes[:limit])
}

// RenderTSPL renders the session as a TSPL program for thermal label
// printers. The line sequence is fixed; only the notes TEXT line comes and
// goes, depending on whether the session has notes.
func RenderTSPL(snap SessionSnapshot) string {
	var lines []string

	lines = append(lines,
		fmt.Sprintf("SIZE %g,%g", labelWidthIn, labelHeightIn),
		fmt.Sprintf("GAP %g,0", labelGapIn),
		"DIRECTION 1",
		"REFERENCE 0,0",
	)

	lines = append(lines, tsplText(10, yTimestamp, timestampLine(snap)))
	lines = append(lines, tsplText(10, yAmount, amountLine(snap.AmountOz)))
	if snap.Notes != "" {
		lines = append(lines, tsplText(10, yNotes, truncateNotes(snap.Notes, tsplNotesLimit)))
	}
	lines = append(lines, tsplText(10, yUseBy, useByLine(snap)))

	lines = append(lines, "PRINT 1", "FORMFEED")

	return strings.Join(lines, "\n") + "\n"
}

func tsplText(x, y int, content string) string {
	return fmt.Sprintf(`TEXT %d,%d,"%s",0,1,1,"%s"`, x, y, tsplFont, escapeTSPL(content))
}

// escapeTSPL neutralizes characters that would terminate the TEXT argument
// or split the program line. Free-form notes must never change the command
// sequence.
func escapeTSPL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}
