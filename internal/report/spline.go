// Package report formats run results for people: the piecewise form of a
// bounce spline and coloured terminal summaries.
package report

import (
	"fmt"
	"strings"

	"github.com/cwbudde/bouncepath/internal/spline"
)

// DescribeSpline writes the spline as a sum of unit-step windowed pieces in
// the auxiliary variable x, one segment per line, ending with the quartic
// piece that runs to x = 1. A zero Snapshot describes as the empty string.
func DescribeSpline(snapshot spline.Snapshot) string {
	if len(snapshot.Segments) == 0 && snapshot.FinalStart == 0 {
		return ""
	}

	var b strings.Builder
	for i, segment := range snapshot.Segments {
		if i > 0 {
			b.WriteString(" + ")
		}
		end := segment.Start + segment.Length
		fmt.Fprintf(&b, "UnitStep[x - %g] * ( (%g) + (x-(%g)) * (%g) + (x-(%g))^2 * (%g) ) * UnitStep[%g - x]\n",
			segment.Start,
			segment.Value,
			segment.Start, segment.FirstDerivative,
			segment.Start, segment.HalfSecondDerivative,
			end)
	}
	fmt.Fprintf(&b, " + UnitStep[x - %g] * ( (%g) + (x-1)^2 * (%g) + (x-1)^4 * (%g) ) * UnitStep[1 - x]",
		snapshot.FinalStart,
		snapshot.FinalPotential,
		snapshot.HalfFinalSecondDerivative,
		snapshot.FinalQuarticCoefficient)
	return b.String()
}
