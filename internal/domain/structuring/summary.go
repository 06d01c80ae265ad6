package structuring

import (
	"strings"
)

const notDetected = "Not detected"

// Summary renders the Diagnosis / Symptoms / Medicines preview shown to the
// doctor after local structuring.
func Summary(sp *StructuredPrescription) string {
	if sp == nil {
		sp = &StructuredPrescription{}
	}

	var b strings.Builder
	b.WriteString("Diagnosis:\n")
	if sp.Diagnosis != "" {
		b.WriteString(sp.Diagnosis)
	} else {
		b.WriteString(notDetected)
	}

	b.WriteString("\n\nSymptoms:\n")
	if len(sp.Symptoms) > 0 {
		b.WriteString(strings.Join(sp.Symptoms, ", "))
	} else {
		b.WriteString(notDetected)
	}

	b.WriteString("\n\nMedicines:\n")
	if len(sp.Medicines) == 0 {
		b.WriteString(notDetected)
	}
	for i, m := range sp.Medicines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(MedicineLine(m))
	}
	return b.String()
}

// MedicineLine joins the non-empty fields of m with single spaces.
func MedicineLine(m Medicine) string {
	var parts []string
	for _, f := range []string{m.Name, m.Dose, m.Form, m.Freq, m.Duration} {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
