package structuring

import (
	"strings"
)

// SystemInstruction restricts the remote model to JSON output.
const SystemInstruction = "You are an assistant that outputs only JSON."

const promptHeader = `You are a medical assistant that extracts structured prescription data from a doctor's dictated note.
Return a JSON object and ONLY a JSON object (no extra commentary).

Input text (doctor dictated):
`

const promptSchema = `

Required JSON keys:
- diagnosis: string (short)
- symptoms: array of short strings (may be empty)
- medicines: array of objects {"name": string, "dose": string, "freq": string, "duration": string} (may be empty)
- transcript: the cleaned original transcript string

If any field is unknown, use an empty string or empty array. Strict JSON only.
`

// BuildPrompt renders the instruction sent to the remote model. The output is
// a pure function of its inputs.
func BuildPrompt(text string, pc *PatientContext) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	if note := patientNote(pc); note != "" {
		b.WriteString(note)
		b.WriteString("\n\n")
	}
	b.WriteString(text)
	b.WriteString(promptSchema)
	return b.String()
}

func patientNote(pc *PatientContext) string {
	if pc == nil {
		return ""
	}
	fields := []struct{ key, val string }{
		{"name", pc.Name},
		{"age", pc.Age},
		{"city", pc.City},
		{"phone", pc.Phone},
	}
	var parts []string
	for _, f := range fields {
		if v := strings.TrimSpace(f.val); v != "" {
			parts = append(parts, f.key+": "+v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Patient info: " + strings.Join(parts, "; ")
}
