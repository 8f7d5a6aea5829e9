package video

import (
	"strings"

	"veobatch/internal/domain"
)

const (
	facePreservation = " CRITICAL INSTRUCTION: preserve every human face from the uploaded image with complete fidelity." +
		" Do not alter, retouch, regenerate or restyle any facial feature: eyes, nose, hair, ears, skin tone and texture," +
		" eyebrows, mouth and lips, chin, cheekbones, jawline, forehead and the person's characteristic smile must stay" +
		" exactly as in the source. Treat the face as immutable and make every other change around it."
	objectPreservation = " CRITICAL OBJECT INSTRUCTION: every non-human object from the uploaded image must also be preserved" +
		" with complete fidelity. Do not redraw or modify products, tools, animals, creatures or text. Integrate them into" +
		" the final scene exactly as provided, keeping their original details, colors and textures."
)

// QualityModifiers returns the prompt suffix for a quality tier.
func QualityModifiers(q domain.Quality) string {
	switch q {
	case domain.QualityEnhanced:
		return ", high detail, sharp focus, enhanced quality"
	case domain.QualityProfessional:
		return ", photorealistic, 8k, cinematic lighting, professional photography, masterpiece, ultra-high resolution"
	default:
		return ""
	}
}

// BuildPrompt assembles the text sent to the model: the user prompt, an
// optional audio direction, quality modifiers and, for image input, the
// preservation instructions.
func BuildPrompt(spec domain.JobSpec) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(spec.Input.PromptText()))
	if audio := strings.TrimSpace(spec.AudioPrompt); audio != "" {
		b.WriteString(". Audio: ")
		b.WriteString(audio)
	}
	b.WriteString(QualityModifiers(spec.Quality))
	if _, ok := spec.Input.(domain.ImageInput); ok {
		b.WriteString(facePreservation)
		b.WriteString(objectPreservation)
	}
	return b.String()
}
