package recognize

// transcriptionPrompt instructs the vision model to transcribe the card
// verbatim, one labeled line per field, so the extractor can parse it.
const transcriptionPrompt = `This is an OCR task. TRANSCRIBE ALL TEXT from this student ID card image.

DO NOT describe the image. DO NOT count fields.
DO NOT say what's visible or not visible.
ONLY TRANSCRIBE THE ACTUAL TEXT you can see on the card.

Look for and transcribe:
- Student name
- Student ID number/code
- Program/major
- University name

Format each field with a label EXACTLY like this:
Nombre: [transcribed student name]
Código: [transcribed student ID number]
Carrera: [transcribed program/major]
Institución: [transcribed university name]`
