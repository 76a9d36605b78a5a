package extract

import "github.com/carnetocr/carnetocr/constants"

// Score derives the per-field confidence map: 1.0 when a field was
// extracted, 0.0 otherwise. A placeholder signal, not a statistical
// confidence; it stays a pure function of the fields and always carries
// every field name as a key.
func Score(f CardFields) map[string]float64 {
	values := map[string]string{
		"nombre":            f.Name,
		"codigo_estudiante": f.StudentCode,
		"carrera":           f.Program,
		"institucion":       f.Institution,
	}
	out := make(map[string]float64, len(constants.FieldNames))
	for _, name := range constants.FieldNames {
		out[name] = presence(values[name])
	}
	return out
}

func presence(v string) float64 {
	if v != "" {
		return 1.0
	}
	return 0.0
}
