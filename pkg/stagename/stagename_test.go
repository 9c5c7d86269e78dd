package stagename

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"Acumulación", "ACUMULACION"},
		{"pre_ejecucion", "PRE EJECUCION"},
		{"  Resultado__IVIEW ", "RESULTADO IVIEW"},
		{"PAGOS   FÍSICO  vencidos", "PAGOS FISICO VENCIDOS"},
		{"Sueños", "SUENOS"},
		{"pingüino", "PINGUINO"},
		{"Canje 1", "CANJE 1"},
		{"", ""},
		{"___", ""},
		{[]byte("validación"), "VALIDACION"},
		{42, ""},
		{nil, ""},
		{3.5, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %#v", tc.in)
	}
}

func TestNormalizeDecomposedInput(t *testing.T) {
	// "o" followed by a combining acute accent.
	assert.Equal(t, "VALIDACION", String("validacio\u0301n"))
}

func TestNormalizeIdempotentOnSamples(t *testing.T) {
	samples := []string{
		"Planificación", "PRE EJECUCIÓN", "sorteo_1", " canje  2 ", "Ñandú", "ǰ", "straße",
	}
	for _, s := range samples {
		once := String(s)
		assert.Equal(t, once, String(once), "sample %q", s)
	}
}

func TestSet(t *testing.T) {
	got := Set([]string{"Validación", "VALIDACION", "acumulacion", "Pre_Ejecucion"})
	assert.Equal(t, []string{"ACUMULACION", "PRE EJECUCION", "VALIDACION"}, got)
	assert.Empty(t, Set(nil))
}
