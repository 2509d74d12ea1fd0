package utils

import "github.com/viterin/vek/vek32"

// NormalizeL2 scales x in place to unit length. A zero vector is left unchanged.
func NormalizeL2(x []float32) {
	if len(x) == 0 {
		return
	}
	if n := vek32.Norm(x); n > 0 {
		vek32.DivNumber_Inplace(x, n)
	}
}
