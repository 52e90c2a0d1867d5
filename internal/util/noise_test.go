package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoiseDeterministic(t *testing.T) {
	a := NewNoise(12345)
	b := NewNoise(12345)

	for i := 0; i < 64; i++ {
		x := float64(i) * 0.05
		y := float64(i%8) * 0.05
		assert.Equal(t, a.At(x, y), b.At(x, y), "Один сид должен давать одинаковый шум")
	}
}

func TestNoiseRange(t *testing.T) {
	n := NewNoise(7)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := n.At(float64(x)*0.1, float64(y)*0.1)
			if v < 0.0 || v > 1.0 {
				t.Fatalf("Шум вышел за диапазон [0, 1]: %f в точке (%d, %d)", v, x, y)
			}
		}
	}
}

func TestNoiseSeedsDiffer(t *testing.T) {
	a := NewNoise(1)
	b := NewNoise(2)

	same := true
	for i := 1; i < 32 && same; i++ {
		x := float64(i) * 0.07
		if a.At(x, x) != b.At(x, x) {
			same = false
		}
	}
	assert.False(t, same, "Разные сиды должны давать разный шум")
}
