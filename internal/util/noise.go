package util

import (
	"github.com/aquilax/go-perlin"
)

// Параметры шума Перлина: сглаживание, частота, число октав.
const (
	noiseAlpha   = 2.0
	noiseBeta    = 2.0
	noiseOctaves = 3
)

// Noise — детерминированный двумерный шум Перлина, нормированный в [0, 1].
type Noise struct {
	p *perlin.Perlin
}

// NewNoise создаёт генератор шума с указанным сидом.
func NewNoise(seed int64) *Noise {
	return &Noise{p: perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed)}
}

// At возвращает значение шума в точке, приведённое к диапазону [0, 1].
func (n *Noise) At(x, y float64) float64 {
	return (n.p.Noise2D(x, y) + 1.0) / 2.0
}
