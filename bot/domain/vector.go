package domain

import "math"

// Vector は2次元の方向・位置ベクトルです。
type Vector struct {
	X, Y float64
}

const epsilon = 1e-9

func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vector) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalize は単位ベクトルを返します。長さがほぼ0の場合はゼロベクトルを返します。
func (v Vector) Normalize() Vector {
	l := v.Len()
	if l < epsilon || math.IsNaN(l) || math.IsInf(l, 0) {
		return Vector{}
	}
	return Vector{X: v.X / l, Y: v.Y / l}
}
