package stats

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotPositiveSemidefinite is returned when a symmetric matrix has a
// negative eigen-direction beyond numerical tolerance.
var ErrNotPositiveSemidefinite = errors.New("matrix is not positive semidefinite")

const (
	pivotTolerance    = 1e-10
	negativeTolerance = -1e-9
	residualTolerance = 1e-7
)

// Identity returns an n×n identity matrix.
func Identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

// Cholesky returns the lower-triangular L with L·Lᵀ = m for a symmetric
// positive semidefinite m. Zero pivots yield a zero column instead of a
// division, so rank-deficient inputs (for example ±1 correlations) factor
// cleanly.
func Cholesky(m [][]float64) ([][]float64, error) {
	n := len(m)
	l := make([][]float64, n)
	for i := range l {
		if len(m[i]) != n {
			return nil, fmt.Errorf("matrix row %d has %d columns, want %d", i, len(m[i]), n)
		}
		l[i] = make([]float64, n)
	}

	for j := 0; j < n; j++ {
		d := m[j][j]
		for k := 0; k < j; k++ {
			d -= l[j][k] * l[j][k]
		}
		if d < negativeTolerance {
			return nil, fmt.Errorf("%w: pivot %d is %.6g", ErrNotPositiveSemidefinite, j, d)
		}

		if d <= pivotTolerance {
			// Column is a linear combination of earlier ones; any residual
			// below it means the matrix is inconsistent.
			for i := j + 1; i < n; i++ {
				r := m[i][j]
				for k := 0; k < j; k++ {
					r -= l[i][k] * l[j][k]
				}
				if math.Abs(r) > residualTolerance {
					return nil, fmt.Errorf("%w: degenerate pivot %d with residual %.6g", ErrNotPositiveSemidefinite, j, r)
				}
			}
			continue
		}

		l[j][j] = math.Sqrt(d)
		for i := j + 1; i < n; i++ {
			s := m[i][j]
			for k := 0; k < j; k++ {
				s -= l[i][k] * l[j][k]
			}
			l[i][j] = s / l[j][j]
		}
	}
	return l, nil
}

// IsPositiveSemidefinite reports whether m admits a Cholesky factorisation.
func IsPositiveSemidefinite(m [][]float64) bool {
	_, err := Cholesky(m)
	return err == nil
}

// invert returns the inverse of a small square matrix by Gauss-Jordan
// elimination with partial pivoting.
func invert(m [][]float64) ([][]float64, error) {
	n := len(m)
	a := make([][]float64, n)
	for i := range m {
		a[i] = make([]float64, 2*n)
		copy(a[i], m[i])
		a[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errors.New("matrix is singular")
		}
		a[col], a[pivot] = a[pivot], a[col]

		p := a[col][col]
		for c := range a[col] {
			a[col][c] /= p
		}
		for r := 0; r < n; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for c := range a[r] {
				a[r][c] -= f * a[col][c]
			}
		}
	}

	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = append([]float64(nil), a[i][n:]...)
	}
	return inv, nil
}
