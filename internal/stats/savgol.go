package stats

import "fmt"

// SavitzkyGolay smooths values with a least-squares polynomial of the given
// degree fitted over a sliding odd window. Samples within half a window of
// either end are taken from the polynomial fitted to the first or last full
// window, so the output has the same length as the input.
//
// When the series is shorter than the window, the largest odd window that
// still exceeds the degree is used; if none fits the input is returned as a
// copy.
func SavitzkyGolay(values []float64, window, degree int) ([]float64, error) {
	if degree < 0 {
		return nil, fmt.Errorf("savitzky-golay degree must be non-negative, got %d", degree)
	}
	if window%2 == 0 || window <= degree {
		return nil, fmt.Errorf("savitzky-golay window must be odd and greater than degree %d, got %d", degree, window)
	}

	n := len(values)
	w := EffectiveWindow(n, window, degree)
	if w == 0 {
		return append([]float64(nil), values...), nil
	}

	hat, err := savgolHat(w, degree)
	if err != nil {
		return nil, err
	}

	half := w / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		switch {
		case i < half:
			out[i] = Dot(hat[i], values[:w])
		case i >= n-half:
			out[i] = Dot(hat[i-(n-w)], values[n-w:])
		default:
			out[i] = Dot(hat[half], values[i-half:i+half+1])
		}
	}
	return out, nil
}

// EffectiveWindow returns the window SavitzkyGolay will use for a series of
// length n, or 0 when the series is too short to smooth.
func EffectiveWindow(n, window, degree int) int {
	w := window
	if w > n {
		w = n
	}
	if w%2 == 0 {
		w--
	}
	if w <= degree || w < 3 {
		return 0
	}
	return w
}

// SavitzkyGolayCoefficients returns the convolution weights for the centre
// of a window.
func SavitzkyGolayCoefficients(window, degree int) ([]float64, error) {
	if window%2 == 0 || window <= degree || degree < 0 {
		return nil, fmt.Errorf("invalid savitzky-golay parameters window=%d degree=%d", window, degree)
	}
	hat, err := savgolHat(window, degree)
	if err != nil {
		return nil, err
	}
	return hat[window/2], nil
}

// savgolHat builds the projection V(VᵀV)⁻¹Vᵀ for a Vandermonde matrix over
// the centred window positions. Row r evaluates the fitted polynomial at
// window position r.
func savgolHat(window, degree int) ([][]float64, error) {
	half := window / 2
	cols := degree + 1

	v := make([][]float64, window)
	for r := 0; r < window; r++ {
		v[r] = make([]float64, cols)
		x := float64(r - half)
		p := 1.0
		for k := 0; k < cols; k++ {
			v[r][k] = p
			p *= x
		}
	}

	vtv := make([][]float64, cols)
	for i := 0; i < cols; i++ {
		vtv[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			for r := 0; r < window; r++ {
				vtv[i][j] += v[r][i] * v[r][j]
			}
		}
	}
	inv, err := invert(vtv)
	if err != nil {
		return nil, fmt.Errorf("savitzky-golay normal equations: %w", err)
	}

	hat := make([][]float64, window)
	for r := 0; r < window; r++ {
		// a = V[r] · (VᵀV)⁻¹
		a := make([]float64, cols)
		for j := 0; j < cols; j++ {
			for k := 0; k < cols; k++ {
				a[j] += v[r][k] * inv[k][j]
			}
		}
		hat[r] = make([]float64, window)
		for c := 0; c < window; c++ {
			hat[r][c] = Dot(a, v[c])
		}
	}
	return hat, nil
}
