package estimator

// UniformReferencePoints returns the Das-Dennis lattice of points on the
// unit simplex in m dimensions with p divisions per axis. There are
// C(p+m-1, m-1) points, each summing to 1.
func UniformReferencePoints(m, p int) [][]float64 {
	if m < 1 {
		return nil
	}
	if m == 1 || p < 1 {
		pt := make([]float64, m)
		for i := range pt {
			pt[i] = 1 / float64(m)
		}
		return [][]float64{pt}
	}
	var out [][]float64
	cur := make([]int, m)
	var rec func(axis, left int)
	rec = func(axis, left int) {
		if axis == m-1 {
			cur[axis] = left
			pt := make([]float64, m)
			for i, v := range cur {
				pt[i] = float64(v) / float64(p)
			}
			out = append(out, pt)
			return
		}
		for v := 0; v <= left; v++ {
			cur[axis] = v
			rec(axis+1, left-v)
		}
	}
	rec(0, p)
	return out
}
