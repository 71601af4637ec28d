package tensor

// Axpy computes dst += alpha * src element-wise.
// If src and dst lengths differ, the shorter length is used.
func Axpy(dst []float32, alpha float32, src []float32) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}

	if n == 0 || alpha == 0 {
		return
	}

	axpyF32(dst[:n], alpha, src[:n])
}

func axpyF32(dst []float32, alpha float32, src []float32) {
	n := len(dst)
	i := 0

	for ; i+4 <= n; i += 4 {
		dst[i] += alpha * src[i]
		dst[i+1] += alpha * src[i+1]
		dst[i+2] += alpha * src[i+2]
		dst[i+3] += alpha * src[i+3]
	}

	for ; i < n; i++ {
		dst[i] += alpha * src[i]
	}
}
