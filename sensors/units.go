package sensors

const (
	atmPerPascal = 0.00000987
	inHgPerAtm   = 29.92
)

// The product is rounded to float32 before the offset is added so the result
// does not depend on whether the platform fuses multiply-add.
func CelsiusToFahrenheit(c float32) float32 {
	return float32(c*1.8) + 32.0
}

func PascalsToAtm(p float32) float32 {
	return p * atmPerPascal
}

func AtmToInHg(a float32) float32 {
	return a * inHgPerAtm
}
