package nn

import "strings"

// NormalizeName canonicalizes a kernel function name: lower case with '_'
// separators, known aliases mapped to the registered name.
func NormalizeName(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.Trim(normalized, "_")
	if normalized == "" {
		return ""
	}
	if canonical, ok := canonicalName(strings.ReplaceAll(normalized, "_", "")); ok {
		return canonical
	}
	return normalized
}

func canonicalName(compact string) (string, bool) {
	switch compact {
	case "softmax":
		return "soft_max", true
	case "softplus":
		return "soft_plus", true
	case "softsign":
		return "soft_sign", true
	case "leakyrelu":
		return "leaky_relu", true
	case "heavisidestep", "heaviside", "step":
		return "heaviside_step", true
	case "transparent", "identity":
		return "transparent", true
	case "meansquared", "mse", "meansquarederror":
		return "mean_squared", true
	case "crossentropy", "ce", "categoricalcrossentropy":
		return "cross_entropy", true
	case "avg":
		return "average", true
	default:
		return "", false
	}
}
